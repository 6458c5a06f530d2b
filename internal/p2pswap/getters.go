package p2pswap

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FindMarket returns the market id for (tokenA, tokenB), or 0.
func (e *Engine) FindMarket(tokenA, tokenB common.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.findMarketLocked(tokenA, tokenB)
}

// GetMarket returns the metadata of market id.
func (e *Engine) GetMarket(id uint64) (Market, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.markets[id]
	if !ok {
		return Market{}, false
	}
	return *m, true
}

// GetAllMarketsMetadata returns every market ordered by id.
func (e *Engine) GetAllMarketsMetadata() []Market {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Market, 0, e.marketCount)
	for id := uint64(1); id <= e.marketCount; id++ {
		out = append(out, *e.markets[id])
	}
	return out
}

// GetOrder returns the content of slot orderID in market marketID. An empty
// slot is returned with a zero Seller.
func (e *Engine) GetOrder(marketID, orderID uint64) Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyOrder(e.orders[marketID][orderID])
}

// GetAllMarketOrders lists the open orders of a market in slot order.
func (e *Engine) GetAllMarketOrders(marketID uint64) []OrderView {
	return e.scanOrders(marketID, func(*Order) bool { return true })
}

// GetMyOrdersInSpecificMarket lists user's open orders in a market in slot
// order.
func (e *Engine) GetMyOrdersInSpecificMarket(user common.Address, marketID uint64) []OrderView {
	return e.scanOrders(marketID, func(o *Order) bool { return o.Seller == user })
}

// scanOrders walks slots [1, MaxSlot] skipping empty ones.
func (e *Engine) scanOrders(marketID uint64, keep func(*Order) bool) []OrderView {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.markets[marketID]
	if !ok {
		return nil
	}
	out := make([]OrderView, 0, m.OrdersAvailable)
	slots := e.orders[marketID]
	for i := uint64(1); i <= m.MaxSlot; i++ {
		o := slots[i]
		if o.Empty() || !keep(o) {
			continue
		}
		out = append(out, OrderView{
			MarketID: marketID,
			OrderID:  i,
			Seller:   o.Seller,
			AmountA:  clone(o.AmountA),
			AmountB:  clone(o.AmountB),
		})
	}
	return out
}

// GetBalanceOfContract returns the service's fee reserve of asset.
func (e *Engine) GetBalanceOfContract(asset common.Address) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.reserves[asset])
}

// IsNonceUsed reports whether user has consumed async nonce n.
func (e *Engine) IsNonceUsed(user common.Address, n *uint256.Int) bool {
	return e.nonces.IsUsed(user, zeroIfNil(n))
}

// GetOwner returns the current owner.
func (e *Engine) GetOwner() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner.Current()
}

// GetOwnerProposal returns the nominated owner and the decision deadline.
func (e *Engine) GetOwnerProposal() (common.Address, time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner.Proposed()
}

// GetPercentageFee returns the proportional fee in basis points.
func (e *Engine) GetPercentageFee() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.percentageFee.Current()
}

// GetPercentageFeeProposal returns the pending fee and its deadline.
func (e *Engine) GetPercentageFeeProposal() (uint64, time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.percentageFee.Proposed()
}

// GetMaxLimitFillFixedFee returns the fixed-fee cap.
func (e *Engine) GetMaxLimitFillFixedFee() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.maxLimitFillFixedFee.Current()
	return &v
}

// GetMaxLimitFillFixedFeeProposal returns the pending cap and its deadline.
func (e *Engine) GetMaxLimitFillFixedFeeProposal() (*uint256.Int, time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, deadline, ok := e.maxLimitFillFixedFee.Proposed()
	return &v, deadline, ok
}

// GetRewardPercentage returns the live fee split.
func (e *Engine) GetRewardPercentage() Percentage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rewardPercentage.Current()
}

// GetRewardPercentageProposal returns the pending fee split and its deadline.
func (e *Engine) GetRewardPercentageProposal() (Percentage, time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rewardPercentage.Proposed()
}

// GetWithdrawalProposal returns the pending withdrawal and its deadline.
func (e *Engine) GetWithdrawalProposal() (Withdrawal, time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withdrawal.Proposed()
}
