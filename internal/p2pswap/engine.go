// Package p2pswap implements the delegated-signature peer-to-peer order book.
//
// Users never submit requests themselves. A relayer (the executor) submits a
// request carrying the user's signature over the canonical action message and
// a separately signed payment authorization. The engine verifies the action
// signature, checks the user's async nonce, settles funds through the
// accounting ledger in one unit of work, mutates the book, pays the executor
// its staker reward and finally consumes the nonce.
//
// All requests are serialized. A request either commits completely or leaves
// every piece of state untouched.
package p2pswap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"

	"github.com/evvm-org/p2pswap/internal/evvm"
	"github.com/evvm-org/p2pswap/internal/nonce"
	"github.com/evvm-org/p2pswap/internal/timelock"
)

// Config holds the engine's identity and initial economic parameters.
type Config struct {
	InstanceID           uint64
	Address              common.Address // the engine's own ledger account
	PrincipalToken       common.Address
	Owner                common.Address
	PercentageFee        uint64 // basis points
	MaxLimitFillFixedFee *uint256.Int
	RewardPercentage     Percentage
}

// Option configures optional collaborators.
type Option func(*Engine)

// WithEventSink routes committed events to sink.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithObserver reports request outcomes to obs.
func WithObserver(obs Observer) Option {
	return func(e *Engine) { e.obs = obs }
}

// Engine is the order book state machine.
type Engine struct {
	instanceID uint64
	address    common.Address
	principal  common.Address

	ledger  evvm.Ledger
	staking evvm.Staking
	sink    EventSink
	obs     Observer

	mu          sync.Mutex
	nonces      *nonce.AsyncLedger
	marketCount uint64
	marketIDs   map[pair]uint64
	markets     map[uint64]*Market
	orders      map[uint64]map[uint64]*Order
	reserves    map[common.Address]*uint256.Int
	escrow      map[common.Address]*uint256.Int
	openOrders  uint64

	owner                *timelock.Proposal[common.Address]
	rewardPercentage     *timelock.Proposal[Percentage]
	percentageFee        *timelock.Proposal[uint64]
	maxLimitFillFixedFee *timelock.Proposal[uint256.Int]
	withdrawal           *timelock.Proposal[Withdrawal]
}

// New creates an Engine settling through ledger and querying staker status
// from staking.
func New(cfg Config, ledger evvm.Ledger, staking evvm.Staking, opts ...Option) (*Engine, error) {
	if !cfg.RewardPercentage.Valid() {
		return nil, fmt.Errorf("p2pswap: %w: %+v", ErrInvalidPercentage, cfg.RewardPercentage)
	}
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("p2pswap: engine address is required")
	}

	e := &Engine{
		instanceID: cfg.InstanceID,
		address:    cfg.Address,
		principal:  cfg.PrincipalToken,
		ledger:     ledger,
		staking:    staking,
		sink:       nopSink{},
		obs:        nopObserver{},

		nonces:    nonce.NewAsyncLedger(),
		marketIDs: make(map[pair]uint64),
		markets:   make(map[uint64]*Market),
		orders:    make(map[uint64]map[uint64]*Order),
		reserves:  make(map[common.Address]*uint256.Int),
		escrow:    make(map[common.Address]*uint256.Int),

		owner:                timelock.New(cfg.Owner),
		rewardPercentage:     timelock.New(cfg.RewardPercentage),
		percentageFee:        timelock.New(cfg.PercentageFee),
		maxLimitFillFixedFee: timelock.New(*clone(cfg.MaxLimitFillFixedFee)),
		withdrawal:           timelock.New(Withdrawal{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Address returns the engine's ledger account.
func (e *Engine) Address() common.Address { return e.address }

// InstanceID returns the ecosystem instance the engine verifies messages for.
func (e *Engine) InstanceID() uint64 { return e.instanceID }

// observe records the outcome of op started at start.
func (e *Engine) observe(op string, start time.Time, err error) {
	e.obs.ObserveRequest(op, err, time.Since(start))
	if err != nil {
		log.WithFields(log.Fields{"op": op}).WithError(err).Debug("p2pswap: request rejected")
	}
}

func (e *Engine) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	e.sink.Publish(ev)
}

// settle runs fn as one ledger unit of work on the engine's account.
func (e *Engine) settle(ctx context.Context, fn func(tx evvm.Transfers) error) error {
	return e.ledger.Atomic(ctx, e.address, fn)
}

func (e *Engine) findMarketLocked(tokenA, tokenB common.Address) uint64 {
	return e.marketIDs[pair{tokenA, tokenB}]
}

// liveOrderLocked returns the open order at (marketID, orderID).
func (e *Engine) liveOrderLocked(marketID, orderID uint64) (*Market, *Order, error) {
	m, ok := e.markets[marketID]
	if !ok || marketID == 0 {
		return nil, nil, ErrMarketNotFound
	}
	o := e.orders[marketID][orderID]
	if o.Empty() {
		return nil, nil, fmt.Errorf("%w: market %d slot %d", ErrOrderNotFound, marketID, orderID)
	}
	return m, o, nil
}

// clearOrderLocked frees the order's slot and releases its escrow.
func (e *Engine) clearOrderLocked(m *Market, orderID uint64) {
	if o := e.orders[m.ID][orderID]; !o.Empty() {
		if held, ok := e.escrow[m.TokenA]; ok {
			held.Sub(held, o.AmountA)
		}
	}
	e.orders[m.ID][orderID] = &Order{AmountA: new(uint256.Int), AmountB: new(uint256.Int)}
	m.OrdersAvailable--
	e.openOrders--
	e.obs.SetOpenOrders(e.openOrders)
}

// commitment describes how a request changes what the engine owes once it
// commits: escrow taken in or released for escrowAsset, and the new reserve
// of reserveAsset (nil when unchanged).
type commitment struct {
	escrowAsset  common.Address
	escrowIn     *uint256.Int
	escrowOut    *uint256.Int
	reserveAsset common.Address
	reserve      *uint256.Int
}

// committedPrincipalLocked returns the principal-token amount the engine
// holds for others after c commits: open-order escrow plus the service
// reserve.
func (e *Engine) committedPrincipalLocked(c commitment) *uint256.Int {
	total := clone(e.escrow[e.principal])
	if c.escrowAsset == e.principal {
		total.Add(total, zeroIfNil(c.escrowIn))
		total.Sub(total, zeroIfNil(c.escrowOut))
	}
	reserve := e.reserves[e.principal]
	if c.reserve != nil && c.reserveAsset == e.principal {
		reserve = c.reserve
	}
	return total.Add(total, zeroIfNil(reserve))
}

func (e *Engine) addReserveLocked(asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	cur, ok := e.reserves[asset]
	if !ok {
		cur = new(uint256.Int)
	}
	next, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return next, nil
}
