package rpc

// Wire types. Addresses are 0x-prefixed hex, amounts and nonces are decimal
// strings, signatures are 0x-prefixed hex of 65 bytes.

// PaymentAuth is a user's signed payment authorization.
type PaymentAuth struct {
	PriorityFee  string `json:"priorityFee"`
	Nonce        string `json:"nonce"`
	PriorityFlag bool   `json:"priorityFlag"`
	Signature    string `json:"signature"`
}

// MakeOrderRequest is submitted by Executor on behalf of User.
type MakeOrderRequest struct {
	Executor  string      `json:"executor"`
	User      string      `json:"user"`
	Nonce     string      `json:"nonce"`
	TokenA    string      `json:"tokenA"`
	TokenB    string      `json:"tokenB"`
	AmountA   string      `json:"amountA"`
	AmountB   string      `json:"amountB"`
	Signature string      `json:"signature"`
	Payment   PaymentAuth `json:"payment"`
}

type MakeOrderResponse struct {
	MarketID uint64 `json:"marketId"`
	OrderID  uint64 `json:"orderId"`
}

type CancelOrderRequest struct {
	Executor  string      `json:"executor"`
	User      string      `json:"user"`
	Nonce     string      `json:"nonce"`
	TokenA    string      `json:"tokenA"`
	TokenB    string      `json:"tokenB"`
	OrderID   uint64      `json:"orderId"`
	Signature string      `json:"signature"`
	Payment   PaymentAuth `json:"payment"`
}

type DispatchOrderRequest struct {
	Executor             string      `json:"executor"`
	User                 string      `json:"user"`
	Nonce                string      `json:"nonce"`
	TokenA               string      `json:"tokenA"`
	TokenB               string      `json:"tokenB"`
	OrderID              uint64      `json:"orderId"`
	AmountOfTokenBToFill string      `json:"amountOfTokenBToFill"`
	Signature            string      `json:"signature"`
	Payment              PaymentAuth `json:"payment"`
}

type FillResponse struct {
	MarketID uint64 `json:"marketId"`
	OrderID  uint64 `json:"orderId"`
	Fee      string `json:"fee"`
	Refund   string `json:"refund"`
}

// Split is a fee split in basis points.
type Split struct {
	Seller  uint64 `json:"seller"`
	Service uint64 `json:"service"`
	Staker  uint64 `json:"staker"`
}

// GovernRequest runs one governance action as Caller. Only the fields the
// action needs are read.
type GovernRequest struct {
	Caller    string `json:"caller"`
	Action    string `json:"action"`
	Address   string `json:"address,omitempty"`   // proposeOwner
	Split     Split  `json:"split"`               // propose*Percentage
	Fee       uint64 `json:"fee,omitempty"`       // proposePercentageFee
	Amount    string `json:"amount,omitempty"`    // proposeMaxLimitFillFixedFee, proposeWithdrawal
	Asset     string `json:"asset,omitempty"`     // proposeWithdrawal
	Recipient string `json:"recipient,omitempty"` // proposeWithdrawal
}

type Empty struct{}

type Market struct {
	ID              uint64 `json:"id"`
	TokenA          string `json:"tokenA"`
	TokenB          string `json:"tokenB"`
	MaxSlot         uint64 `json:"maxSlot"`
	OrdersAvailable uint64 `json:"ordersAvailable"`
}

type MarketsResponse struct {
	Markets []Market `json:"markets"`
}

// OrdersRequest lists a market's open orders, restricted to User when set.
type OrdersRequest struct {
	MarketID uint64 `json:"marketId"`
	User     string `json:"user,omitempty"`
}

type Order struct {
	MarketID uint64 `json:"marketId"`
	OrderID  uint64 `json:"orderId"`
	Seller   string `json:"seller"`
	AmountA  string `json:"amountA"`
	AmountB  string `json:"amountB"`
}

type OrdersResponse struct {
	Orders []Order `json:"orders"`
}

// Proposal is a pending governance change and the unix time its window
// closes.
type Proposal struct {
	Parameter string `json:"parameter"`
	Value     string `json:"value"`
	Deadline  int64  `json:"deadline"`
}

type ParametersResponse struct {
	Owner                string     `json:"owner"`
	PercentageFee        uint64     `json:"percentageFee"`
	MaxLimitFillFixedFee string     `json:"maxLimitFillFixedFee"`
	RewardPercentage     Split      `json:"rewardPercentage"`
	Proposals            []Proposal `json:"proposals"`
}

type ReserveRequest struct {
	Asset string `json:"asset"`
}

type ReserveResponse struct {
	Amount string `json:"amount"`
}

type NonceRequest struct {
	User  string `json:"user"`
	Nonce string `json:"nonce"`
}

type NonceResponse struct {
	Used bool `json:"used"`
}
