package rpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/evvm-org/p2pswap/internal/evvm"
	"github.com/evvm-org/p2pswap/internal/message"
	"github.com/evvm-org/p2pswap/internal/nonce"
	"github.com/evvm-org/p2pswap/internal/p2pswap"
	"github.com/evvm-org/p2pswap/internal/timelock"
)

// Governance actions accepted by Govern.
const (
	ActionProposeOwner                      = "proposeOwner"
	ActionRejectProposeOwner                = "rejectProposeOwner"
	ActionAcceptOwner                       = "acceptOwner"
	ActionProposeFillFixedPercentage        = "proposeFillFixedPercentage"
	ActionRejectProposeFillFixedPercentage  = "rejectProposeFillFixedPercentage"
	ActionAcceptFillFixedPercentage         = "acceptFillFixedPercentage"
	ActionProposeFillProportionalPercentage = "proposeFillProportionalPercentage"
	ActionRejectFillProportionalPercentage  = "rejectProposeFillProportionalPercentage"
	ActionAcceptFillProportionalPercentage  = "acceptFillProportionalPercentage"
	ActionProposePercentageFee              = "proposePercentageFee"
	ActionRejectProposePercentageFee        = "rejectProposePercentageFee"
	ActionAcceptPercentageFee               = "acceptPercentageFee"
	ActionProposeMaxLimitFillFixedFee       = "proposeMaxLimitFillFixedFee"
	ActionRejectProposeMaxLimitFillFixedFee = "rejectProposeMaxLimitFillFixedFee"
	ActionAcceptMaxLimitFillFixedFee        = "acceptMaxLimitFillFixedFee"
	ActionProposeWithdrawal                 = "proposeWithdrawal"
	ActionRejectProposeWithdrawal           = "rejectProposeWithdrawal"
	ActionAcceptWithdrawal                  = "acceptWithdrawal"
)

// Handler serves the engine service. Requests name the executor or caller
// explicitly; the socket's file permissions decide who may connect.
type Handler struct {
	engine *p2pswap.Engine
	now    func() time.Time
}

// NewHandler creates a Handler wired to the given engine.
func NewHandler(engine *p2pswap.Engine) *Handler {
	return &Handler{engine: engine, now: time.Now}
}

// MakeOrder opens an order.
func (h *Handler) MakeOrder(ctx context.Context, req *MakeOrderRequest) (*MakeOrderResponse, error) {
	var p parser
	executor := p.address("executor", req.Executor)
	in := p2pswap.MakeOrderRequest{
		User: p.address("user", req.User),
		Metadata: p2pswap.MakeOrderMetadata{
			Nonce:   p.amount("nonce", req.Nonce),
			TokenA:  p.address("tokenA", req.TokenA),
			TokenB:  p.address("tokenB", req.TokenB),
			AmountA: p.amount("amountA", req.AmountA),
			AmountB: p.amount("amountB", req.AmountB),
		},
		Signature: p.signature("signature", req.Signature),
		Payment:   p.payment(req.Payment),
	}
	if p.err != nil {
		return nil, p.err
	}

	res, err := h.engine.MakeOrder(ctx, executor, in)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MakeOrderResponse{MarketID: res.MarketID, OrderID: res.OrderID}, nil
}

// CancelOrder closes an order.
func (h *Handler) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*Empty, error) {
	var p parser
	executor := p.address("executor", req.Executor)
	in := p2pswap.CancelOrderRequest{
		User: p.address("user", req.User),
		Metadata: p2pswap.CancelOrderMetadata{
			Nonce:   p.amount("nonce", req.Nonce),
			TokenA:  p.address("tokenA", req.TokenA),
			TokenB:  p.address("tokenB", req.TokenB),
			OrderID: req.OrderID,
		},
		Signature: p.signature("signature", req.Signature),
		Payment:   p.payment(req.Payment),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := h.engine.CancelOrder(ctx, executor, in); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

// DispatchOrderFillProportionalFee fills an order under the proportional fee.
func (h *Handler) DispatchOrderFillProportionalFee(ctx context.Context, req *DispatchOrderRequest) (*FillResponse, error) {
	return h.dispatch(ctx, req, h.engine.DispatchOrderFillProportionalFee)
}

// DispatchOrderFillFixedFee fills an order under the capped fee.
func (h *Handler) DispatchOrderFillFixedFee(ctx context.Context, req *DispatchOrderRequest) (*FillResponse, error) {
	return h.dispatch(ctx, req, h.engine.DispatchOrderFillFixedFee)
}

type fillFunc func(context.Context, common.Address, p2pswap.DispatchOrderRequest) (p2pswap.FillResult, error)

func (h *Handler) dispatch(ctx context.Context, req *DispatchOrderRequest, fill fillFunc) (*FillResponse, error) {
	var p parser
	executor := p.address("executor", req.Executor)
	in := p2pswap.DispatchOrderRequest{
		User: p.address("user", req.User),
		Metadata: p2pswap.DispatchOrderMetadata{
			Nonce:                p.amount("nonce", req.Nonce),
			TokenA:               p.address("tokenA", req.TokenA),
			TokenB:               p.address("tokenB", req.TokenB),
			OrderID:              req.OrderID,
			AmountOfTokenBToFill: p.amount("amountOfTokenBToFill", req.AmountOfTokenBToFill),
		},
		Signature: p.signature("signature", req.Signature),
		Payment:   p.payment(req.Payment),
	}
	if p.err != nil {
		return nil, p.err
	}

	res, err := fill(ctx, executor, in)
	if err != nil {
		return nil, toStatus(err)
	}
	return &FillResponse{
		MarketID: res.MarketID,
		OrderID:  res.OrderID,
		Fee:      res.Fee.Dec(),
		Refund:   res.Refund.Dec(),
	}, nil
}

// Govern runs one governance action at the handler's current time.
func (h *Handler) Govern(ctx context.Context, req *GovernRequest) (*Empty, error) {
	var p parser
	caller := p.address("caller", req.Caller)
	if p.err != nil {
		return nil, p.err
	}
	now := h.now()
	e := h.engine
	split := p2pswap.Percentage{Seller: req.Split.Seller, Service: req.Split.Service, Staker: req.Split.Staker}

	var err error
	switch req.Action {
	case ActionProposeOwner:
		owner := p.address("address", req.Address)
		if p.err != nil {
			return nil, p.err
		}
		err = e.ProposeOwner(caller, owner, now)
	case ActionRejectProposeOwner:
		err = e.RejectProposeOwner(caller, now)
	case ActionAcceptOwner:
		err = e.AcceptOwner(caller, now)
	case ActionProposeFillFixedPercentage:
		err = e.ProposeFillFixedPercentage(caller, split, now)
	case ActionRejectProposeFillFixedPercentage:
		err = e.RejectProposeFillFixedPercentage(caller, now)
	case ActionAcceptFillFixedPercentage:
		err = e.AcceptFillFixedPercentage(caller, now)
	case ActionProposeFillProportionalPercentage:
		err = e.ProposeFillProportionalPercentage(caller, split, now)
	case ActionRejectFillProportionalPercentage:
		err = e.RejectProposeFillProportionalPercentage(caller, now)
	case ActionAcceptFillProportionalPercentage:
		err = e.AcceptFillProportionalPercentage(caller, now)
	case ActionProposePercentageFee:
		err = e.ProposePercentageFee(caller, req.Fee, now)
	case ActionRejectProposePercentageFee:
		err = e.RejectProposePercentageFee(caller, now)
	case ActionAcceptPercentageFee:
		err = e.AcceptPercentageFee(caller, now)
	case ActionProposeMaxLimitFillFixedFee:
		maxFee := p.amount("amount", req.Amount)
		if p.err != nil {
			return nil, p.err
		}
		err = e.ProposeMaxLimitFillFixedFee(caller, maxFee, now)
	case ActionRejectProposeMaxLimitFillFixedFee:
		err = e.RejectProposeMaxLimitFillFixedFee(caller, now)
	case ActionAcceptMaxLimitFillFixedFee:
		err = e.AcceptMaxLimitFillFixedFee(caller, now)
	case ActionProposeWithdrawal:
		asset := p.address("asset", req.Asset)
		amount := p.amount("amount", req.Amount)
		recipient := p.address("recipient", req.Recipient)
		if p.err != nil {
			return nil, p.err
		}
		err = e.ProposeWithdrawal(caller, asset, amount, recipient, now)
	case ActionRejectProposeWithdrawal:
		err = e.RejectProposeWithdrawal(caller, now)
	case ActionAcceptWithdrawal:
		err = e.AcceptWithdrawal(ctx, caller, now)
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown governance action %q", req.Action)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

// ListMarkets returns every market.
func (h *Handler) ListMarkets(context.Context, *Empty) (*MarketsResponse, error) {
	markets := h.engine.GetAllMarketsMetadata()
	out := &MarketsResponse{Markets: make([]Market, 0, len(markets))}
	for _, m := range markets {
		out.Markets = append(out.Markets, Market{
			ID:              m.ID,
			TokenA:          message.Address(m.TokenA),
			TokenB:          message.Address(m.TokenB),
			MaxSlot:         m.MaxSlot,
			OrdersAvailable: m.OrdersAvailable,
		})
	}
	return out, nil
}

// ListOrders returns a market's open orders.
func (h *Handler) ListOrders(_ context.Context, req *OrdersRequest) (*OrdersResponse, error) {
	if _, ok := h.engine.GetMarket(req.MarketID); !ok {
		return nil, status.Errorf(codes.NotFound, "market %d not found", req.MarketID)
	}

	var views []p2pswap.OrderView
	if req.User != "" {
		var p parser
		user := p.address("user", req.User)
		if p.err != nil {
			return nil, p.err
		}
		views = h.engine.GetMyOrdersInSpecificMarket(user, req.MarketID)
	} else {
		views = h.engine.GetAllMarketOrders(req.MarketID)
	}

	out := &OrdersResponse{Orders: make([]Order, 0, len(views))}
	for _, v := range views {
		out.Orders = append(out.Orders, Order{
			MarketID: v.MarketID,
			OrderID:  v.OrderID,
			Seller:   message.Address(v.Seller),
			AmountA:  v.AmountA.Dec(),
			AmountB:  v.AmountB.Dec(),
		})
	}
	return out, nil
}

// GetParameters returns the live governed parameters and pending proposals.
func (h *Handler) GetParameters(context.Context, *Empty) (*ParametersResponse, error) {
	e := h.engine
	split := e.GetRewardPercentage()
	out := &ParametersResponse{
		Owner:                message.Address(e.GetOwner()),
		PercentageFee:        e.GetPercentageFee(),
		MaxLimitFillFixedFee: e.GetMaxLimitFillFixedFee().Dec(),
		RewardPercentage:     Split{Seller: split.Seller, Service: split.Service, Staker: split.Staker},
		Proposals:            []Proposal{},
	}

	add := func(param, value string, deadline time.Time) {
		out.Proposals = append(out.Proposals, Proposal{Parameter: param, Value: value, Deadline: deadline.Unix()})
	}
	if v, d, ok := e.GetOwnerProposal(); ok {
		add(p2pswap.ParamOwner, message.Address(v), d)
	}
	if v, d, ok := e.GetRewardPercentageProposal(); ok {
		add(p2pswap.ParamRewardPercentage, fmt.Sprintf("%d/%d/%d", v.Seller, v.Service, v.Staker), d)
	}
	if v, d, ok := e.GetPercentageFeeProposal(); ok {
		add(p2pswap.ParamPercentageFee, strconv.FormatUint(v, 10), d)
	}
	if v, d, ok := e.GetMaxLimitFillFixedFeeProposal(); ok {
		add(p2pswap.ParamMaxLimitFillFixedFee, v.Dec(), d)
	}
	if v, d, ok := e.GetWithdrawalProposal(); ok {
		add(p2pswap.ParamWithdrawal, fmt.Sprintf("%s %s -> %s", v.Amount.Dec(), message.Address(v.Asset), message.Address(v.Recipient)), d)
	}
	return out, nil
}

// GetReserve returns the service's fee reserve of an asset.
func (h *Handler) GetReserve(_ context.Context, req *ReserveRequest) (*ReserveResponse, error) {
	var p parser
	asset := p.address("asset", req.Asset)
	if p.err != nil {
		return nil, p.err
	}
	return &ReserveResponse{Amount: h.engine.GetBalanceOfContract(asset).Dec()}, nil
}

// IsNonceUsed reports whether a user's async nonce has been consumed.
func (h *Handler) IsNonceUsed(_ context.Context, req *NonceRequest) (*NonceResponse, error) {
	var p parser
	user := p.address("user", req.User)
	n := p.amount("nonce", req.Nonce)
	if p.err != nil {
		return nil, p.err
	}
	return &NonceResponse{Used: h.engine.IsNonceUsed(user, n)}, nil
}

// parser decodes wire fields and keeps the first failure as an
// InvalidArgument status.
type parser struct {
	err error
}

func (p *parser) fail(field, value string, err error) {
	if p.err == nil {
		p.err = status.Errorf(codes.InvalidArgument, "invalid %s %q: %v", field, value, err)
	}
}

func (p *parser) address(field, s string) common.Address {
	if !common.IsHexAddress(s) {
		p.fail(field, s, errors.New("not a hex address"))
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func (p *parser) amount(field, s string) *uint256.Int {
	if s == "" {
		return new(uint256.Int)
	}
	n, err := uint256.FromDecimal(s)
	if err != nil {
		p.fail(field, s, err)
		return new(uint256.Int)
	}
	return n
}

func (p *parser) signature(field, s string) []byte {
	if s == "" {
		return nil
	}
	sig, err := message.DecodeSignature(s)
	if err != nil {
		p.fail(field, s, err)
	}
	return sig
}

func (p *parser) payment(a PaymentAuth) p2pswap.PaymentAuth {
	return p2pswap.PaymentAuth{
		PriorityFee:  p.amount("payment.priorityFee", a.PriorityFee),
		Nonce:        p.amount("payment.nonce", a.Nonce),
		PriorityFlag: a.PriorityFlag,
		Signature:    p.signature("payment.signature", a.Signature),
	}
}

// toStatus maps engine and ledger errors onto gRPC status codes.
func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, p2pswap.ErrInvalidSignature),
		errors.Is(err, evvm.ErrInvalidPaymentSignature),
		errors.Is(err, evvm.ErrExecutorMismatch),
		errors.Is(err, p2pswap.ErrNotOrderOwner),
		errors.Is(err, p2pswap.ErrUnauthorized):
		code = codes.PermissionDenied
	case errors.Is(err, nonce.ErrNonceUsed):
		code = codes.AlreadyExists
	case errors.Is(err, p2pswap.ErrMarketNotFound),
		errors.Is(err, p2pswap.ErrOrderNotFound):
		code = codes.NotFound
	case errors.Is(err, p2pswap.ErrInsufficientFill),
		errors.Is(err, p2pswap.ErrInsufficientReserve),
		errors.Is(err, evvm.ErrInsufficientBalance),
		errors.Is(err, nonce.ErrNonceSequence),
		errors.Is(err, timelock.ErrNoProposal),
		errors.Is(err, timelock.ErrWindowClosed):
		code = codes.FailedPrecondition
	case errors.Is(err, p2pswap.ErrInvalidPercentage),
		errors.Is(err, p2pswap.ErrAmountOverflow),
		errors.Is(err, evvm.ErrAmountOverflow):
		code = codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}
