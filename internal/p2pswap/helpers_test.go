package p2pswap

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/evvm-org/p2pswap/internal/evvm"
	"github.com/evvm-org/p2pswap/internal/message"
)

const (
	testInstance = 1
	baseReward   = 10
)

var (
	engineAddr = common.HexToAddress("0x0000000000000000000000000000000000005A5A")
	ownerAddr  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	relayer    = common.HexToAddress("0x000000000000000000000000000000000000BE1A")
	tokenX     = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	tokenY     = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	principal  = evvm.PrincipalToken

	t0 = time.Unix(1_700_000_000, 0)
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventKind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	ledger *evvm.MemoryLedger
	engine *Engine
	sink   *recordingSink
}

func testConfig() Config {
	return Config{
		InstanceID:           testInstance,
		Address:              engineAddr,
		PrincipalToken:       principal,
		Owner:                ownerAddr,
		PercentageFee:        500,
		MaxLimitFillFixedFee: uint256.NewInt(100),
		RewardPercentage:     Percentage{Seller: 5000, Service: 4000, Staker: 1000},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithPool(t, 1_000_000)
}

// newHarnessWithPool funds the engine's reward pool with pool principal
// tokens.
func newHarnessWithPool(t *testing.T, pool uint64) *harness {
	t.Helper()
	ledger := evvm.NewMemoryLedger(testInstance, uint256.NewInt(baseReward))
	ledger.SetStaker(relayer, true)
	if pool > 0 {
		ledger.Mint(engineAddr, principal, uint256.NewInt(pool))
	}

	sink := &recordingSink{}
	e, err := New(testConfig(), ledger, ledger, WithEventSink(sink))
	require.NoError(t, err)

	return &harness{t: t, ctx: context.Background(), ledger: ledger, engine: e, sink: sink}
}

type user struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func (h *harness) newUser(balances map[common.Address]uint64) user {
	h.t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(h.t, err)
	u := user{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
	for asset, amount := range balances {
		h.ledger.Mint(u.addr, asset, uint256.NewInt(amount))
	}
	return u
}

func (u user) sign(t *testing.T, msg string) []byte {
	t.Helper()
	sig, err := crypto.Sign(message.Hash(msg).Bytes(), u.key)
	require.NoError(t, err)
	sig[64] += 27
	return sig
}

// payAuth signs an async payment authorization to the engine.
func (u user) payAuth(t *testing.T, asset common.Address, amount, priorityFee, n uint64) PaymentAuth {
	t.Helper()
	msg := message.Pay(testInstance, engineAddr, asset, uint256.NewInt(amount), uint256.NewInt(priorityFee), uint256.NewInt(n), true, engineAddr)
	return PaymentAuth{
		PriorityFee:  uint256.NewInt(priorityFee),
		Nonce:        uint256.NewInt(n),
		PriorityFlag: true,
		Signature:    u.sign(t, msg),
	}
}

func (h *harness) makeOrderRequest(u user, n, amountA, amountB, payNonce, priorityFee uint64) MakeOrderRequest {
	h.t.Helper()
	md := MakeOrderMetadata{
		Nonce:   uint256.NewInt(n),
		TokenA:  tokenX,
		TokenB:  tokenY,
		AmountA: uint256.NewInt(amountA),
		AmountB: uint256.NewInt(amountB),
	}
	return MakeOrderRequest{
		User:      u.addr,
		Metadata:  md,
		Signature: u.sign(h.t, message.MakeOrder(testInstance, md.Nonce, md.TokenA, md.TokenB, md.AmountA, md.AmountB)),
		Payment:   u.payAuth(h.t, tokenX, amountA, priorityFee, payNonce),
	}
}

func (h *harness) makeOrder(u user, n, amountA, amountB uint64) MakeOrderResult {
	h.t.Helper()
	res, err := h.engine.MakeOrder(h.ctx, relayer, h.makeOrderRequest(u, n, amountA, amountB, n, 0))
	require.NoError(h.t, err)
	return res
}

func (h *harness) cancelRequest(u user, n, orderID, payNonce, priorityFee uint64) CancelOrderRequest {
	h.t.Helper()
	md := CancelOrderMetadata{Nonce: uint256.NewInt(n), TokenA: tokenX, TokenB: tokenY, OrderID: orderID}
	req := CancelOrderRequest{
		User:      u.addr,
		Metadata:  md,
		Signature: u.sign(h.t, message.CancelOrder(testInstance, md.Nonce, md.TokenA, md.TokenB, md.OrderID)),
	}
	if priorityFee > 0 {
		req.Payment = u.payAuth(h.t, principal, 0, priorityFee, payNonce)
	}
	return req
}

func (h *harness) dispatchRequest(u user, n, orderID, fill, payNonce, priorityFee uint64) DispatchOrderRequest {
	h.t.Helper()
	md := DispatchOrderMetadata{
		Nonce:                uint256.NewInt(n),
		TokenA:               tokenX,
		TokenB:               tokenY,
		OrderID:              orderID,
		AmountOfTokenBToFill: uint256.NewInt(fill),
	}
	return DispatchOrderRequest{
		User:      u.addr,
		Metadata:  md,
		Signature: u.sign(h.t, message.DispatchOrder(testInstance, md.Nonce, md.TokenA, md.TokenB, md.OrderID)),
		Payment:   u.payAuth(h.t, tokenY, fill, priorityFee, payNonce),
	}
}

func (h *harness) balance(account, asset common.Address) uint64 {
	return h.ledger.Balance(account, asset).Uint64()
}

// snapshot captures every observable piece of state touched by a request.
type snapshot struct {
	Markets  []Market
	Orders   [][]OrderView
	Balances map[string]string
	Reserves map[common.Address]string
}

func (h *harness) snapshot(accounts ...common.Address) snapshot {
	s := snapshot{
		Markets:  h.engine.GetAllMarketsMetadata(),
		Balances: make(map[string]string),
		Reserves: make(map[common.Address]string),
	}
	for _, m := range s.Markets {
		s.Orders = append(s.Orders, h.engine.GetAllMarketOrders(m.ID))
	}
	accounts = append(accounts, engineAddr, relayer)
	for _, a := range accounts {
		for _, asset := range []common.Address{tokenX, tokenY, principal} {
			s.Balances[a.Hex()+"/"+asset.Hex()] = h.ledger.Balance(a, asset).Dec()
		}
	}
	for _, asset := range []common.Address{tokenX, tokenY, principal} {
		s.Reserves[asset] = h.engine.GetBalanceOfContract(asset).Dec()
	}
	return s
}

func messageMakeOrder(md MakeOrderMetadata) string {
	return message.MakeOrder(testInstance, md.Nonce, md.TokenA, md.TokenB, md.AmountA, md.AmountB)
}

func messageCancel(md CancelOrderMetadata) string {
	return message.CancelOrder(testInstance, md.Nonce, md.TokenA, md.TokenB, md.OrderID)
}
