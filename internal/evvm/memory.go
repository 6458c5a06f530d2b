package evvm

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"

	"github.com/evvm-org/p2pswap/internal/message"
	"github.com/evvm-org/p2pswap/internal/nonce"
)

type balanceKey struct {
	Account common.Address
	Asset   common.Address
}

// MemoryLedger is an in-process accounting ledger. It verifies payment
// authorizations against the canonical pay message, enforces both nonce
// spaces, tracks stakers and the base reward unit, and applies every unit of
// work all-or-nothing.
type MemoryLedger struct {
	instanceID uint64

	mu          sync.Mutex
	balances    map[balanceKey]*uint256.Int
	asyncNonces *nonce.AsyncLedger
	syncNonces  *nonce.SyncLedger

	stakeMu sync.RWMutex
	stakers map[common.Address]bool
	reward  *uint256.Int
}

// NewMemoryLedger creates an empty ledger for the given ecosystem instance.
func NewMemoryLedger(instanceID uint64, baseReward *uint256.Int) *MemoryLedger {
	return &MemoryLedger{
		instanceID:  instanceID,
		balances:    make(map[balanceKey]*uint256.Int),
		asyncNonces: nonce.NewAsyncLedger(),
		syncNonces:  nonce.NewSyncLedger(),
		stakers:     make(map[common.Address]bool),
		reward:      new(uint256.Int).Set(baseReward),
	}
}

// InstanceID returns the ecosystem instance identifier used in pay messages.
func (m *MemoryLedger) InstanceID() uint64 { return m.instanceID }

// Mint credits amount of asset to account outside of any unit of work.
func (m *MemoryLedger) Mint(account, asset common.Address, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := balanceKey{account, asset}
	cur := m.balanceLocked(k)
	m.balances[k] = new(uint256.Int).Add(cur, amount)
}

// Balance returns a copy of account's balance of asset.
func (m *MemoryLedger) Balance(account, asset common.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(uint256.Int).Set(m.balanceLocked(balanceKey{account, asset}))
}

// SetStaker marks or unmarks account as an active staker.
func (m *MemoryLedger) SetStaker(account common.Address, active bool) {
	m.stakeMu.Lock()
	defer m.stakeMu.Unlock()
	if active {
		m.stakers[account] = true
	} else {
		delete(m.stakers, account)
	}
}

// IsStaker implements Staking.
func (m *MemoryLedger) IsStaker(_ context.Context, account common.Address) (bool, error) {
	m.stakeMu.RLock()
	defer m.stakeMu.RUnlock()
	return m.stakers[account], nil
}

// BaseRewardUnit implements Staking.
func (m *MemoryLedger) BaseRewardUnit(context.Context) (*uint256.Int, error) {
	m.stakeMu.RLock()
	defer m.stakeMu.RUnlock()
	return new(uint256.Int).Set(m.reward), nil
}

// NextSyncNonce returns the next sequential payment nonce for account.
func (m *MemoryLedger) NextSyncNonce(account common.Address) uint64 {
	return m.syncNonces.Next(account)
}

// IsAsyncNonceUsed reports whether account has consumed async payment nonce n.
func (m *MemoryLedger) IsAsyncNonceUsed(account common.Address, n *uint256.Int) bool {
	return m.asyncNonces.IsUsed(account, n)
}

// Atomic implements Ledger. Units of work are serialized.
func (m *MemoryLedger) Atomic(ctx context.Context, service common.Address, fn func(tx Transfers) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		ledger:   m,
		service:  service,
		balances: make(map[balanceKey]*uint256.Int),
		syncIncr: make(map[common.Address]uint64),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *MemoryLedger) balanceLocked(k balanceKey) *uint256.Int {
	if b, ok := m.balances[k]; ok {
		return b
	}
	return new(uint256.Int)
}

type asyncMark struct {
	User  common.Address
	Nonce uint256.Int
}

// memTx stages balance changes and nonce consumption until commit.
type memTx struct {
	ledger   *MemoryLedger
	service  common.Address
	balances map[balanceKey]*uint256.Int
	async    []asyncMark
	syncIncr map[common.Address]uint64
}

func (tx *memTx) balance(k balanceKey) *uint256.Int {
	if b, ok := tx.balances[k]; ok {
		return b
	}
	b := new(uint256.Int).Set(tx.ledger.balanceLocked(k))
	tx.balances[k] = b
	return b
}

func (tx *memTx) debit(account, asset common.Address, amount *uint256.Int) error {
	b := tx.balance(balanceKey{account, asset})
	if b.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s",
			ErrInsufficientBalance, account.Hex(), b.Dec(), asset.Hex(), amount.Dec())
	}
	b.Sub(b, amount)
	return nil
}

func (tx *memTx) credit(account, asset common.Address, amount *uint256.Int) error {
	b := tx.balance(balanceKey{account, asset})
	if _, overflow := b.AddOverflow(b, amount); overflow {
		return ErrAmountOverflow
	}
	return nil
}

func (tx *memTx) asyncUsed(user common.Address, n *uint256.Int) bool {
	if tx.ledger.asyncNonces.IsUsed(user, n) {
		return true
	}
	for _, m := range tx.async {
		if m.User == user && m.Nonce.Eq(n) {
			return true
		}
	}
	return false
}

func (tx *memTx) RequestTransfer(_ context.Context, p Payment) error {
	amount := orZero(p.Amount)
	fee := orZero(p.PriorityFee)
	n := orZero(p.Nonce)

	msg := message.Pay(tx.ledger.instanceID, p.To, p.Asset, amount, fee, n, p.PriorityFlag, p.Executor)
	if !message.VerifyMessage(msg, p.Signature, p.From) {
		return ErrInvalidPaymentSignature
	}
	if p.Executor != (common.Address{}) && p.Executor != tx.service {
		return fmt.Errorf("%w: signed for %s, submitted by %s", ErrExecutorMismatch, p.Executor.Hex(), tx.service.Hex())
	}

	if p.PriorityFlag {
		if tx.asyncUsed(p.From, n) {
			return fmt.Errorf("evvm: %w: %s", nonce.ErrNonceUsed, n.Dec())
		}
	} else {
		want := tx.ledger.syncNonces.Next(p.From) + tx.syncIncr[p.From]
		if !n.IsUint64() || n.Uint64() != want {
			return fmt.Errorf("evvm: %w: got %s, want %d", nonce.ErrNonceSequence, n.Dec(), want)
		}
	}

	total, overflow := new(uint256.Int).AddOverflow(amount, fee)
	if overflow {
		return ErrAmountOverflow
	}
	if err := tx.debit(p.From, p.Asset, total); err != nil {
		return err
	}
	if err := tx.credit(p.To, p.Asset, amount); err != nil {
		return err
	}
	if err := tx.credit(tx.service, p.Asset, fee); err != nil {
		return err
	}
	if err := tx.rewardService(); err != nil {
		return err
	}

	if p.PriorityFlag {
		tx.async = append(tx.async, asyncMark{User: p.From, Nonce: *n})
	} else {
		tx.syncIncr[p.From]++
	}
	return nil
}

func (tx *memTx) Balance(_ context.Context, asset common.Address) (*uint256.Int, error) {
	return new(uint256.Int).Set(tx.balance(balanceKey{tx.service, asset})), nil
}

func (tx *memTx) CreditTransfer(_ context.Context, to, asset common.Address, amount *uint256.Int) error {
	amount = orZero(amount)
	if err := tx.debit(tx.service, asset, amount); err != nil {
		return err
	}
	return tx.credit(to, asset, amount)
}

func (tx *memTx) DisperseCredit(_ context.Context, asset common.Address, payouts []Payout) error {
	total := new(uint256.Int)
	for _, p := range payouts {
		if _, overflow := total.AddOverflow(total, orZero(p.Amount)); overflow {
			return ErrAmountOverflow
		}
	}
	if err := tx.debit(tx.service, asset, total); err != nil {
		return err
	}
	for _, p := range payouts {
		if err := tx.credit(p.To, asset, orZero(p.Amount)); err != nil {
			return err
		}
	}
	return nil
}

// rewardService mints one base reward unit of the principal token to the
// executing service when it is a staker.
func (tx *memTx) rewardService() error {
	m := tx.ledger
	m.stakeMu.RLock()
	staker := m.stakers[tx.service]
	reward := new(uint256.Int).Set(m.reward)
	m.stakeMu.RUnlock()
	if !staker {
		return nil
	}
	return tx.credit(tx.service, PrincipalToken, reward)
}

func (tx *memTx) commit() {
	m := tx.ledger
	for k, b := range tx.balances {
		m.balances[k] = b
	}
	for _, mark := range tx.async {
		n := mark.Nonce
		if err := m.asyncNonces.MarkUsed(mark.User, &n); err != nil {
			// Staged marks were checked against the committed set under m.mu.
			log.WithError(err).Error("evvm: async nonce committed twice")
		}
	}
	for user, incr := range tx.syncIncr {
		for i := uint64(0); i < incr; i++ {
			m.syncNonces.Increment(user)
		}
	}
	log.WithFields(log.Fields{
		"service":  tx.service.Hex(),
		"balances": len(tx.balances),
	}).Debug("evvm: unit of work committed")
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
