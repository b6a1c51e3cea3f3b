// Package token is an in-process fungible token with ERC-20 style custody
// semantics. The vault only moves balances through it, it never mints or burns.
package token

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidValue          = errors.New("invalid token amount")
)

// Memory keeps balances and allowances in memory.
type Memory struct {
	mu         sync.RWMutex
	symbol     string
	supply     uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
}

func NewMemory(symbol string) *Memory {
	return &Memory{
		symbol:     symbol,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (m *Memory) Symbol() string { return m.symbol }

func checkValue(v *uint256.Int) error {
	if v == nil || v.IsZero() {
		return errors.Wrap(ErrInvalidValue, "amount must be positive")
	}
	return nil
}

func (m *Memory) balance(a common.Address) *uint256.Int {
	b, ok := m.balances[a]
	if !ok {
		b = new(uint256.Int)
		m.balances[a] = b
	}
	return b
}

// Mint creates amount new tokens for to.
func (m *Memory) Mint(to common.Address, amount *uint256.Int) error {
	if err := checkValue(amount); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(&m.supply, amount)
	if overflow {
		return errors.Wrap(ErrInvalidValue, "total supply overflow")
	}
	m.supply = *supply
	b := m.balance(to)
	b.Add(b, amount)
	return nil
}

// Burn destroys amount tokens held by from.
func (m *Memory) Burn(from common.Address, amount *uint256.Int) error {
	if err := checkValue(amount); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.balance(from)
	if b.Lt(amount) {
		return errors.Wrapf(ErrInsufficientFunds, "%s holds %s, burn %s", from.Hex(), b.Dec(), amount.Dec())
	}
	b.Sub(b, amount)
	m.supply.Sub(&m.supply, amount)
	return nil
}

// Approve sets how much spender may move out of owner's balance.
func (m *Memory) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if amount == nil {
		return errors.Wrap(ErrInvalidValue, "amount is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byOwner, ok := m.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*uint256.Int)
		m.allowances[owner] = byOwner
	}
	byOwner[spender] = new(uint256.Int).Set(amount)
	return nil
}

func (m *Memory) Allowance(owner, spender common.Address) uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if a, ok := m.allowances[owner][spender]; ok {
		return *a
	}
	return uint256.Int{}
}

// Transfer moves amount from one holder to another.
func (m *Memory) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkValue(amount); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.move(from, to, amount)
}

// TransferFrom moves amount from owner to to on behalf of spender, consuming allowance.
func (m *Memory) TransferFrom(ctx context.Context, spender, owner, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkValue(amount); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	allowance, ok := m.allowances[owner][spender]
	if !ok || allowance.Lt(amount) {
		var have uint256.Int
		if ok {
			have = *allowance
		}
		return errors.Wrapf(ErrInsufficientAllowance, "%s may spend %s of %s, requested %s",
			spender.Hex(), have.Dec(), owner.Hex(), amount.Dec())
	}
	if err := m.move(owner, to, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return nil
}

func (m *Memory) move(from, to common.Address, amount *uint256.Int) error {
	src := m.balance(from)
	if src.Lt(amount) {
		return errors.Wrapf(ErrInsufficientFunds, "%s holds %s, requested %s", from.Hex(), src.Dec(), amount.Dec())
	}
	src.Sub(src, amount)
	dst := m.balance(to)
	dst.Add(dst, amount)
	return nil
}

func (m *Memory) BalanceOf(ctx context.Context, account common.Address) (uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return uint256.Int{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if b, ok := m.balances[account]; ok {
		return *b, nil
	}
	return uint256.Int{}, nil
}

func (m *Memory) TotalSupply() uint256.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.supply
}

// Holding is a persisted balance.
type Holding struct {
	Account common.Address `json:"account"`
	Amount  string         `json:"amount"`
}

// Approval is a persisted allowance.
type Approval struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  string         `json:"amount"`
}

// State is the serializable form of a Memory token.
type State struct {
	Symbol    string     `json:"symbol"`
	Holdings  []Holding  `json:"holdings"`
	Approvals []Approval `json:"approvals"`
}

// Snapshot captures balances and allowances in a deterministic order.
func (m *Memory) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := State{Symbol: m.symbol}
	for acc, b := range m.balances {
		if b.IsZero() {
			continue
		}
		st.Holdings = append(st.Holdings, Holding{Account: acc, Amount: b.Dec()})
	}
	for owner, bySpender := range m.allowances {
		for spender, a := range bySpender {
			if a.IsZero() {
				continue
			}
			st.Approvals = append(st.Approvals, Approval{Owner: owner, Spender: spender, Amount: a.Dec()})
		}
	}

	sort.Slice(st.Holdings, func(i, j int) bool {
		return bytes.Compare(st.Holdings[i].Account.Bytes(), st.Holdings[j].Account.Bytes()) < 0
	})
	sort.Slice(st.Approvals, func(i, j int) bool {
		if c := bytes.Compare(st.Approvals[i].Owner.Bytes(), st.Approvals[j].Owner.Bytes()); c != 0 {
			return c < 0
		}
		return bytes.Compare(st.Approvals[i].Spender.Bytes(), st.Approvals[j].Spender.Bytes()) < 0
	})
	return st
}

// Restore builds a token from a snapshot.
func Restore(st State) (*Memory, error) {
	m := NewMemory(st.Symbol)
	for _, h := range st.Holdings {
		v, err := uint256.FromDecimal(h.Amount)
		if err != nil {
			return nil, errors.Wrapf(err, "decode balance of %s", h.Account.Hex())
		}
		m.balances[h.Account] = v
		m.supply.Add(&m.supply, v)
	}
	for _, a := range st.Approvals {
		v, err := uint256.FromDecimal(a.Amount)
		if err != nil {
			return nil, errors.Wrapf(err, "decode allowance of %s", a.Owner.Hex())
		}
		if _, ok := m.allowances[a.Owner]; !ok {
			m.allowances[a.Owner] = make(map[common.Address]*uint256.Int)
		}
		m.allowances[a.Owner][a.Spender] = v
	}
	return m, nil
}
