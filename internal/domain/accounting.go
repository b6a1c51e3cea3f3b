package domain

import (
	"bytes"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Account is a depositor's position in the vault. Accounts are never removed.
type Account struct {
	Owner       common.Address
	Deposited   uint256.Int
	LastDeposit time.Time
}

// Accounting tracks per-account balances and their aggregate.
// Total always equals the sum of all account balances.
type Accounting struct {
	total    uint256.Int
	accounts map[common.Address]*Account
}

// NewAccounting creates an empty ledger.
func NewAccounting() *Accounting {
	return &Accounting{accounts: make(map[common.Address]*Account)}
}

// RestoreAccounting rebuilds a ledger from stored accounts, recomputing the total.
func RestoreAccounting(accounts []Account) (*Accounting, error) {
	a := NewAccounting()
	for _, acc := range accounts {
		if _, ok := a.accounts[acc.Owner]; ok {
			return nil, errors.Errorf("duplicate account %s", acc.Owner.Hex())
		}
		total, overflow := new(uint256.Int).AddOverflow(&a.total, &acc.Deposited)
		if overflow || total.Gt(&MaxAmount) {
			return nil, errors.Wrap(ErrInvalidAmount, "restored total exceeds 128 bits")
		}
		stored := acc
		a.accounts[acc.Owner] = &stored
		a.total = *total
	}
	return a, nil
}

// Total returns the aggregate of all balances.
func (a *Accounting) Total() uint256.Int {
	return a.total
}

// Account returns a copy of the owner's account.
func (a *Accounting) Account(owner common.Address) (Account, bool) {
	acc, ok := a.accounts[owner]
	if !ok {
		return Account{Owner: owner}, false
	}
	return *acc, true
}

// Accounts returns copies of all accounts ordered by address.
func (a *Accounting) Accounts() []Account {
	out := make([]Account, 0, len(a.accounts))
	for _, acc := range a.accounts {
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Owner.Bytes(), out[j].Owner.Bytes()) < 0
	})
	return out
}

// CheckDeposit validates a deposit against the live limit without mutating anything.
func (a *Accounting) CheckDeposit(owner common.Address, amount, limit *uint256.Int) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}

	var current uint256.Int
	if acc, ok := a.accounts[owner]; ok {
		current = acc.Deposited
	}

	next, overflow := new(uint256.Int).AddOverflow(&current, amount)
	if overflow || next.Gt(limit) {
		return errors.Wrapf(ErrDepositLimitExceeded, "balance %s + %s exceeds limit %s",
			current.Dec(), amount.Dec(), limit.Dec())
	}

	total, overflow := new(uint256.Int).AddOverflow(&a.total, amount)
	if overflow || total.Gt(&MaxAmount) {
		return errors.Wrap(ErrInvalidAmount, "vault total would exceed 128 bits")
	}

	return nil
}

// Deposit credits the owner's account and the total.
func (a *Accounting) Deposit(owner common.Address, amount, limit *uint256.Int, now time.Time) (Account, error) {
	if err := a.CheckDeposit(owner, amount, limit); err != nil {
		return Account{}, err
	}

	acc, ok := a.accounts[owner]
	if !ok {
		acc = &Account{Owner: owner}
		a.accounts[owner] = acc
	}

	acc.Deposited.Add(&acc.Deposited, amount)
	acc.LastDeposit = now
	a.total.Add(&a.total, amount)

	return *acc, nil
}

// CheckWithdraw validates a withdrawal without mutating anything.
func (a *Accounting) CheckWithdraw(owner common.Address, amount *uint256.Int) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}

	var current uint256.Int
	if acc, ok := a.accounts[owner]; ok {
		current = acc.Deposited
	}
	if amount.Gt(&current) {
		return errors.Wrapf(ErrInsufficientBalance, "requested %s, available %s", amount.Dec(), current.Dec())
	}

	return nil
}

// Withdraw debits the owner's account and the total.
func (a *Accounting) Withdraw(owner common.Address, amount *uint256.Int) (Account, error) {
	if err := a.CheckWithdraw(owner, amount); err != nil {
		return Account{}, err
	}

	acc := a.accounts[owner]
	acc.Deposited.Sub(&acc.Deposited, amount)
	a.total.Sub(&a.total, amount)

	return *acc, nil
}
