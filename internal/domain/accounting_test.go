package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func amount(v uint64) *uint256.Int { return uint256.NewInt(v) }

func sumAccounts(a *Accounting) uint256.Int {
	var sum uint256.Int
	for _, acc := range a.Accounts() {
		sum.Add(&sum, &acc.Deposited)
	}
	return sum
}

func TestAccounting_DepositWithdraw(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limit := amount(1000)

	t.Run("deposit creates account", func(t *testing.T) {
		a := NewAccounting()
		acc, err := a.Deposit(alice, amount(100), limit, now)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), acc.Deposited.Uint64())
		assert.Equal(t, now, acc.LastDeposit)
		total := a.Total()
		assert.Equal(t, uint64(100), total.Uint64())
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		a := NewAccounting()
		_, err := a.Deposit(alice, amount(0), limit, now)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = a.Withdraw(alice, amount(0))
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.Empty(t, a.Accounts())
	})

	t.Run("amount wider than 128 bits rejected", func(t *testing.T) {
		a := NewAccounting()
		huge := new(uint256.Int).Lsh(uint256.NewInt(1), 130)
		_, err := a.Deposit(alice, huge, huge, now)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("limit exceeded leaves state untouched", func(t *testing.T) {
		a := NewAccounting()
		_, err := a.Deposit(alice, amount(900), limit, now)
		require.NoError(t, err)
		_, err = a.Deposit(alice, amount(101), limit, now.Add(time.Minute))
		assert.ErrorIs(t, err, ErrDepositLimitExceeded)

		acc, ok := a.Account(alice)
		require.True(t, ok)
		assert.Equal(t, uint64(900), acc.Deposited.Uint64())
		assert.Equal(t, now, acc.LastDeposit)
	})

	t.Run("deposit exactly at limit accepted", func(t *testing.T) {
		a := NewAccounting()
		_, err := a.Deposit(alice, amount(1000), limit, now)
		assert.NoError(t, err)
	})

	t.Run("withdraw more than balance fails", func(t *testing.T) {
		a := NewAccounting()
		_, err := a.Deposit(alice, amount(100), limit, now)
		require.NoError(t, err)

		_, err = a.Withdraw(alice, amount(200))
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		acc, _ := a.Account(alice)
		assert.Equal(t, uint64(100), acc.Deposited.Uint64())
		total := a.Total()
		assert.Equal(t, uint64(100), total.Uint64())
	})

	t.Run("withdraw from unknown account fails", func(t *testing.T) {
		a := NewAccounting()
		_, err := a.Withdraw(bob, amount(1))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("account survives zero balance", func(t *testing.T) {
		a := NewAccounting()
		_, err := a.Deposit(alice, amount(100), limit, now)
		require.NoError(t, err)
		acc, err := a.Withdraw(alice, amount(100))
		require.NoError(t, err)
		assert.True(t, acc.Deposited.IsZero())

		_, ok := a.Account(alice)
		assert.True(t, ok)
		assert.Len(t, a.Accounts(), 1)
	})
}

func TestAccounting_Conservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	owners := []common.Address{alice, bob, common.HexToAddress("0xc0ffee")}
	a := NewAccounting()
	limit := amount(10_000)
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 500; i++ {
		owner := owners[rng.Intn(len(owners))]
		value := amount(uint64(rng.Intn(3000)))
		if rng.Intn(2) == 0 {
			_, _ = a.Deposit(owner, value, limit, now)
		} else {
			_, _ = a.Withdraw(owner, value)
		}

		sum := sumAccounts(a)
		total := a.Total()
		require.True(t, total.Eq(&sum), "step %d: total %s != sum %s", i, total.Dec(), sum.Dec())
	}
}

func TestRestoreAccounting(t *testing.T) {
	accounts := []Account{
		{Owner: alice, Deposited: *amount(40)},
		{Owner: bob, Deposited: *amount(60)},
	}

	a, err := RestoreAccounting(accounts)
	require.NoError(t, err)
	total := a.Total()
	assert.Equal(t, uint64(100), total.Uint64())

	_, err = RestoreAccounting(append(accounts, Account{Owner: alice}))
	assert.Error(t, err)
}
