package identity

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSigner_SignRecover(t *testing.T) {
	s, err := LoadKey("0x" + testKey)
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", s.Address().Hex())
	assert.Equal(t, testKey, s.KeyHex())

	msg := []byte(`{"op":"deposit","amount":"100"}`)
	sig, err := s.Sign(msg)
	require.NoError(t, err)
	assert.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	addr, err := Recover(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)

	t.Run("raw recovery id accepted", func(t *testing.T) {
		raw := append([]byte(nil), sig...)
		raw[64] -= 27
		addr, err := Recover(msg, raw)
		require.NoError(t, err)
		assert.Equal(t, s.Address(), addr)
	})

	t.Run("tampered message recovers another address", func(t *testing.T) {
		addr, err := Recover([]byte(`{"op":"deposit","amount":"999"}`), sig)
		if err == nil {
			assert.NotEqual(t, s.Address(), addr)
		}
	})

	t.Run("malformed signatures", func(t *testing.T) {
		_, err := Recover(msg, sig[:64])
		assert.ErrorIs(t, err, ErrInvalidSignature)

		bad := append([]byte(nil), sig...)
		bad[64] = 5
		_, err = Recover(msg, bad)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestLoadKey_Invalid(t *testing.T) {
	_, err := LoadKey("")
	assert.Error(t, err)
	_, err = LoadKey("zz")
	assert.Error(t, err)
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", a.Hex())

	_, err = ParseAddress("0x1234")
	assert.Error(t, err)
}

func TestRecover_RejectsHighS(t *testing.T) {
	s, err := LoadKey(testKey)
	require.NoError(t, err)
	msg := []byte(`{"action":"deposit","amount":"10"}`)
	sig, err := s.Sign(msg)
	require.NoError(t, err)

	// s' = n - s with the recovery id flipped recovers the same key
	twin := append([]byte(nil), sig...)
	sv := new(big.Int).SetBytes(twin[32:64])
	new(big.Int).Sub(crypto.S256().Params().N, sv).FillBytes(twin[32:64])
	twin[64] ^= 1

	_, err = Recover(msg, twin)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestReplayGuard(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	g := NewReplayGuard(5*time.Minute, func() time.Time { return now })
	alice := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	bob := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	body := []byte(`{"action":"deposit"}`)

	require.NoError(t, g.Accept(alice, body, now.Add(time.Minute)))
	assert.ErrorIs(t, g.Accept(alice, body, now.Add(time.Minute)), ErrReplayed)
	assert.NoError(t, g.Accept(alice, []byte(`{"action":"withdraw"}`), now.Add(time.Minute)))
	assert.NoError(t, g.Accept(bob, body, now.Add(time.Minute)), "keyed by signer too")

	assert.ErrorIs(t, g.Accept(alice, []byte("late"), now), ErrExpired)
	assert.ErrorIs(t, g.Accept(alice, []byte("far"), now.Add(time.Hour)), ErrExpired)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, g.Accept(alice, body, now.Add(time.Minute)), "expired entries are forgotten")
}

func TestReplayGuard_RestoreAcrossRestart(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	signer := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	body := []byte(`{"action":"withdraw","amount":"5"}`)

	var saved []ReplayEntry
	g := NewReplayGuard(5*time.Minute, clock)
	g.OnAccept(func() error {
		saved = g.Entries()
		return nil
	})
	require.NoError(t, g.Accept(signer, body, now.Add(time.Minute)))
	require.NoError(t, g.Accept(signer, []byte("short"), now.Add(10*time.Second)))
	require.Len(t, saved, 2)
	assert.Equal(t, RequestKey(signer, []byte("short")), saved[0].Key)

	restarted := NewReplayGuard(5*time.Minute, clock)
	restarted.Restore(saved)
	assert.ErrorIs(t, restarted.Accept(signer, body, now.Add(time.Minute)), ErrReplayed)

	now = now.Add(30 * time.Second)
	late := NewReplayGuard(5*time.Minute, clock)
	late.Restore(saved)
	assert.Len(t, late.Entries(), 1, "expired entries are dropped on restore")
}

func TestReplayGuard_OnAcceptFailure(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	g := NewReplayGuard(5*time.Minute, func() time.Time { return now })
	g.OnAccept(func() error { return errors.New("disk full") })

	signer := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	body := []byte(`{"action":"mint"}`)
	assert.Error(t, g.Accept(signer, body, now.Add(time.Minute)))
	assert.ErrorIs(t, g.Accept(signer, body, now.Add(time.Minute)), ErrReplayed)
}
