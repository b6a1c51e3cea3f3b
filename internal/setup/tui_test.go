package setup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/riskvault/config"
	"github.com/vadiminshakov/riskvault/internal/identity"
)

func TestBuild_ParsesIntoValidConfig(t *testing.T) {
	t.Setenv(config.EnvOwnerKey, "")

	a := defaultAnswers()
	a.Owner = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	a.Pair = "eth_usdt"

	tmp, err := Build(a)
	require.NoError(t, err)
	assert.Equal(t, "ETH_USDT", tmp.Pair)
	assert.Equal(t, "2000", tmp.StaticPrice)
	assert.Equal(t, time.Hour, tmp.MinInterval)

	data, err := config.Marshal(tmp)
	require.NoError(t, err)
	cfg, err := config.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, a.Owner, cfg.Vault.Owner.Hex())
	assert.Equal(t, 20, cfg.Vault.MaxHistoryLength)
}

func TestBuild_RejectsBadInput(t *testing.T) {
	a := defaultAnswers()
	a.MinInterval = "soon"
	_, err := Build(a)
	assert.Error(t, err)

	a = defaultAnswers()
	a.HighMultiplier = "-5"
	_, err = Build(a)
	assert.Error(t, err)
}

func TestWriteOwnerKey_KeepsExistingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BINANCE_API_KEY=abc\n"), 0o600))

	signer, err := identity.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, writeOwnerKey(path, signer))

	env, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", env["BINANCE_API_KEY"])

	loaded, err := identity.LoadKey(env[config.EnvOwnerKey])
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), loaded.Address())
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validatePair("BTC_USDT"))
	assert.Error(t, validatePair("BTCUSDT"))
	assert.NoError(t, validatePositiveDecimal("0.5"))
	assert.Error(t, validatePositiveDecimal("0"))
	assert.NoError(t, validateInteger("1000"))
	assert.Error(t, validateInteger("10.5"))
	assert.NoError(t, validateHistory("2"))
	assert.Error(t, validateHistory("1"))
	assert.Error(t, validateDuration("-1m"))
}
