package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCertManager(t *testing.T) {
	_, err := newCertManager(nil, "")
	assert.Error(t, err)

	m, err := newCertManager([]string{"vault.example.com"}, t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, m.HostPolicy(t.Context(), "vault.example.com"))
	assert.Error(t, m.HostPolicy(t.Context(), "other.example.com"))
}
