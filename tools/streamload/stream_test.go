package main

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStream(t *testing.T) {
	raw := ": heartbeat\n\n" +
		"id: 1\nevent: deposit\ndata: {\"amount\":\"100\"}\n\n" +
		"id: 2\nevent: rebalance\ndata: {\"a\":1}\ndata: {\"b\":2}\n\n"

	var got []message
	err := readStream(strings.NewReader(raw), func(m message) { got = append(got, m) })
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	require.Len(t, got, 2)
	assert.Equal(t, message{id: "1", kind: "deposit", data: `{"amount":"100"}`}, got[0])
	assert.Equal(t, "rebalance", got[1].kind)
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}", got[1].data)
}

func TestStats(t *testing.T) {
	s := newStats()
	s.observe(message{id: "7", kind: "deposit"})
	s.observe(message{id: "8", kind: "deposit"})
	s.observe(message{})
	s.connected.Add(2)

	snap := s.snapshot()
	assert.Equal(t, int64(3), snap.events)
	assert.Equal(t, int64(2), snap.byType["deposit"])
	assert.Equal(t, int64(1), snap.byType["message"])
	assert.Equal(t, "8", snap.lastID)
	assert.Contains(t, snap.String(), "connected=2")
}
