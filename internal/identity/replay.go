package identity

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// DefaultSignatureTTL bounds how far ahead a signed request deadline may lie.
const DefaultSignatureTTL = 5 * time.Minute

var (
	ErrExpired  = errors.New("request expired")
	ErrReplayed = errors.New("request already processed")
)

// ReplayEntry is an accepted request kept until its deadline.
type ReplayEntry struct {
	Key      common.Hash `json:"key"`
	Deadline int64       `json:"deadline"`
}

// ReplayGuard accepts each signed request once until its deadline passes.
// Requests are keyed by signer and body, so re-encodings of the same
// signature cannot be replayed.
type ReplayGuard struct {
	mu       sync.Mutex
	seen     map[common.Hash]time.Time
	maxTTL   time.Duration
	nowFunc  func() time.Time
	onAccept func() error
}

func NewReplayGuard(maxTTL time.Duration, now func() time.Time) *ReplayGuard {
	if now == nil {
		now = time.Now
	}
	return &ReplayGuard{
		seen:    make(map[common.Hash]time.Time),
		maxTTL:  maxTTL,
		nowFunc: now,
	}
}

// OnAccept registers fn to run after every accepted request, outside the guard lock.
// A failing fn fails the request; the entry stays recorded.
func (g *ReplayGuard) OnAccept(fn func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onAccept = fn
}

// RequestKey identifies a signed request independently of its signature encoding.
func RequestKey(signer common.Address, body []byte) common.Hash {
	return crypto.Keccak256Hash(signer.Bytes(), body)
}

// Accept records the request signed by signer. The deadline must lie in the
// future but no further than maxTTL.
func (g *ReplayGuard) Accept(signer common.Address, body []byte, deadline time.Time) error {
	now := g.nowFunc()
	if !deadline.After(now) {
		return errors.Wrapf(ErrExpired, "deadline %s", deadline.UTC().Format(time.RFC3339))
	}
	if deadline.Sub(now) > g.maxTTL {
		return errors.Wrapf(ErrExpired, "deadline more than %s ahead", g.maxTTL)
	}

	key := RequestKey(signer, body)

	g.mu.Lock()
	g.pruneLocked(now)
	if _, ok := g.seen[key]; ok {
		g.mu.Unlock()
		return ErrReplayed
	}
	g.seen[key] = deadline
	hook := g.onAccept
	g.mu.Unlock()

	if hook != nil {
		if err := hook(); err != nil {
			return errors.Wrap(err, "persist accepted request")
		}
	}
	return nil
}

// Entries returns the unexpired accepted requests ordered by deadline.
func (g *ReplayGuard) Entries() []ReplayEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneLocked(g.nowFunc())
	out := make([]ReplayEntry, 0, len(g.seen))
	for k, d := range g.seen {
		out = append(out, ReplayEntry{Key: k, Deadline: d.Unix()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Deadline != out[j].Deadline {
			return out[i].Deadline < out[j].Deadline
		}
		return out[i].Key.Cmp(out[j].Key) < 0
	})
	return out
}

// Restore reloads entries saved before a restart. Expired ones are dropped.
func (g *ReplayGuard) Restore(entries []ReplayEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, e := range entries {
		g.seen[e.Key] = time.Unix(e.Deadline, 0)
	}
	g.pruneLocked(g.nowFunc())
}

func (g *ReplayGuard) pruneLocked(now time.Time) {
	for h, exp := range g.seen {
		if !exp.After(now) {
			delete(g.seen, h)
		}
	}
}
