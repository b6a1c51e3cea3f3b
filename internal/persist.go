package internal

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vadiminshakov/riskvault/internal/identity"
	"github.com/vadiminshakov/riskvault/internal/storage/statefile"
	"github.com/vadiminshakov/riskvault/internal/token"
	"github.com/vadiminshakov/riskvault/internal/vault"
)

// snapshot is the on-disk document: the vault ledger, the token it holds in custody
// and the signed requests already accepted, so none can be replayed after a restart.
type snapshot struct {
	Vault  vault.State            `json:"vault"`
	Token  token.State            `json:"token"`
	Replay []identity.ReplayEntry `json:"replay,omitempty"`
}

// persister saves vault, token and replay guard together so a restart never sees one
// without the others. Save is called by the vault under its own lock; nothing here
// calls back into the vault.
type persister struct {
	mu    sync.Mutex
	store *statefile.Store[snapshot]
	token *token.Memory
	guard *identity.ReplayGuard
	last  vault.State
}

func newPersister(store *statefile.Store[snapshot], tok *token.Memory, guard *identity.ReplayGuard) *persister {
	p := &persister{store: store, token: tok, guard: guard}
	guard.OnAccept(p.saveSide)
	return p
}

func (p *persister) Save(st vault.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = st
	return p.saveLocked()
}

// saveSide persists token or guard changes made outside the vault.
func (p *persister) saveSide() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saveLocked()
}

func (p *persister) saveLocked() error {
	return p.store.Save(snapshot{
		Vault:  p.last,
		Token:  p.token.Snapshot(),
		Replay: p.guard.Entries(),
	})
}

// persistentLedger persists token balances after mints and approvals made outside the vault.
type persistentLedger struct {
	*token.Memory
	persister *persister
}

func (l *persistentLedger) Mint(to common.Address, amount *uint256.Int) error {
	if err := l.Memory.Mint(to, amount); err != nil {
		return err
	}
	return l.persister.saveSide()
}

func (l *persistentLedger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if err := l.Memory.Approve(owner, spender, amount); err != nil {
		return err
	}
	return l.persister.saveSide()
}
