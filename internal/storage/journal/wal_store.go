// Package journal appends committed vault events to a write-ahead log so they
// can be replayed by the event stream and audited after a restart.
package journal

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/riskvault/internal/domain"
)

const (
	defaultJournalDir   = "./wal/events"
	journalSegmentLimit = 1000
	journalMaxSegments  = 100
	eventKeyPrefix      = "vault_event_"
)

// Record is an event together with its position in the log.
type Record struct {
	Index uint64       `json:"index"`
	Event domain.Event `json:"event"`
}

// segmentLog is the subset of *gowal.Wal the journal uses.
type segmentLog interface {
	Write(index uint64, key string, value []byte) error
	Get(index uint64) (string, []byte, error)
	CurrentIndex() uint64
	Close() error
}

// WALStore is an append-only event log on top of gowal.
type WALStore struct {
	wal segmentLog
	mu  sync.RWMutex
}

func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "events_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init event journal WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Publish appends the event at the next index.
func (s *WALStore) Publish(event domain.Event) error {
	if s == nil || s.wal == nil {
		return errors.New("event journal is not initialized")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal vault event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Write(s.wal.CurrentIndex()+1, eventKeyPrefix+string(event.Type), payload)
}

// EventsAfter returns events with an index strictly greater than index, oldest first.
// Entries already dropped by segment rotation are skipped; a corrupted entry is an error.
func (s *WALStore) EventsAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("event journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			return nil, errors.Wrapf(err, "read vault event %d", idx)
		}
		if !strings.HasPrefix(key, eventKeyPrefix) {
			continue
		}
		var event domain.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.Wrapf(err, "decode vault event %d", idx)
		}
		records = append(records, Record{Index: idx, Event: event})
	}

	return records, nil
}

func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
