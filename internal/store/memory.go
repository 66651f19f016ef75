package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/FinHutch/licencecheck/internal/licence"
)

// Memory is a mutex-guarded in-process licence store. It exists for
// tests and for development runs without a database; it implements the
// same contract as the Postgres store, including the deterministic
// earliest-issued tie-break on HWID lookups.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*licence.Licence
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*licence.Licence),
		now:     time.Now,
	}
}

// Insert persists a copy of l, failing with ErrDuplicateCode if the code
// is already present.
func (m *Memory) Insert(ctx context.Context, l *licence.Licence) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[l.Code]; ok {
		return licence.ErrDuplicateCode
	}
	cp := *l
	m.records[l.Code] = &cp
	return nil
}

// GetByCode returns a copy of the licence for code, or ErrNotFound.
func (m *Memory) GetByCode(ctx context.Context, code string) (*licence.Licence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.records[code]
	if !ok {
		return nil, licence.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// GetByHWID returns the licence bound to hwid. When several licences
// share a HWID the earliest-issued wins, then the lexically smallest
// code, so the result never depends on map iteration order.
func (m *Memory) GetByHWID(ctx context.Context, hwid string) (*licence.Licence, error) {
	if hwid == "" {
		return nil, licence.ErrNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var match *licence.Licence
	for _, l := range m.records {
		if l.HWID != hwid {
			continue
		}
		if match == nil || earlier(l, match) {
			match = l
		}
	}
	if match == nil {
		return nil, licence.ErrNotFound
	}
	cp := *match
	return &cp, nil
}

// CompareAndBind applies the binding transition under the store lock so
// concurrent callers on the same code serialize: exactly one wins.
func (m *Memory) CompareAndBind(ctx context.Context, code, hwid string) (licence.BindOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.records[code]
	if !ok {
		return licence.BindOutcomeNotFound, nil
	}
	if !l.Activated {
		now := m.now().UTC()
		l.HWID = hwid
		l.Activated = true
		l.ActivatedAt = &now
		return licence.BindOutcomeBound, nil
	}
	if l.HWID == hwid {
		return licence.BindOutcomeAlreadyBoundSame, nil
	}
	return licence.BindOutcomeConflict, nil
}

// List returns a snapshot of all licences ordered by issuance time then
// code.
func (m *Memory) List(ctx context.Context) ([]licence.Licence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]licence.Licence, 0, len(m.records))
	for _, l := range m.records {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		return earlier(&out[i], &out[j])
	})
	return out, nil
}

func earlier(a, b *licence.Licence) bool {
	if !a.IssuedAt.Equal(b.IssuedAt) {
		return a.IssuedAt.Before(b.IssuedAt)
	}
	return a.Code < b.Code
}
