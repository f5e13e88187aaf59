package merchant

import (
	"context"
	"sync"
)

var _ Directory = (*StaticDirectory)(nil)

// StaticDirectory is an in-memory Directory for tests and local runs.
type StaticDirectory struct {
	mu        sync.RWMutex
	merchants map[string]Merchant

	// CountErr, when set, makes Count fail. Used to exercise degraded estimates.
	CountErr error
}

// NewStaticDirectory creates a directory holding the given merchants.
func NewStaticDirectory(merchants ...Merchant) *StaticDirectory {
	d := &StaticDirectory{merchants: make(map[string]Merchant, len(merchants))}
	for _, m := range merchants {
		d.merchants[m.ID] = m
	}
	return d
}

// Put adds or replaces a merchant.
func (d *StaticDirectory) Put(m Merchant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.merchants[m.ID] = m
}

func (d *StaticDirectory) FindByID(_ context.Context, id string) (*Merchant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.merchants[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (d *StaticDirectory) Count(_ context.Context) (int64, error) {
	if d.CountErr != nil {
		return 0, d.CountErr
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return int64(len(d.merchants)), nil
}
