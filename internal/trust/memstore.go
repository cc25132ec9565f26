package trust

import (
	"context"
	"crypto/sha1"
	"crypto/x509"
	"errors"
	"fmt"
	"slices"
)

// MemoryStore is a Store kept in memory, keyed by certificate fingerprint.
// It is used by tests and dry runs.
type MemoryStore struct {
	settings map[[sha1.Size]byte]Settings
	newEntry func(Policy, Result) (Entry, error)

	// Writes counts successful SetSettings calls.
	Writes int

	// Known, when non-nil, limits NewEntry to these policies.
	Known []Policy

	ReadErr  error
	WriteErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{settings: make(map[[sha1.Size]byte]Settings)}
}

// Snapshot copies the current settings of cert in store into a new
// MemoryStore. Entries are still created by store, so reconciling against the
// snapshot fails where reconciling against store would.
func Snapshot(ctx context.Context, store Store, cert *x509.Certificate) (*MemoryStore, error) {
	s, err := store.Settings(ctx, cert)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, NewError(KindStoreAccess, "read trust settings", err)
	}
	m := NewMemoryStore()
	m.newEntry = store.NewEntry
	if err == nil {
		m.Put(cert, s)
	}
	return m, nil
}

// Put seeds the settings of cert without counting a write.
func (m *MemoryStore) Put(cert *x509.Certificate, s Settings) {
	m.settings[sha1.Sum(cert.Raw)] = slices.Clone(s)
}

func (m *MemoryStore) Settings(_ context.Context, cert *x509.Certificate) (Settings, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	s, ok := m.settings[sha1.Sum(cert.Raw)]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(s), nil
}

func (m *MemoryStore) SetSettings(_ context.Context, cert *x509.Certificate, s Settings) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.settings[sha1.Sum(cert.Raw)] = slices.Clone(s)
	m.Writes++
	return nil
}

func (m *MemoryStore) NewEntry(p Policy, r Result) (Entry, error) {
	if m.newEntry != nil {
		return m.newEntry(p, r)
	}
	if m.Known != nil && !slices.ContainsFunc(m.Known, p.Equal) {
		return nil, fmt.Errorf("no policy object for %s", p)
	}
	return NewEntry(p, r), nil
}
