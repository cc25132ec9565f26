package trust

import (
	"context"
	"crypto/x509"
)

// Store gives access to the user-domain trust settings of certificates.
type Store interface {
	// Settings returns the current settings of cert. A certificate without
	// settings yields an error matching ErrNotFound. The returned list is a
	// snapshot and must not be modified by the caller.
	Settings(ctx context.Context, cert *x509.Certificate) (Settings, error)

	// SetSettings replaces the whole settings list of cert.
	SetSettings(ctx context.Context, cert *x509.Certificate, settings Settings) error

	// NewEntry builds a store-specific entry for policy p with result r.
	NewEntry(p Policy, r Result) (Entry, error)
}
