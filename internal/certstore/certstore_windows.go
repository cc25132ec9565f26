//go:build windows
// +build windows

package certstore

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/windows"
)

const (
	encoding = windows.X509_ASN_ENCODING | windows.PKCS_7_ASN_ENCODING

	// CERT_FIND_SUBJECT_STR_W
	findSubjectStr = 0x00080007

	cryptENotFound syscall.Errno = 0x80092004
	cryptEExists   syscall.Errno = 0x80092005
)

// Store is an open system certificate store.
type Store struct {
	h    windows.Handle
	name string
}

// Open opens the named system store (e.g. "ROOT", "MY") of the current user.
func Open(name string) (*Store, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	h, err := windows.CertOpenSystemStore(0, p)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s cert store: %w", name, err)
	}
	return &Store{h: h, name: name}, nil
}

func (s *Store) Close() error {
	return windows.CertCloseStore(s.h, 0)
}

// Add adds the DER certificate to the store. A certificate that is already
// present is not an error.
func (s *Store) Add(der []byte) error {
	if len(der) == 0 {
		return ErrInvalidCertificate
	}
	ctx, err := windows.CertCreateCertificateContext(encoding, &der[0], uint32(len(der)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	defer windows.CertFreeCertificateContext(ctx)

	err = windows.CertAddCertificateContextToStore(s.h, ctx, windows.CERT_STORE_ADD_NEW, nil)
	if errors.Is(err, cryptEExists) {
		log.Debug().Str("store", s.name).Msg("Certificate already in store")
		return nil
	}
	if err != nil {
		return fmt.Errorf("unable to add certificate to %s store: %w", s.name, err)
	}
	return nil
}

func (s *Store) find(cn *uint16, prev *windows.CertContext) (*windows.CertContext, error) {
	ctx, err := windows.CertFindCertificateInStore(s.h, encoding, 0, findSubjectStr, unsafe.Pointer(cn), prev)
	if ctx == nil {
		if err == nil || errors.Is(err, cryptENotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ctx, nil
}

// FindByCommonName returns the DER bytes of every certificate whose subject
// contains cn.
func (s *Store) FindByCommonName(cn string) ([][]byte, error) {
	p, err := windows.UTF16PtrFromString(cn)
	if err != nil {
		return nil, err
	}

	var found [][]byte
	var ctx *windows.CertContext
	for {
		// the previous context is released by the search itself
		ctx, err = s.find(p, ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to search %s store: %w", s.name, err)
		}
		if ctx == nil {
			return found, nil
		}
		der := make([]byte, ctx.Length)
		copy(der, unsafe.Slice(ctx.EncodedCert, ctx.Length))
		found = append(found, der)
	}
}

// DeleteByCommonName deletes every certificate whose subject contains cn and
// returns how many were deleted.
func (s *Store) DeleteByCommonName(cn string) (int, error) {
	p, err := windows.UTF16PtrFromString(cn)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for {
		ctx, err := s.find(p, nil)
		if err != nil {
			return deleted, fmt.Errorf("unable to search %s store: %w", s.name, err)
		}
		if ctx == nil {
			return deleted, nil
		}
		// frees ctx, also on failure
		if err := windows.CertDeleteCertificateFromStore(ctx); err != nil {
			return deleted, fmt.Errorf("unable to delete certificate from %s store: %w", s.name, err)
		}
		deleted++
	}
}
