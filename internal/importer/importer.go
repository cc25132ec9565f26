// Package importer implements the certimporter command:
//
//	certimporter <action> <storeName> <certPath-or-commonName>
//
// "find" exits 0 if and only if a certificate with the given common name is
// in the store, "delete" removes every such certificate, and any other action
// adds the certificate file (DER or PEM) to the store.
package importer

import (
	"crypto/x509"
	"errors"
	"os"

	"certtrust/internal/certfile"
	"certtrust/internal/certstore"

	"github.com/rs/zerolog/log"
)

// Exit codes. They are part of the command's interface; a failed add
// shares code 1 with an unreadable file.
const (
	ExitOK        = 0
	ExitOpenFile  = 1
	ExitAdd       = 1
	ExitParse     = 2
	ExitOpenStore = 3
	ExitNotFound  = 5
	ExitDelete    = 6
	ExitUsage     = 7
)

const (
	ActionFind   = "find"
	ActionDelete = "delete"
)

// Store is the part of a certificate store the command uses.
type Store interface {
	Add(der []byte) error
	FindByCommonName(cn string) ([][]byte, error)
	DeleteByCommonName(cn string) (int, error)
	Close() error
}

type Importer struct {
	Open     func(name string) (Store, error)
	ReadFile func(path string) ([]byte, error)
}

func openSystemStore(name string) (Store, error) {
	s, err := certstore.Open(name)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// New returns an Importer working on the Windows system stores.
func New() *Importer {
	return &Importer{Open: openSystemStore, ReadFile: os.ReadFile}
}

// Run executes the command for args (without the program name) and returns
// the exit code.
func (im *Importer) Run(args []string) int {
	if len(args) != 3 {
		log.Error().Msg("Usage: certimporter <find|delete|add> <storeName> <certPath-or-commonName>")
		return ExitUsage
	}
	action, storeName, target := args[0], args[1], args[2]

	switch action {
	case ActionFind:
		return im.withStore(storeName, func(s Store) int { return find(s, storeName, target) })
	case ActionDelete:
		return im.withStore(storeName, func(s Store) int { return remove(s, storeName, target) })
	}

	data, err := im.ReadFile(target)
	if err != nil {
		log.Error().Err(err).Str("path", target).Msg("Unable to open cert file")
		return ExitOpenFile
	}
	der := certfile.Decode(data)
	if _, err := x509.ParseCertificate(der); err != nil {
		log.Error().Err(err).Str("path", target).Msg("Unable to parse certificate")
		return ExitParse
	}
	return im.withStore(storeName, func(s Store) int { return add(s, storeName, target, der) })
}

func (im *Importer) withStore(name string, fn func(Store) int) int {
	s, err := im.Open(name)
	if err != nil {
		log.Error().Err(err).Str("store", name).Msg("Unable to open cert store")
		return ExitOpenStore
	}
	defer s.Close()
	return fn(s)
}

func add(s Store, storeName, path string, der []byte) int {
	err := s.Add(der)
	if errors.Is(err, certstore.ErrInvalidCertificate) {
		log.Error().Err(err).Str("path", path).Msg("Unable to parse certificate")
		return ExitParse
	}
	if err != nil {
		log.Error().Err(err).Str("store", storeName).Msg("Unable to add certificate")
		return ExitAdd
	}
	log.Info().Str("store", storeName).Str("path", path).Msg("Certificate added")
	return ExitOK
}

func find(s Store, storeName, cn string) int {
	found, err := s.FindByCommonName(cn)
	if err != nil {
		log.Error().Err(err).Str("store", storeName).Msg("Unable to search cert store")
		return ExitNotFound
	}
	if len(found) == 0 {
		log.Info().Str("store", storeName).Str("name", cn).Msg("Certificate not found")
		return ExitNotFound
	}
	log.Info().Str("store", storeName).Str("name", cn).Int("count", len(found)).Msg("Certificate found")
	return ExitOK
}

func remove(s Store, storeName, cn string) int {
	n, err := s.DeleteByCommonName(cn)
	if err != nil {
		log.Error().Err(err).Str("store", storeName).Int("deleted", n).Msg("Unable to delete certificate")
		return ExitDelete
	}
	log.Info().Str("store", storeName).Str("name", cn).Int("deleted", n).Msg("Certificates deleted")
	return ExitOK
}
