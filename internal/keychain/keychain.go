// Package keychain reads and writes user-domain trust settings and imports
// certificates into the login keychain by driving the security tool.
package keychain

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"certtrust/internal/trust"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupported        = errors.New("keychain trust settings are only supported on macOS")
	ErrEmptyCertificate   = errors.New("empty certificate data")
	ErrInvalidCertificate = errors.New("invalid certificate data")
)

// Runner runs the security tool with args and returns its combined output.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

// Keychain is a trust.Store over the user trust domain.
type Keychain struct {
	// Path of the keychain certificates are imported into.
	Path string
	Run  Runner
	Now  func() time.Time
}

var _ trust.Store = (*Keychain)(nil)

// DefaultPath returns the current user's login keychain.
func DefaultPath() (string, error) {
	return homedir.Expand("~/Library/Keychains/login.keychain-db")
}

func runSecurity(ctx context.Context, args ...string) ([]byte, error) {
	log.Debug().Strs("args", args).Msg("Running security")
	return exec.CommandContext(ctx, "security", args...).CombinedOutput()
}

func (k *Keychain) now() time.Time {
	if k.Now != nil {
		return k.Now()
	}
	return time.Now()
}

func cmdErr(err error, args []string, out []byte) error {
	return fmt.Errorf("security %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
}

func (k *Keychain) export(ctx context.Context) (*document, error) {
	f, err := os.CreateTemp("", "trust-settings")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()
	f.Close()
	defer os.Remove(name)

	// no -d / -s flag: user domain
	args := []string{"trust-settings-export", name}
	out, err := k.Run(ctx, args...)
	if err != nil {
		if bytes.Contains(out, []byte("No Trust Settings were found")) {
			return nil, trust.ErrNotFound
		}
		return nil, cmdErr(err, args, out)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust settings: %w", err)
	}
	return decodeDocument(data)
}

// Settings returns the user-domain trust settings of cert.
func (k *Keychain) Settings(ctx context.Context, cert *x509.Certificate) (trust.Settings, error) {
	doc, err := k.export(ctx)
	if errors.Is(err, trust.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, trust.NewError(trust.KindStoreAccess, "export trust settings", err)
	}

	s, ok, err := doc.settings(fingerprint(cert))
	if err != nil {
		return nil, trust.NewError(trust.KindStoreAccess, "decode trust settings", err)
	}
	if !ok {
		return nil, trust.ErrNotFound
	}
	return s, nil
}

// SetSettings replaces the user-domain trust settings of cert. The domain is
// exported again right before the import so records of other certificates
// are carried over as they are now.
func (k *Keychain) SetSettings(ctx context.Context, cert *x509.Certificate, s trust.Settings) error {
	doc, err := k.export(ctx)
	if errors.Is(err, trust.ErrNotFound) {
		doc, err = newDocument(), nil
	}
	if err != nil {
		return err
	}
	if err := doc.setSettings(cert, s, k.now()); err != nil {
		return trust.NewError(trust.KindWriteBack, "build trust settings record", err)
	}

	data, err := doc.encode()
	if err != nil {
		return err
	}

	f, err := os.CreateTemp("", "trust-settings")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write trust settings: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write trust settings: %w", err)
	}

	args := []string{"trust-settings-import", f.Name()}
	if out, err := k.Run(ctx, args...); err != nil {
		return cmdErr(err, args, out)
	}
	return nil
}

// NewEntry builds an entry for one of the policies the OS knows by name.
func (k *Keychain) NewEntry(p trust.Policy, r trust.Result) (trust.Entry, error) {
	if _, ok := trust.PolicyName(p); !ok {
		return nil, fmt.Errorf("no policy object for %s", p)
	}
	return trust.NewEntry(p, r), nil
}

// Import adds the DER certificate to the keychain. A certificate that is
// already present is not an error.
func (k *Keychain) Import(ctx context.Context, der []byte) (*x509.Certificate, error) {
	if len(der) == 0 {
		return nil, ErrEmptyCertificate
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	f, err := os.CreateTemp("", "cert-*.pem")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if err := pem.Encode(f, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write certificate: %w", err)
	}

	args := []string{"add-certificates", "-k", k.Path, f.Name()}
	out, err := k.Run(ctx, args...)
	if err != nil {
		if !bytes.Contains(out, []byte("already exists")) {
			return nil, cmdErr(err, args, out)
		}
		log.Debug().Str("subject", cert.Subject.CommonName).Msg("Certificate already in keychain")
	}
	return cert, nil
}

var sha1Line = regexp.MustCompile(`(?m)^SHA-1 hash:\s*([0-9A-Fa-f]{40})\s*$`)

// IsInstalled reports whether cert is present in the keychain.
func (k *Keychain) IsInstalled(ctx context.Context, cert *x509.Certificate) (bool, error) {
	args := []string{"find-certificate", "-a", "-Z", "-c", cert.Subject.CommonName, k.Path}
	out, err := k.Run(ctx, args...)
	if err != nil {
		if bytes.Contains(out, []byte("could not be found")) {
			return false, nil
		}
		return false, cmdErr(err, args, out)
	}

	want := fingerprint(cert)
	for _, m := range sha1Line.FindAllSubmatch(out, -1) {
		if strings.EqualFold(string(m[1]), want) {
			return true, nil
		}
	}
	return false, nil
}
