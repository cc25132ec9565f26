package cmd

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"certtrust/internal/certfile"
	"certtrust/internal/logging"
	"certtrust/internal/trust"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type memKeychain struct {
	*trust.MemoryStore
	imported map[string]bool
}

func (m *memKeychain) Import(_ context.Context, der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	m.imported[string(cert.Raw)] = true
	return cert, nil
}

func (m *memKeychain) IsInstalled(_ context.Context, cert *x509.Certificate) (bool, error) {
	return m.imported[string(cert.Raw)], nil
}

func useStore(t *testing.T) *memKeychain {
	t.Helper()
	m := &memKeychain{MemoryStore: trust.NewMemoryStore(), imported: map[string]bool{}}
	old := openStore
	openStore = func(string) (Store, error) { return m, nil }
	t.Cleanup(func() { openStore = old })
	return m
}

func writeCert(t *testing.T, dir string) (string, *x509.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tpl := &x509.Certificate{
		SerialNumber:          big.NewInt(3),
		Subject:               pkix.Name{CommonName: "cmd.test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	path := filepath.Join(dir, "ca.pem")
	require.NoError(t, certfile.Write(path, der))
	return path, cert
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "certtrust.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log-level: error\n"+body), 0o644))
	return path
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logging.Setup(io.Discard)
	t.Cleanup(func() { logging.Setup(os.Stdout) })

	// flag values survive between executions of the same command tree
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				require.NoError(t, sv.Replace(nil))
			} else {
				require.NoError(t, f.Value.Set(f.DefValue))
			}
			f.Changed = false
		})
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resultFor(t *testing.T, s trust.Settings, p trust.Policy) trust.Result {
	t.Helper()
	found := s.Find(p)
	require.Len(t, found, 1)
	r, ok := found[0].Result()
	require.True(t, ok)
	return r
}

func TestTrustAndDenyCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")
	certPath, cert := writeCert(t, dir)
	store := useStore(t)
	store.Put(cert, trust.Settings{trust.NewEntry(trust.PolicySSL, trust.ResultDeny)})

	_, err := execute(t, "trust", certPath, "--policy", "ssl", "--policy", "smime", "--config", cfg)
	require.NoError(t, err)

	s, err := store.Settings(context.Background(), cert)
	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.Equal(t, trust.ResultConfirm, resultFor(t, s, trust.PolicySSL))
	assert.Equal(t, trust.ResultConfirm, resultFor(t, s, trust.PolicySMIME))

	_, err = execute(t, "deny", certPath, "--policy", "1.2.840.113635.100.1.8", "--config", cfg)
	require.NoError(t, err)
	s, err = store.Settings(context.Background(), cert)
	require.NoError(t, err)
	assert.Equal(t, trust.ResultDeny, resultFor(t, s, trust.PolicySMIME))
	assert.Equal(t, 2, store.Writes)
}

func TestRemoveCommandDefaultsToConfiguredPolicies(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "default-policies: [ssl]\n")
	certPath, cert := writeCert(t, dir)
	store := useStore(t)
	store.Put(cert, trust.Settings{
		trust.NewEntry(trust.PolicySSL, trust.ResultConfirm),
		trust.NewEntry(trust.PolicyBasicX509, trust.ResultConfirm),
	})

	_, err := execute(t, "remove", certPath, "--config", cfg)
	require.NoError(t, err)

	s, err := store.Settings(context.Background(), cert)
	require.NoError(t, err)
	assert.Empty(t, s.Find(trust.PolicySSL))
	assert.Len(t, s.Find(trust.PolicyBasicX509), 1)
}

func TestApplyCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, `actions:
  - policy: ssl
    action: trust
  - policy: basic
    action: deny
  - policy: 1.2.840.113635.100.1.11
    action: remove
`)
	certPath, cert := writeCert(t, dir)
	store := useStore(t)
	store.Put(cert, trust.Settings{trust.NewEntry(trust.PolicyIPSec, trust.ResultConfirm)})

	_, err := execute(t, "apply", certPath, "--config", cfg)
	require.NoError(t, err)

	s, err := store.Settings(context.Background(), cert)
	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.Equal(t, trust.ResultConfirm, resultFor(t, s, trust.PolicySSL))
	assert.Equal(t, trust.ResultDeny, resultFor(t, s, trust.PolicyBasicX509))
}

func TestApplyRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	certPath, _ := writeCert(t, dir)
	store := useStore(t)

	cfg := writeConfig(t, dir, "actions:\n  - policy: ssl\n    action: allow\n")
	_, err := execute(t, "apply", certPath, "--config", cfg)
	assert.ErrorContains(t, err, "unknown action")

	cfg = writeConfig(t, dir, "actions:\n  - policy: ssl\n    action: trust\n  - policy: sslServer\n    action: deny\n")
	_, err = execute(t, "apply", certPath, "--config", cfg)
	assert.ErrorIs(t, err, trust.ErrInvalidInput)
	assert.Zero(t, store.Writes)
}

func TestInstallCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "default-policies: [ssl, basic]\n")
	certPath, cert := writeCert(t, dir)
	store := useStore(t)

	_, err := execute(t, "installed", certPath, "--config", cfg)
	assert.Error(t, err)

	_, err = execute(t, "install", certPath, "--config", cfg)
	require.NoError(t, err)
	assert.True(t, store.imported[string(cert.Raw)])

	s, err := store.Settings(context.Background(), cert)
	require.NoError(t, err)
	assert.Equal(t, trust.ResultConfirm, resultFor(t, s, trust.PolicySSL))
	assert.Equal(t, trust.ResultConfirm, resultFor(t, s, trust.PolicyBasicX509))

	_, err = execute(t, "installed", certPath, "--config", cfg)
	assert.NoError(t, err)

	// installing again changes nothing
	_, err = execute(t, "install", certPath, "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Writes)
}

func TestImportCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")
	certPath, cert := writeCert(t, dir)
	store := useStore(t)

	_, err := execute(t, "import", certPath, "--config", cfg)
	require.NoError(t, err)
	assert.True(t, store.imported[string(cert.Raw)])

	_, err = execute(t, "import", filepath.Join(dir, "missing.pem"), "--config", cfg)
	assert.ErrorContains(t, err, "unable to read certificate file")
}

func TestShowCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")
	certPath, cert := writeCert(t, dir)
	store := useStore(t)

	out, err := execute(t, "show", certPath, "-o", "text", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "no trust settings")

	store.Put(cert, trust.Settings{
		trust.NewEntry(trust.PolicySSL, trust.ResultConfirm),
		{trust.KeyPolicy: []byte(trust.PolicyIPSec), trust.KeyResult: uint64(trust.ResultDeny), "kSecTrustSettingsKeyUsage": uint64(1)},
	})

	out, err = execute(t, "show", certPath, "-o", "json", "--config", cfg)
	require.NoError(t, err)
	var views []settingView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "sslServer", views[0].Policy)
	assert.Equal(t, "1.2.840.113635.100.1.3", views[0].OID)
	assert.Equal(t, "confirm", views[0].Result)
	assert.Equal(t, "IPSec", views[1].Policy)
	assert.Equal(t, "deny", views[1].Result)
	assert.Contains(t, views[1].Extra, "kSecTrustSettingsKeyUsage")

	out, err = execute(t, "show", certPath, "-o", "yaml", "--config", cfg)
	require.NoError(t, err)
	var yviews []settingView
	require.NoError(t, yaml.Unmarshal([]byte(out), &yviews))
	assert.Len(t, yviews, 2)

	out, err = execute(t, "show", certPath, "-o", "text", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "sslServer")
	assert.Contains(t, out, "kSecTrustSettingsKeyUsage: 1")

	_, err = execute(t, "show", certPath, "-o", "xml", "--config", cfg)
	assert.ErrorContains(t, err, "unknown output format")
}

func TestDryRun(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "default-policies: [ssl, basic]\n")
	certPath, cert := writeCert(t, dir)
	store := useStore(t)
	store.Put(cert, trust.Settings{trust.NewEntry(trust.PolicySSL, trust.ResultDeny)})

	out, err := execute(t, "trust", certPath, "--policy", "ssl", "--policy", "eap", "--dry-run", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "sslServer")
	assert.Contains(t, out, "EAP")
	assert.Contains(t, out, "confirm")

	s, err := store.Settings(context.Background(), cert)
	require.NoError(t, err)
	require.Len(t, s, 1)
	assert.Equal(t, trust.ResultDeny, resultFor(t, s, trust.PolicySSL))

	out, err = execute(t, "install", certPath, "--dry-run", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "basicX509")
	assert.False(t, store.imported[string(cert.Raw)])
	assert.Zero(t, store.Writes)

	// without the flag the same command writes
	_, err = execute(t, "trust", certPath, "--policy", "ssl", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Writes)
}

func TestGenerateCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "default-policies: [ssl]\n")
	caCert := filepath.Join(dir, "ca.pem")
	caKey := filepath.Join(dir, "ca-key.pem")

	_, err := execute(t, "generate", "Test Root", "--ca", "--org", "Test Org",
		"--cert-out", caCert, "--key-out", caKey, "--valid-for", "48h", "--config", cfg)
	require.NoError(t, err)

	ca, err := certfile.LoadCertificate(caCert)
	require.NoError(t, err)
	assert.True(t, ca.X509().IsCA)
	assert.Equal(t, []string{"Test Org"}, ca.X509().Subject.Organization)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), ca.X509().NotAfter, time.Minute)
	_, err = certfile.LoadKey(caKey)
	require.NoError(t, err)

	leafCert := filepath.Join(dir, "leaf.der")
	_, err = execute(t, "generate", "leaf.test", "--san", "127.0.0.1", "--san", "www.leaf.test", "--der",
		"--issuer-cert", caCert, "--issuer-key", caKey,
		"--cert-out", leafCert, "--key-out", filepath.Join(dir, "leaf-key.pem"), "--config", cfg)
	require.NoError(t, err)

	leaf, err := certfile.LoadCertificate(leafCert)
	require.NoError(t, err)
	assert.Equal(t, "Test Root", leaf.X509().Issuer.CommonName)
	assert.Equal(t, []string{"leaf.test", "www.leaf.test"}, leaf.X509().DNSNames)
	assert.NoError(t, leaf.X509().CheckSignatureFrom(ca.X509()))

	// a generated root can be installed as is
	store := useStore(t)
	_, err = execute(t, "install", caCert, "--config", cfg)
	require.NoError(t, err)
	assert.True(t, store.imported[string(ca.DER())])
	s, err := store.Settings(context.Background(), ca.X509())
	require.NoError(t, err)
	assert.Equal(t, trust.ResultConfirm, resultFor(t, s, trust.PolicySSL))
}

func TestGenerateRejectsHalfIssuer(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")
	_, err := execute(t, "generate", "leaf.test", "--issuer-cert", filepath.Join(dir, "ca.pem"),
		"--cert-out", filepath.Join(dir, "c.pem"), "--key-out", filepath.Join(dir, "k.pem"), "--config", cfg)
	assert.ErrorContains(t, err, "go together")
	assert.NoFileExists(t, filepath.Join(dir, "k.pem"))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "certtrust version "+Version+"\n", out)
}
