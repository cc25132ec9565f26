package certfile

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDER(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "certfile.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func TestLoadPEMAndDER(t *testing.T) {
	der := testDER(t)
	dir := t.TempDir()

	pemPath := filepath.Join(dir, "cert.pem")
	require.NoError(t, Write(pemPath, der))
	derPath := filepath.Join(dir, "cert.der")
	require.NoError(t, os.WriteFile(derPath, der, 0o644))

	for _, path := range []string{pemPath, derPath} {
		cert, err := Load(path)
		require.NoError(t, err, path)
		assert.Equal(t, "certfile.test", cert.Subject.CommonName)
	}
}

func TestDecodeSkipsOtherBlocks(t *testing.T) {
	der := testDER(t)
	data := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte{1, 2, 3}})
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	assert.Equal(t, der, Decode(data))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.pem"))
	assert.ErrorContains(t, err, "unable to read")

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "unable to parse")
}
