package certfile

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

const pemRSAPrivateKey = "RSA PRIVATE KEY"

// PrivateKey is an RSA key that signs the certificates made for it.
type PrivateKey struct {
	key *rsa.PrivateKey
}

// Certificate keeps a parsed certificate together with its DER bytes.
type Certificate struct {
	cert *x509.Certificate
	der  []byte
}

// Issuer signs certificates for other keys.
type Issuer struct {
	Cert *Certificate
	Key  *PrivateKey
}

// GenerateKey creates an RSA key of the given size in bits.
func GenerateKey(bits int) (*PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("unable to generate %d bit key: %w", bits, err)
	}
	return &PrivateKey{key: key}, nil
}

// LoadKey reads a PEM encoded RSA key in PKCS #1 or PKCS #8 form.
func LoadKey(path string) (*PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key file %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("unable to decode PEM private key in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &PrivateKey{key: key}, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key in %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key in %s is %T, not RSA", path, parsed)
	}
	return &PrivateKey{key: key}, nil
}

// PEMEncoded returns the key as a PKCS #1 PEM block.
func (k *PrivateKey) PEMEncoded() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemRSAPrivateKey, Bytes: x509.MarshalPKCS1PrivateKey(k.key)})
}

// WriteFile stores the key at path, readable by the owner only.
func (k *PrivateKey) WriteFile(path string) error {
	if err := os.WriteFile(path, k.PEMEncoded(), 0600); err != nil {
		return fmt.Errorf("unable to write private key %s: %w", path, err)
	}
	return nil
}

// Certificate creates a certificate for k from template. A nil issuer makes it
// self-signed.
func (k *PrivateKey) Certificate(template *x509.Certificate, issuer *Issuer) (*Certificate, error) {
	parent, signer := template, k.key
	if issuer != nil {
		if issuer.Cert == nil || issuer.Key == nil {
			return nil, errors.New("issuer needs both a certificate and a key")
		}
		parent, signer = issuer.Cert.cert, issuer.Key.key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &k.key.PublicKey, signer)
	if err != nil {
		return nil, fmt.Errorf("unable to create certificate: %w", err)
	}
	return ParseCertificate(der)
}

// TLSCertificateFor creates a certificate for name, valid from a day ago
// until validUntil. Each san is added as an IP address when it parses as one
// and as a DNS name otherwise; name itself is always a DNS name. A CA
// certificate may sign other certificates.
func (k *PrivateKey) TLSCertificateFor(validUntil time.Time, isCA bool, issuer *Issuer, organization, name string, sans ...string) (*Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("unable to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   name,
		},
		NotBefore:             time.Now().Add(-24 * time.Hour),
		NotAfter:              validUntil,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{name},
	}
	if isCA {
		template.IsCA = true
		template.KeyUsage |= x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	}
	for _, san := range sans {
		if ip := net.ParseIP(san); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if san != name {
			template.DNSNames = append(template.DNSNames, san)
		}
	}
	return k.Certificate(template, issuer)
}

// ParseCertificate wraps DER bytes.
func ParseCertificate(der []byte) (*Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("unable to parse certificate: %w", err)
	}
	return &Certificate{cert: cert, der: der}, nil
}

// LoadCertificate reads a DER or PEM certificate file.
func LoadCertificate(path string) (*Certificate, error) {
	der, err := Read(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read certificate file %s: %w", path, err)
	}
	return ParseCertificate(der)
}

func (c *Certificate) X509() *x509.Certificate { return c.cert }

func (c *Certificate) DER() []byte { return c.der }

// PEMEncoded returns the certificate as a PEM block.
func (c *Certificate) PEMEncoded() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemCertificate, Bytes: c.der})
}

// WriteFile stores the certificate at path in PEM form.
func (c *Certificate) WriteFile(path string) error {
	return Write(path, c.der)
}

// WriteDERFile stores the certificate at path as raw DER.
func (c *Certificate) WriteDERFile(path string) error {
	return os.WriteFile(path, c.der, 0644)
}
