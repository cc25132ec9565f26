// Package certfile reads and writes certificates and RSA keys in DER or PEM
// form, and creates keys and certificates for testing trust settings.
package certfile

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

const pemCertificate = "CERTIFICATE"

// Read returns the DER bytes of the certificate stored at path.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data), nil
}

// Decode returns the first PEM certificate block of data, or data itself when
// it is not PEM encoded.
func Decode(data []byte) []byte {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return data
		}
		if block.Type == pemCertificate {
			return block.Bytes
		}
	}
}

// Load reads and parses the certificate stored at path.
func Load(path string) (*x509.Certificate, error) {
	der, err := Read(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read certificate file %s: %w", path, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("unable to parse certificate %s: %w", path, err)
	}
	return cert, nil
}

// Write stores der at path in PEM form.
func Write(path string, der []byte) error {
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: pemCertificate, Bytes: der}), 0644); err != nil {
		return fmt.Errorf("unable to write certificate %s: %w", path, err)
	}
	return nil
}
