package keychain

import (
	"crypto/sha1"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"certtrust/internal/trust"

	"howett.net/plist"
)

const trustVersion = 1

// document is a decoded trust-settings export: one record per certificate in
// trustList, keyed by the uppercase SHA-1 fingerprint of the certificate.
type document struct {
	root map[string]any
	list map[string]any
}

func newDocument() *document {
	list := map[string]any{}
	return &document{
		root: map[string]any{
			"trustVersion": uint64(trustVersion),
			"trustList":    list,
		},
		list: list,
	}
}

func decodeDocument(data []byte) (*document, error) {
	var root map[string]any
	if _, err := plist.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse trust settings: %w", err)
	}
	if v, ok := toUint64(root["trustVersion"]); !ok || v != trustVersion {
		return nil, fmt.Errorf("unsupported trust settings version: %v", root["trustVersion"])
	}

	list, ok := root["trustList"].(map[string]any)
	if !ok {
		if root["trustList"] != nil {
			return nil, fmt.Errorf("malformed trust list: %T", root["trustList"])
		}
		list = map[string]any{}
		root["trustList"] = list
	}
	return &document{root: root, list: list}, nil
}

func (d *document) encode() ([]byte, error) {
	data, err := plist.MarshalIndent(d.root, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize trust settings: %w", err)
	}
	return data, nil
}

// settings returns the trust settings recorded for the certificate with the
// given fingerprint. ok is false when the certificate has no record.
func (d *document) settings(key string) (s trust.Settings, ok bool, err error) {
	rec, ok := d.list[key].(map[string]any)
	if !ok {
		return nil, false, nil
	}
	raw, present := rec["trustSettings"]
	if !present {
		return trust.Settings{}, true, nil
	}
	items, isArray := raw.([]any)
	if !isArray {
		return nil, true, fmt.Errorf("malformed trust settings for %s: %T", key, raw)
	}
	s = make(trust.Settings, 0, len(items))
	for i, item := range items {
		dict, isDict := item.(map[string]any)
		if !isDict {
			return nil, true, fmt.Errorf("malformed trust setting %d for %s: %T", i, key, item)
		}
		s = append(s, trust.Entry(dict))
	}
	return s, true, nil
}

// setSettings replaces the trust settings of cert, creating its record when
// the certificate has none yet.
func (d *document) setSettings(cert *x509.Certificate, s trust.Settings, now time.Time) error {
	items := make([]any, 0, len(s))
	for _, e := range s {
		dict := make(map[string]any, len(e))
		for k, v := range e {
			if p, ok := v.(trust.Policy); ok {
				v = []byte(p)
			}
			dict[k] = v
		}
		items = append(items, dict)
	}

	key := fingerprint(cert)
	rec, ok := d.list[key].(map[string]any)
	if !ok {
		serial, err := rawSerial(cert)
		if err != nil {
			return err
		}
		rec = map[string]any{
			"issuerName":   cert.RawIssuer,
			"serialNumber": serial,
		}
		d.list[key] = rec
	}
	rec["modDate"] = now.UTC()
	rec["trustSettings"] = items
	return nil
}

// tbsPrefix is the start of a TBSCertificate. Trailing fields are ignored.
type tbsPrefix struct {
	Raw          asn1.RawContent
	Version      int `asn1:"optional,explicit,default:0,tag:0"`
	SerialNumber asn1.RawValue
}

// rawSerial returns the content octets of the certificate's serial number
// INTEGER as encoded, keeping the leading zero of serials with the high bit
// set.
func rawSerial(cert *x509.Certificate) ([]byte, error) {
	var tbs tbsPrefix
	if _, err := asn1.Unmarshal(cert.RawTBSCertificate, &tbs); err != nil {
		return nil, fmt.Errorf("unable to read serial number: %w", err)
	}
	if tbs.SerialNumber.Tag != asn1.TagInteger || len(tbs.SerialNumber.Bytes) == 0 {
		return nil, fmt.Errorf("unable to read serial number: not an integer")
	}
	return tbs.SerialNumber.Bytes, nil
}

func fingerprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		return uint64(n), n >= 0
	case int:
		return uint64(n), n >= 0
	}
	return 0, false
}
