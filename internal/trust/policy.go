package trust

import (
	"bytes"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Policy is the raw encoding of a policy object identifier: the content
// octets of the DER OBJECT IDENTIFIER, without tag and length. This is the
// form stored under kSecTrustSettingsPolicy.
type Policy []byte

// Equal reports whether p and o carry the same encoding. Empty policies never
// match anything.
func (p Policy) Equal(o Policy) bool {
	if len(p) == 0 || len(o) == 0 {
		return false
	}
	if len(p) != len(o) {
		return false
	}
	return bytes.Equal(p, o)
}

// OID decodes the policy into a dotted object identifier.
func (p Policy) OID() (asn1.ObjectIdentifier, error) {
	if len(p) == 0 || len(p) > 127 {
		return nil, fmt.Errorf("invalid policy encoding %x", []byte(p))
	}
	der := append([]byte{asn1.TagOID, byte(len(p))}, p...)
	var oid asn1.ObjectIdentifier
	rest, err := asn1.Unmarshal(der, &oid)
	if err != nil {
		return nil, fmt.Errorf("invalid policy encoding %x: %w", []byte(p), err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("invalid policy encoding %x: trailing data", []byte(p))
	}
	return oid, nil
}

func (p Policy) String() string {
	if name, ok := PolicyName(p); ok {
		return name
	}
	if oid, err := p.OID(); err == nil {
		return oid.String()
	}
	return hex.EncodeToString(p)
}

// PolicyFromOID encodes oid into its raw policy form.
func PolicyFromOID(oid asn1.ObjectIdentifier) (Policy, error) {
	der, err := asn1.Marshal(oid)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", oid, err)
	}
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(der, &raw); err != nil {
		return nil, fmt.Errorf("encode %s: %w", oid, err)
	}
	return Policy(raw.Bytes), nil
}

func applePolicy(n int) Policy {
	p, err := PolicyFromOID(asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 1, n})
	if err != nil {
		panic(err)
	}
	return p
}

// Apple trust policies that can carry per-certificate trust settings.
var (
	PolicyBasicX509      = applePolicy(2)
	PolicySSL            = applePolicy(3)
	PolicySMIME          = applePolicy(8)
	PolicyEAP            = applePolicy(9)
	PolicyIPSec          = applePolicy(11)
	PolicyCodeSigning    = applePolicy(16)
	PolicyPackageSigning = applePolicy(17)
	PolicyTimestamping   = applePolicy(20)
)

type knownPolicy struct {
	name    string
	aliases []string
	policy  Policy
}

// Names follow the kSecTrustSettingsPolicyName values written by the OS.
var knownPolicies = []knownPolicy{
	{"basicX509", []string{"basic", "x509"}, PolicyBasicX509},
	{"sslServer", []string{"ssl", "tls"}, PolicySSL},
	{"SMIME", []string{"email"}, PolicySMIME},
	{"EAP", nil, PolicyEAP},
	{"IPSec", nil, PolicyIPSec},
	{"CodeSigning", []string{"codesign"}, PolicyCodeSigning},
	{"PackageSigning", []string{"pkgsign"}, PolicyPackageSigning},
	{"Timestamping", []string{"timestamp"}, PolicyTimestamping},
}

// PolicyName returns the OS name of a well-known policy.
func PolicyName(p Policy) (string, bool) {
	for _, k := range knownPolicies {
		if k.policy.Equal(p) {
			return k.name, true
		}
	}
	return "", false
}

// ParsePolicy accepts a well-known policy name (case insensitive, e.g. "ssl"
// or "basicX509") or a dotted object identifier.
func ParsePolicy(s string) (Policy, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty policy")
	}
	for _, k := range knownPolicies {
		if strings.EqualFold(s, k.name) {
			return k.policy, nil
		}
		for _, a := range k.aliases {
			if strings.EqualFold(s, a) {
				return k.policy, nil
			}
		}
	}

	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("unknown policy %q", s)
	}
	oid := make(asn1.ObjectIdentifier, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid policy oid %q", s)
		}
		oid = append(oid, n)
	}
	if oid[0] > 2 || (oid[0] < 2 && oid[1] > 39) {
		return nil, fmt.Errorf("invalid policy oid %q", s)
	}
	return PolicyFromOID(oid)
}
