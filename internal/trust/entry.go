package trust

import "maps"

// Keys of a trust-settings dictionary.
const (
	KeyPolicy     = "kSecTrustSettingsPolicy"
	KeyPolicyName = "kSecTrustSettingsPolicyName"
	KeyResult     = "kSecTrustSettingsResult"
)

// Entry is one trust-settings dictionary. Keys other than the policy and the
// result are carried through unchanged.
type Entry map[string]any

// Policy returns the entry's policy identifier, if it has one.
func (e Entry) Policy() (Policy, bool) {
	switch v := e[KeyPolicy].(type) {
	case []byte:
		return Policy(v), len(v) > 0
	case Policy:
		return v, len(v) > 0
	}
	return nil, false
}

// Result returns the entry's trust result, if it has one.
func (e Entry) Result() (Result, bool) {
	switch v := e[KeyResult].(type) {
	case int:
		return Result(v), true
	case int32:
		return Result(v), true
	case int64:
		return Result(v), true
	case uint32:
		return Result(v), true
	case uint64:
		return Result(v), true
	case Result:
		return v, true
	}
	return 0, false
}

// Clone returns a shallow copy of e.
func (e Entry) Clone() Entry {
	return maps.Clone(e)
}

// NewEntry builds a minimal entry for p with result r.
func NewEntry(p Policy, r Result) Entry {
	e := Entry{
		KeyPolicy: []byte(p),
		KeyResult: int64(r),
	}
	if name, ok := PolicyName(p); ok {
		e[KeyPolicyName] = name
	}
	return e
}

// Settings is the ordered trust-settings list of one certificate.
type Settings []Entry

// Find returns the entries whose policy equals p.
func (s Settings) Find(p Policy) []Entry {
	var found []Entry
	for _, e := range s {
		if ep, ok := e.Policy(); ok && ep.Equal(p) {
			found = append(found, e)
		}
	}
	return found
}
