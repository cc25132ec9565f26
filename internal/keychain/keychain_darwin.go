//go:build darwin
// +build darwin

package keychain

import "time"

// New returns a Keychain importing into path, or into the login keychain
// when path is empty.
func New(path string) (*Keychain, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Keychain{Path: path, Run: runSecurity, Now: time.Now}, nil
}
