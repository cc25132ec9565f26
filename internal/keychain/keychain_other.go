//go:build !darwin
// +build !darwin

package keychain

func New(path string) (*Keychain, error) {
	return nil, ErrUnsupported
}
