//go:build !windows
// +build !windows

package certstore

// Store is unavailable outside Windows.
type Store struct{}

func Open(name string) (*Store, error) {
	return nil, ErrUnsupported
}

func (s *Store) Close() error { return ErrUnsupported }

func (s *Store) Add(der []byte) error { return ErrUnsupported }

func (s *Store) FindByCommonName(cn string) ([][]byte, error) { return nil, ErrUnsupported }

func (s *Store) DeleteByCommonName(cn string) (int, error) { return 0, ErrUnsupported }
