// Package certstore adds, finds and deletes certificates in the current
// user's Windows system certificate stores.
package certstore

import "errors"

// RootStore is the store holding trusted root certification authorities.
const RootStore = "ROOT"

var (
	ErrUnsupported        = errors.New("certificate stores are only supported on Windows")
	ErrInvalidCertificate = errors.New("invalid certificate data")
)
