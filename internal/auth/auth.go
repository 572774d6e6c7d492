// Package auth defines the credential verifier seam consumed by the hub.
// The hub treats verifier strings as opaque; swapping in a hashing
// implementation requires no core changes.
package auth

import "errors"

// ErrMismatch is returned when a presented password does not verify.
var ErrMismatch = errors.New("credential mismatch")

// Verifier derives and checks opaque credential strings.
type Verifier interface {
	// Derive produces the stored verifier for a new password.
	Derive(password string) (string, error)
	// Verify checks a presented password against a stored verifier.
	Verify(stored, password string) error
}

// Plaintext stores passwords verbatim. Credential hygiene is outside the
// core's contract; this is the verifier the historical service shipped with.
type Plaintext struct{}

func (Plaintext) Derive(password string) (string, error) { return password, nil }

func (Plaintext) Verify(stored, password string) error {
	if stored != password {
		return ErrMismatch
	}
	return nil
}
