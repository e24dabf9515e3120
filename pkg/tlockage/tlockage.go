// Package tlockage binds timelock encryption into the age file container as a
// recipient type. A tlock stanza carries the target round, the chain hash of
// the network, and the timelock-encrypted file key; the file body itself is
// encrypted by age under that file key.
package tlockage

import (
	"fmt"
	"io"

	"filippo.io/age"
)

// Header is the tlock information carried in an age header, readable without
// the round signature.
type Header struct {
	Round uint64
	Hash  []byte
}

// HeaderError reports that header inspection did not capture a complete
// header. The fields carry whatever was captured.
type HeaderError struct {
	Round *uint64
	Hash  []byte
}

func (e *HeaderError) Error() string {
	switch {
	case e.Round == nil && e.Hash == nil:
		return "no tlock stanza in header"
	case e.Round == nil:
		return "tlock header round missing"
	default:
		return "tlock header chain hash missing"
	}
}

// Encrypt encrypts src into an age file for a single tlock recipient and
// writes it to dst.
func Encrypt(dst io.Writer, src io.Reader, chainHash, publicKey []byte, round uint64) error {
	recipient, err := NewRecipient(chainHash, publicKey, round)
	if err != nil {
		return err
	}

	w, err := age.Encrypt(dst, recipient)
	if err != nil {
		return fmt.Errorf("wrap output: %w", err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("encrypt body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish encryption: %w", err)
	}
	return nil
}

// Decrypt decrypts an age file from src with the round signature of the
// network identified by chainHash and writes the plaintext to dst.
func Decrypt(dst io.Writer, src io.Reader, chainHash, signature []byte) error {
	r, err := age.Decrypt(src, NewIdentity(chainHash, signature))
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, r); err != nil {
		return fmt.Errorf("decrypt body: %w", err)
	}
	return nil
}

// DecryptHeader reads the tlock header of an age file without decrypting it.
// The underlying age decryption is expected to fail since no identity
// matches; only the captured round and chain hash are reported.
func DecryptHeader(src io.Reader) (*Header, error) {
	identity := NewHeaderIdentity()
	// The decryption cannot succeed: HeaderIdentity never yields a file key.
	// The header fields are captured as a side effect of the attempt.
	_, _ = age.Decrypt(src, identity)

	round, okRound := identity.Round()
	hash, okHash := identity.Hash()
	if !okRound || !okHash {
		herr := &HeaderError{Hash: hash}
		if okRound {
			herr.Round = &round
		}
		return nil, herr
	}
	return &Header{Round: round, Hash: hash}, nil
}
