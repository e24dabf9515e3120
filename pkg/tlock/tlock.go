// Package tlock encrypts data so it can only be decrypted once a future drand
// round signature is published. The identity of a round is the SHA-256 digest
// of its big-endian round number, and the round's network signature is the
// matching identity private key.
package tlock

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/thibmeu/tlock-go/pkg/ibe"
)

// Sizes of the V and W ciphertext components on the wire.
const (
	cipherVLen = 16
	cipherWLen = 16
)

// ErrInvalidSignatureSize is returned when a signature is neither a compressed
// G1 nor a compressed G2 point.
var ErrInvalidSignatureSize = errors.New("invalid signature size")

// RoundID derives the encryption identity for a round number.
func RoundID(round uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], round)
	h := sha256.Sum256(buf[:])
	return h[:]
}

// TimeLock encrypts msg towards the given round under the network public key.
// The key length selects the group: 48 bytes for a G1 key with G2 signatures,
// 96 bytes for a G2 key with G1 signatures.
func TimeLock(publicKeyBytes []byte, round uint64, msg []byte) (*ibe.Ciphertext, error) {
	publicKey, err := ibe.PointFromBytes(publicKeyBytes)
	if err != nil {
		return nil, err
	}
	return ibe.Encrypt(publicKey, RoundID(round), msg)
}

// TimeUnlock decrypts a ciphertext with the round's network signature.
func TimeUnlock(signature []byte, c *ibe.Ciphertext) ([]byte, error) {
	private, err := ibe.PointFromBytes(signature)
	if err != nil {
		if errors.Is(err, ibe.ErrPublicKeySize) {
			return nil, ErrInvalidSignatureSize
		}
		return nil, err
	}
	return ibe.Decrypt(private, c)
}

// Encrypt reads up to one block from src, zero-padding to the block size, and
// writes the U||V||W wire encoding of its timelock encryption to dst. There is
// no length prefix: the reader derives the length of U from the signature it
// will decrypt with.
func Encrypt(dst io.Writer, src io.Reader, publicKeyBytes []byte, round uint64) error {
	message := make([]byte, ibe.BlockSize)
	if _, err := io.ReadFull(src, message); err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("read message: %w", err)
	}

	c, err := TimeLock(publicKeyBytes, round, message)
	if err != nil {
		return fmt.Errorf("time lock: %w", err)
	}

	u, err := c.U.Bytes()
	if err != nil {
		return fmt.Errorf("marshal point: %w", err)
	}

	for _, part := range [][]byte{u, c.V, c.W} {
		if _, err := dst.Write(part); err != nil {
			return fmt.Errorf("write ciphertext: %w", err)
		}
	}
	return nil
}

// Decrypt reads the wire encoding from src, decrypts it with the given round
// signature and writes the plaintext to dst. Trailing zero bytes are trimmed
// from the plaintext before writing: payloads that legitimately end in zero
// come back short. Use DecryptRaw to keep the padded block.
func Decrypt(dst io.Writer, src io.Reader, signature []byte) error {
	return decrypt(dst, src, signature, true)
}

// DecryptRaw is Decrypt without the trailing-zero trim: the full block,
// including any padding added during encryption, is written to dst.
func DecryptRaw(dst io.Writer, src io.Reader, signature []byte) error {
	return decrypt(dst, src, signature, false)
}

func decrypt(dst io.Writer, src io.Reader, signature []byte, trim bool) error {
	// The signature lives in the opposite group from the public key, so its
	// length reveals the length of U.
	var uLen int
	switch len(signature) {
	case ibe.G1Size:
		uLen = ibe.G2Size
	case ibe.G2Size:
		uLen = ibe.G1Size
	default:
		return ErrInvalidSignatureSize
	}

	u := make([]byte, uLen)
	if _, err := io.ReadFull(src, u); err != nil {
		return fmt.Errorf("read point: %w", err)
	}
	v := make([]byte, cipherVLen)
	if _, err := io.ReadFull(src, v); err != nil {
		return fmt.Errorf("read v: %w", err)
	}
	w := make([]byte, cipherWLen)
	if _, err := io.ReadFull(src, w); err != nil {
		return fmt.Errorf("read w: %w", err)
	}

	point, err := ibe.PointFromBytes(u)
	if err != nil {
		return fmt.Errorf("parse point: %w", err)
	}

	plaintext, err := TimeUnlock(signature, &ibe.Ciphertext{U: point, V: v, W: w})
	if err != nil {
		return err
	}

	if trim {
		plaintext = bytes.TrimRight(plaintext, "\x00")
	}
	if _, err := dst.Write(plaintext); err != nil {
		return fmt.Errorf("write plaintext: %w", err)
	}
	return nil
}
