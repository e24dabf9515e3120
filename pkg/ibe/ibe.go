// Package ibe implements the identity-based encryption scheme used for drand
// timelock encryption. It is a CPA-secure Boneh-Franklin style construction
// over BLS12-381 where the identity private key is the network's BLS signature
// over the identity. Hashing to the scalar field and the byte order of the
// pairing output fed into SHA-256 follow the reference drand implementation,
// not RFC 9380, so that ciphertexts are interoperable across stacks.
package ibe

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"math/big"

	"github.com/drand/kyber"
	"github.com/drand/kyber/group/mod"
)

// BlockSize is the maximum plaintext length of a single encryption.
const BlockSize = 16

// Hash labels of the scheme. Literal ASCII, no prefix.
var (
	h2Tag = []byte("IBE-H2")
	h3Tag = []byte("IBE-H3")
	h4Tag = []byte("IBE-H4")
)

// Ciphertext holds the three components of an encryption. U is a point in the
// same group as the master public key, V masks sigma and W masks the message.
type Ciphertext struct {
	U *GPoint
	V []byte
	W []byte
}

// Encrypt encrypts msg for the identity id under the master public key. The
// message must fit in one block. Sigma bytes are sampled uniformly in [0,8),
// matching the reference implementation; see EncryptWithFullSigma for the
// full-entropy variant that existing decryptors accept equally.
func Encrypt(master *GPoint, id, msg []byte) (*Ciphertext, error) {
	return encrypt(master, id, msg, sampleSigmaCompat)
}

// EncryptWithFullSigma encrypts msg with sigma bytes drawn from the full byte
// range. Ciphertexts remain decryptable by any conforming implementation, but
// the byte distribution of sigma differs from ciphertexts produced by the
// reference implementation.
func EncryptWithFullSigma(master *GPoint, id, msg []byte) (*Ciphertext, error) {
	return encrypt(master, id, msg, sampleSigmaFull)
}

func encrypt(master *GPoint, id, msg []byte, sample func([]byte) error) (*Ciphertext, error) {
	if len(msg) > BlockSize {
		return nil, ErrMessageSize
	}

	// 1. Compute Gid = e(master, Q_id)
	gid, err := master.ProjectivePairing(id)
	if err != nil {
		return nil, err
	}

	// 2. Derive random sigma
	sigma := make([]byte, BlockSize)
	if err := sample(sigma); err != nil {
		return nil, err
	}
	defer wipe(sigma)

	// 3. Derive r from sigma and msg
	r, err := hashToScalar(master.group(), sigma, msg)
	if err != nil {
		return nil, err
	}

	// 4. Compute U = G^r
	u := master.Generator().Mul(r)

	// 5. Compute V = sigma XOR H2(Gid^r)
	rGid := gid.Mul(r, gid)
	mask, err := gtMask(rGid)
	if err != nil {
		return nil, err
	}
	v := xor(sigma, mask)

	// 6. Compute W = msg XOR H4(sigma)
	w := xor(msg, sigmaMask(sigma)[:len(msg)])

	return &Ciphertext{U: u, V: v, W: w}, nil
}

// Decrypt recovers the plaintext of c using the identity private key, the
// network's signature over the identity. The recovered plaintext is rejected
// with ErrDecryptionFailed unless re-deriving the encryption randomness from
// it reproduces U.
func Decrypt(private *GPoint, c *Ciphertext) ([]byte, error) {
	if len(c.W) > BlockSize || len(c.V) < BlockSize {
		return nil, ErrMessageSize
	}

	// 1. Compute sigma = V XOR H2(e(private, U))
	rGid, err := private.Pair(c.U)
	if err != nil {
		return nil, err
	}
	mask, err := gtMask(rGid)
	if err != nil {
		return nil, err
	}
	sigma := xor(mask, c.V[len(c.V)-BlockSize:])
	defer wipe(sigma)

	// 2. Compute msg = W XOR H4(sigma)
	msg := xor(sigmaMask(sigma)[:len(c.W)], c.W)

	// 3. Check U = G^r
	r, err := hashToScalar(c.U.group(), sigma, msg)
	if err != nil {
		return nil, err
	}
	rG := c.U.Generator().Mul(r)
	if !c.U.Equal(rG) {
		wipe(msg)
		return nil, ErrDecryptionFailed
	}

	return msg, nil
}

// sampleSigmaCompat fills sigma with bytes uniform in [0,8), the distribution
// of the reference implementation.
func sampleSigmaCompat(sigma []byte) error {
	if _, err := io.ReadFull(rand.Reader, sigma); err != nil {
		return err
	}
	for i := range sigma {
		sigma[i] &= 0x07
	}
	return nil
}

// sampleSigmaFull fills sigma with uniform bytes.
func sampleSigmaFull(sigma []byte) error {
	_, err := io.ReadFull(rand.Reader, sigma)
	return err
}

// hashToScalar derives the encryption randomness from sigma and the message:
// the H3 digest is expanded onto the scalar field with expandMessageDrand.
func hashToScalar(group kyber.Group, sigma, msg []byte) (kyber.Scalar, error) {
	h := sha256.New()
	h.Write(h3Tag)
	h.Write(sigma)
	h.Write(msg)
	return expandMessageDrand(group, h.Sum(nil))
}

// expandMessageDrand maps a seed onto the scalar field the way the drand
// network does, which predates and differs from RFC 9380 expand_message_xmd.
// For an incrementing 16-bit counter the seed is hashed with the counter in
// little-endian, the top bit of the digest is cleared, and the digest is taken
// as a little-endian integer after a full byte reversal, which amounts to
// reading the masked digest big-endian. The first candidate below the group
// order wins.
func expandMessageDrand(group kyber.Group, seed []byte) (kyber.Scalar, error) {
	sc, ok := group.Scalar().(*mod.Int)
	if !ok {
		return nil, ErrSerialisation
	}

	var counter [2]byte
	for i := uint16(1); i < 65535; i++ {
		binary.LittleEndian.PutUint16(counter[:], i)
		h := sha256.New()
		h.Write(counter[:])
		h.Write(seed)
		sum := h.Sum(nil)

		sum[0] >>= 1
		candidate := new(big.Int).SetBytes(sum)
		if candidate.Cmp(sc.M) < 0 {
			sc.V.Set(candidate)
			return sc, nil
		}
	}
	return nil, ErrSerialisation
}

// gtMask derives the 16-byte XOR mask bound to a pairing output. The pairing
// output is hashed in the byte order produced by the suite's serialization,
// which is the order the reference implementation feeds into SHA-256.
func gtMask(gt kyber.Point) ([]byte, error) {
	b, err := gt.MarshalBinary()
	if err != nil {
		return nil, ErrSerialisation
	}
	h := sha256.New()
	h.Write(h2Tag)
	h.Write(b)
	return h.Sum(nil)[:BlockSize], nil
}

// sigmaMask derives the 16-byte XOR mask bound to sigma.
func sigmaMask(sigma []byte) []byte {
	h := sha256.New()
	h.Write(h4Tag)
	h.Write(sigma)
	return h.Sum(nil)[:BlockSize]
}

func xor(a, b []byte) []byte {
	if len(a) != len(b) {
		panic("ibe: xor operands must have the same length")
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
