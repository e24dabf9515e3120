package tlock

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/drand/kyber"
	"github.com/drand/kyber/util/random"
	"github.com/stretchr/testify/require"

	"github.com/thibmeu/tlock-go/pkg/ibe"
)

// Testnet chain 7672797f548f3f4748ac4bf3352fc6c6b6468c9ad40ad456a397545c6e2df5bf:
// a 48-byte G1 public key with 96-byte G2 signatures. The signature is the
// network's beacon for round 1000.
const (
	testnetPK        = "8200fc249deb0148eb918d6e213980c5d01acd7fc251900d9260136da3b54836ce125172399ddc69c4e3e11429b62c11"
	testnetSigRound  = 1000
	testnetSignature = "a4721e6c3eafcd823f138cd29c6c82e8c5149101d0bb4bafddbac1c2d1fe3738895e4e21dd4b8b41bf007046440220910bb1cdb91f50a84a0d7f33ff2e8577aa62ac64b35a291a728a9db5ac91e06d1312b48a376138d77b4d6ad27c24221afe"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func Test_RoundID(t *testing.T) {
	id := RoundID(testnetSigRound)
	require.Len(t, id, sha256.Size)

	expected := sha256.Sum256([]byte{0, 0, 0, 0, 0, 0, 0x03, 0xe8})
	require.Equal(t, expected[:], id)
}

func Test_TimeLockTestnetVector(t *testing.T) {
	pk := mustHex(t, testnetPK)
	signature := mustHex(t, testnetSignature)
	msg := bytes.Repeat([]byte{0x08}, 16)

	c, err := TimeLock(pk, testnetSigRound, msg)
	require.NoError(t, err)

	plaintext, err := TimeUnlock(signature, c)
	require.NoError(t, err)
	require.Equal(t, msg, plaintext)
}

func Test_EncryptDecryptStream(t *testing.T) {
	pk := mustHex(t, testnetPK)
	signature := mustHex(t, testnetSignature)

	t.Run("FullBlock", func(t *testing.T) {
		msg := []byte("0123456789abcdef")

		var ciphertext bytes.Buffer
		require.NoError(t, Encrypt(&ciphertext, bytes.NewReader(msg), pk, testnetSigRound))
		require.Equal(t, ibe.G1Size+cipherVLen+cipherWLen, ciphertext.Len())

		var plaintext bytes.Buffer
		require.NoError(t, Decrypt(&plaintext, &ciphertext, signature))
		require.Equal(t, msg, plaintext.Bytes())
	})

	t.Run("ShortInputIsPadded", func(t *testing.T) {
		var ciphertext bytes.Buffer
		require.NoError(t, Encrypt(&ciphertext, bytes.NewReader([]byte("hi")), pk, testnetSigRound))

		var plaintext bytes.Buffer
		require.NoError(t, DecryptRaw(&plaintext, &ciphertext, signature))
		require.Equal(t, append([]byte("hi"), make([]byte, 14)...), plaintext.Bytes())
	})

	t.Run("TrailingZerosAreTrimmed", func(t *testing.T) {
		msg := []byte{0xde, 0xad, 0x00, 0x00}

		var ciphertext bytes.Buffer
		require.NoError(t, Encrypt(&ciphertext, bytes.NewReader(msg), pk, testnetSigRound))

		// The trimming drops the payload's own trailing zeros along with the
		// block padding.
		var plaintext bytes.Buffer
		require.NoError(t, Decrypt(&plaintext, &ciphertext, signature))
		require.Equal(t, []byte{0xde, 0xad}, plaintext.Bytes())
	})

	t.Run("RawKeepsPadding", func(t *testing.T) {
		msg := []byte{0xde, 0xad, 0x00, 0x00}

		var ciphertext bytes.Buffer
		require.NoError(t, Encrypt(&ciphertext, bytes.NewReader(msg), pk, testnetSigRound))

		var plaintext bytes.Buffer
		require.NoError(t, DecryptRaw(&plaintext, &ciphertext, signature))
		require.Len(t, plaintext.Bytes(), ibe.BlockSize)
		require.Equal(t, msg, plaintext.Bytes()[:len(msg)])
	})

	t.Run("BitFlipFailsDecryption", func(t *testing.T) {
		var ciphertext bytes.Buffer
		require.NoError(t, Encrypt(&ciphertext, bytes.NewReader([]byte("0123456789abcdef")), pk, testnetSigRound))

		tampered := ciphertext.Bytes()
		tampered[len(tampered)-1] ^= 0x01

		var plaintext bytes.Buffer
		err := Decrypt(&plaintext, bytes.NewReader(tampered), signature)
		require.ErrorIs(t, err, ibe.ErrDecryptionFailed)
		require.Zero(t, plaintext.Len())
	})

	t.Run("InvalidPublicKeySize", func(t *testing.T) {
		var ciphertext bytes.Buffer
		err := Encrypt(&ciphertext, bytes.NewReader([]byte("msg")), make([]byte, 47), testnetSigRound)
		require.ErrorIs(t, err, ibe.ErrPublicKeySize)
		require.Zero(t, ciphertext.Len())
	})

	t.Run("InvalidSignatureSize", func(t *testing.T) {
		var ciphertext bytes.Buffer
		require.NoError(t, Encrypt(&ciphertext, bytes.NewReader([]byte("msg")), pk, testnetSigRound))

		var plaintext bytes.Buffer
		err := Decrypt(&plaintext, &ciphertext, make([]byte, 64))
		require.ErrorIs(t, err, ErrInvalidSignatureSize)
	})

	t.Run("TruncatedCiphertext", func(t *testing.T) {
		var ciphertext bytes.Buffer
		require.NoError(t, Encrypt(&ciphertext, bytes.NewReader([]byte("msg")), pk, testnetSigRound))

		truncated := ciphertext.Bytes()[:ibe.G1Size+3]

		var plaintext bytes.Buffer
		err := Decrypt(&plaintext, bytes.NewReader(truncated), signature)
		require.Error(t, err)
	})
}

// Test_GroupCrossCompatibility locks with a 96-byte G2 public key and unlocks
// with the matching 48-byte G1 signature, the layout of unchained networks
// with short signatures.
func Test_GroupCrossCompatibility(t *testing.T) {
	suite := ibe.Suite()
	secret := suite.G1().Scalar().Pick(random.New())

	pkBytes, err := suite.G2().Point().Mul(secret, nil).MarshalBinary()
	require.NoError(t, err)
	require.Len(t, pkBytes, ibe.G2Size)

	const round = 1000
	qid := suite.G1().Point().(kyber.HashablePoint).Hash(RoundID(round))
	sigBytes, err := suite.G1().Point().Mul(secret, qid).MarshalBinary()
	require.NoError(t, err)
	require.Len(t, sigBytes, ibe.G1Size)

	msg := []byte("0123456789abcdef")

	var ciphertext bytes.Buffer
	require.NoError(t, Encrypt(&ciphertext, bytes.NewReader(msg), pkBytes, round))
	require.Equal(t, ibe.G2Size+cipherVLen+cipherWLen, ciphertext.Len())

	var plaintext bytes.Buffer
	require.NoError(t, Decrypt(&plaintext, &ciphertext, sigBytes))
	require.Equal(t, msg, plaintext.Bytes())
}
