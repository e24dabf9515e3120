package ibe

import (
	"errors"

	"github.com/drand/kyber"
	bls "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/pairing"
)

// Compressed point sizes for the two source groups.
const (
	G1Size = 48
	G2Size = 96
)

// Domain is the hash-to-curve domain separation tag. The reference stack
// applies the G2-named suite to identities hashed into G1 as well, so the
// same tag is used for both groups.
const Domain = "BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_"

var (
	// ErrPublicKeySize is returned when key or point material is neither a
	// compressed G1 nor a compressed G2 point.
	ErrPublicKeySize = errors.New("invalid public key size")

	// ErrHashToCurve is returned when an identity cannot be mapped onto the
	// target group.
	ErrHashToCurve = errors.New("hash cannot be mapped to curve")

	// ErrPairing is returned when both pairing operands live in the same group.
	ErrPairing = errors.New("pairing requires points on different groups")

	// ErrSerialisation is returned when a point or pairing output cannot be
	// serialized.
	ErrSerialisation = errors.New("serialization failed")

	// ErrMessageSize is returned when the plaintext does not fit in one block.
	ErrMessageSize = errors.New("message does not fit in one block")

	// ErrDecryptionFailed is returned when the ciphertext consistency check
	// fails. It carries no information beyond pass/fail.
	ErrDecryptionFailed = errors.New("decryption failed")
)

var suite = bls.NewBLS12381SuiteWithDST([]byte(Domain), []byte(Domain))

// Suite exposes the pairing suite the package operates on.
func Suite() pairing.Suite { return suite }

type groupTag int

const (
	tagG1 groupTag = iota
	tagG2
)

// GPoint is a point on either source group of BLS12-381. The group is a
// runtime property determined by the length of the compressed encoding:
// 48 bytes selects G1, 96 bytes selects G2.
type GPoint struct {
	point kyber.Point
	tag   groupTag
}

// PointFromBytes parses a compressed G1 or G2 point, selecting the group from
// the byte length.
func PointFromBytes(b []byte) (*GPoint, error) {
	switch len(b) {
	case G1Size:
		p := suite.G1().Point()
		if err := p.UnmarshalBinary(b); err != nil {
			return nil, ErrPublicKeySize
		}
		return &GPoint{point: p, tag: tagG1}, nil
	case G2Size:
		p := suite.G2().Point()
		if err := p.UnmarshalBinary(b); err != nil {
			return nil, ErrPublicKeySize
		}
		return &GPoint{point: p, tag: tagG2}, nil
	default:
		return nil, ErrPublicKeySize
	}
}

// group returns the kyber group the point belongs to.
func (g *GPoint) group() kyber.Group {
	if g.tag == tagG1 {
		return suite.G1()
	}
	return suite.G2()
}

// dual returns the opposite source group.
func (g *GPoint) dual() kyber.Group {
	if g.tag == tagG1 {
		return suite.G2()
	}
	return suite.G1()
}

// Generator returns the generator of the point's own group.
func (g *GPoint) Generator() *GPoint {
	return &GPoint{point: g.group().Point().Base(), tag: g.tag}
}

// Mul returns the scalar multiple of the point.
func (g *GPoint) Mul(s kyber.Scalar) *GPoint {
	return &GPoint{point: g.group().Point().Mul(s, g.point), tag: g.tag}
}

// Equal reports whether both points are in the same group and equal.
func (g *GPoint) Equal(other *GPoint) bool {
	return g.tag == other.tag && g.point.Equal(other.point)
}

// Bytes returns the compressed encoding, 48 bytes for G1 and 96 for G2.
func (g *GPoint) Bytes() ([]byte, error) {
	b, err := g.point.MarshalBinary()
	if err != nil {
		return nil, ErrSerialisation
	}
	return b, nil
}

// Size returns the compressed encoding length of the point's group.
func (g *GPoint) Size() int {
	if g.tag == tagG1 {
		return G1Size
	}
	return G2Size
}

// Pair computes the pairing of the point with a point of the opposite group.
// Operands are accepted in either order.
func (g *GPoint) Pair(other *GPoint) (kyber.Point, error) {
	switch {
	case g.tag == tagG1 && other.tag == tagG2:
		return suite.Pair(g.point, other.point), nil
	case g.tag == tagG2 && other.tag == tagG1:
		return suite.Pair(other.point, g.point), nil
	default:
		return nil, ErrPairing
	}
}

// ProjectivePairing hashes the identity into the opposite group and pairs it
// with the point.
func (g *GPoint) ProjectivePairing(id []byte) (kyber.Point, error) {
	qid, err := hashToPoint(g.dual(), id)
	if err != nil {
		return nil, err
	}
	if g.tag == tagG1 {
		return suite.Pair(g.point, qid), nil
	}
	return suite.Pair(qid, g.point), nil
}

// hashToPoint maps an identity onto the given group with the package domain.
func hashToPoint(group kyber.Group, id []byte) (kyber.Point, error) {
	hp, ok := group.Point().(kyber.HashablePoint)
	if !ok {
		return nil, ErrHashToCurve
	}
	return hp.Hash(id), nil
}
