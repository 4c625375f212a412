package opaque

import (
	"crypto/rand"
	"crypto/subtle"

	ristretto "github.com/gtank/ristretto255"
	"golang.org/x/crypto/blake2b"
)

// ScalarSize, ElementSize, HashSize, TagSize, and NonceSize are the fixed
// field widths from the wire format: P = 32, S = 32, H = 32, T = 32, N = 32.
const (
	ScalarSize  = 32
	ElementSize = 32
	HashSize    = 32
	TagSize     = 32
	NonceSize   = 32
)

// randomScalar returns a uniformly random, non-zero scalar in the Ristretto255
// field. Entropy is drawn from crypto/rand, matching every other repo in the
// pack -- nothing in the retrieved examples wraps a CSPRNG, so there is no
// ecosystem library to prefer over it.
func randomScalar() *ristretto.Scalar {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		panic("opaque: could not read entropy for scalar")
	}
	return new(ristretto.Scalar).FromUniformBytes(b)
}

// randomBytes returns n bytes of CSPRNG output, used for nonces and salts.
func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("opaque: could not read entropy")
	}
	return b
}

// hashToGroup maps an arbitrary byte string to a group element via
// Elligator2, domain-separated by the caller-provided label so that the OPRF
// input hash and any other group-valued hash in this package never collide.
func hashToGroup(label string, data []byte) *ristretto.Element {
	h := blake2bFull(64, nil, []byte(label), data)
	return new(ristretto.Element).FromUniformBytes(h)
}

// decodeElement decodes and validates a group element. Invalid encodings
// (non-canonical, wrong length, or not on the curve) fail with InvalidPoint --
// ristretto255's Decode already rejects points outside the prime-order
// subgroup, which is what spec.md requires of every group-valued wire field.
func decodeElement(b []byte) (*ristretto.Element, error) {
	if len(b) != ElementSize {
		return nil, wrapErr(KindInvalidPoint, "element has wrong length")
	}
	e := new(ristretto.Element)
	if err := e.Decode(b); err != nil {
		return nil, wrapErr(KindInvalidPoint, "element does not decode to a valid point")
	}
	return e, nil
}

// decodeScalar decodes a scalar field element.
func decodeScalar(b []byte) (*ristretto.Scalar, error) {
	if len(b) != ScalarSize {
		return nil, wrapErr(KindBadArg, "scalar has wrong length")
	}
	s := new(ristretto.Scalar)
	if err := s.Decode(b); err != nil {
		return nil, wrapErr(KindBadArg, "scalar does not decode")
	}
	return s, nil
}

// ctEqual is a constant-time byte comparison used for all MAC and tag checks.
func ctEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// blake2bFull computes a keyed BLAKE2b digest of the given size (1..64) over
// the concatenation of parts. A nil key yields the unkeyed hash.
func blake2bFull(size int, key []byte, parts ...[]byte) []byte {
	h, err := blake2b.New(size, key)
	if err != nil {
		panic("opaque: blake2b init: " + err.Error())
	}
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
