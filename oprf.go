package opaque

import (
	ristretto "github.com/gtank/ristretto255"
	"golang.org/x/crypto/argon2"
)

// argon2 cost parameters. These match the "INTERACTIVE" parameters named in
// spec.md 4.1 -- a single evaluation per login, not a batch workload, so the
// cost stays at the interactive tier rather than the moderate/sensitive one.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KiB, i.e. 64 MiB
	argon2Threads = 4
	argon2KeyLen  = 32
)

// zeroSalt is the all-zero Argon2id salt spec.md 4.1 and design note 9(ii)
// specify. This is deliberate: the per-user randomness needed for Argon2id is
// already present through k_s folded into rw0. Do not replace with a random
// salt without revising the protocol -- doing so would mean the server's OPRF
// key k_s is no longer sufficient to reproduce rw at login.
var zeroSalt = make([]byte, 32)

// oprfDomain separates OPRF's hash-to-group step from any other use of
// hashToGroup in this package.
const oprfDomain = "OPAQUE-OPRF"

// blind implements spec.md 4.1 Blind: it hashes pw into the group via
// Elligator2, samples a blinding scalar r, and returns alpha = r*H'(pw). r is
// secret and must be held by the caller until Unblind.
func blind(pw []byte) (r *ristretto.Scalar, alpha *ristretto.Element) {
	hPrime := hashToGroup(oprfDomain, pw)
	r = randomScalar()
	alpha = new(ristretto.Element).ScalarMult(r, hPrime)
	return r, alpha
}

// evaluate implements spec.md 4.1 Evaluate: beta = k_s * alpha. alphaBytes
// must be a validly encoded group element or InvalidPoint is returned.
func evaluate(ks *ristretto.Scalar, alphaBytes []byte) (beta *ristretto.Element, err error) {
	alpha, err := decodeElement(alphaBytes)
	if err != nil {
		return nil, err
	}
	beta = new(ristretto.Element).ScalarMult(ks, alpha)
	return beta, nil
}

// unblind implements spec.md 4.1 Unblind: it removes the blinding factor r
// from beta to recover H'(pw)^k_s, folds that together with pw and the
// optional application key into a fast BLAKE2b hash rw0, then stretches rw0
// through Argon2id (interactive parameters, all-zero salt) to produce rw.
func unblind(pw []byte, r *ristretto.Scalar, betaBytes []byte, key []byte) (rw []byte, err error) {
	beta, err := decodeElement(betaBytes)
	if err != nil {
		return nil, err
	}
	rInv := new(ristretto.Scalar).Invert(r)
	h0 := new(ristretto.Element).ScalarMult(rInv, beta)
	return slowHash(pw, h0.Encode(nil), key), nil
}

// slowHash folds pw, an already-deblinded group element encoding, and an
// optional application key into the fast BLAKE2b hash rw0, then stretches rw0
// through Argon2id (interactive parameters, all-zero salt) to produce rw. Both
// InitSrv (which holds pw directly, with no blinding round-trip needed) and
// unblind (which recovers the element from a blinded OPRF exchange) funnel
// through this single function so the two sides can never drift apart.
func slowHash(pw, elementEncoding, key []byte) []byte {
	var rw0 []byte
	if len(key) > 0 {
		rw0 = blake2bFull(HashSize, key, pw, elementEncoding)
	} else {
		rw0 = blake2bFull(HashSize, nil, pw, elementEncoding)
	}
	defer zero(rw0)
	return argon2IDKey(rw0)
}

// argon2IDKey stretches a 32-byte fast-hash output through Argon2id with the
// interactive cost parameters and the all-zero salt spec.md 4.1 fixes.
func argon2IDKey(rw0 []byte) []byte {
	return argon2.IDKey(rw0, zeroSalt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

// deriveRwd implements the rwd = BLAKE2b(rw, "rwd", 32) derivation used by
// private registration (spec.md 4.4 step 3) and login (spec.md 4.5
// usr_finish) to expose a stable application-facing key distinct from rw.
func deriveRwd(rw []byte) []byte {
	return blake2bFull(32, rw, []byte("rwd"))
}
