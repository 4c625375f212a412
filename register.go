package opaque

import (
	ristretto "github.com/gtank/ristretto255"
)

// InitSrv implements spec.md 4.3, trusted-server registration: the server
// executes the whole flow since it already holds pw on this path. It samples
// the user's OPRF key and long-term keypair, the server's own long-term
// keypair, seals the keypair plus extra under rw, and returns a ready-to-store
// UserRecord together with the export key.
//
// extra is arbitrary application data sealed ciphertext-only alongside the
// keypair. suite.OprfKey is the optional application contribution to the
// OPRF's fast hash stage.
func InitSrv(pw, extra []byte, suite Suite) (record []byte, exportKey *secret, err error) {
	if len(extra) > OPAQUE_MAX_EXTRA_BYTES {
		return nil, nil, wrapErr(KindOverflow, "extra exceeds OPAQUE_MAX_EXTRA_BYTES")
	}

	ks := randomScalar()
	defer ks.Zero()

	hPrime := hashToGroup(oprfDomain, pw)
	beta := new(ristretto.Element).ScalarMult(ks, hPrime)

	rw := slowHash(pw, beta.Encode(nil), suite.OprfKey)
	defer zero(rw)

	ps := randomScalar()
	defer ps.Zero()
	pu := randomScalar()
	defer pu.Zero()
	Ps := new(ristretto.Element).ScalarBaseMult(ps)
	Pu := new(ristretto.Element).ScalarBaseMult(pu)

	secEnv := encodeKeypairSecEnv(pu.Encode(nil), Pu.Encode(nil), Ps.Encode(nil), extra)
	blob, ek, err := sealEnvelope(rw, secEnv, nil)
	if err != nil {
		return nil, nil, err
	}

	rec := &UserRecord{
		Ks:       ks.Encode(nil),
		Ps:       ps.Encode(nil),
		Pu:       Pu.Encode(nil),
		PsPub:    Ps.Encode(nil),
		ExtraLen: uint64(len(extra)),
		Blob:     blob,
	}
	return rec.Encode(), ek, nil
}
