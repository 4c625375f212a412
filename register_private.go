package opaque

import (
	ristretto "github.com/gtank/ristretto255"
)

// PrivateRegClientSession is the client-local state of spec.md 4.4 private
// registration. The blinding scalar r never leaves the client.
type PrivateRegClientSession struct {
	r *ristretto.Scalar
}

// PrivateInitUsrStart implements spec.md 4.4 step 1, usr_start: identical to
// OPRF.Blind. Returns the client session and the public alpha to send to the
// server.
func PrivateInitUsrStart(pw []byte) (*PrivateRegClientSession, []byte, error) {
	r, alpha := blind(pw)
	return &PrivateRegClientSession{r: r}, alpha.Encode(nil), nil
}

// PrivateInitSrvRespond implements spec.md 4.4 step 2, srv_respond: the
// server samples a fresh OPRF key and a fresh long-term keypair, evaluates
// the OPRF on alpha, and returns the public (RegisterPub) and secret
// (RegisterSec) halves of its contribution. The server never learns pw on
// this path.
func PrivateInitSrvRespond(alpha []byte) (*RegisterSec, *RegisterPub, error) {
	ks := randomScalar()
	beta, err := evaluate(ks, alpha)
	if err != nil {
		ks.Zero()
		return nil, nil, err
	}
	ps := randomScalar()
	Ps := new(ristretto.Element).ScalarBaseMult(ps)

	sec := &RegisterSec{Ps: ps.Encode(nil), Ks: ks.Encode(nil)}
	pub := &RegisterPub{Beta: beta.Encode(nil), Ps: Ps.Encode(nil)}
	return sec, pub, nil
}

// PrivateInitUsrRespond implements spec.md 4.4 step 3, usr_respond: the
// client recovers rw exactly as in OPRF.Unblind, generates its own long-term
// keypair, seals (p_u, P_u, P_s, extra) under rw, and derives the
// application-facing rwd. It returns the plaintext record tail (P_u, the
// little-endian extra_len, and the sealed blob: everything the server needs to
// assemble the full Opaque_UserRecord without ever seeing p_u or pw), rwd, and
// the export key.
func PrivateInitUsrRespond(sess *PrivateRegClientSession, pw []byte, pub *RegisterPub, extra []byte, suite Suite) (recordTail []byte, rwd *secret, exportKey *secret, err error) {
	if len(extra) > OPAQUE_MAX_EXTRA_BYTES {
		return nil, nil, nil, wrapErr(KindOverflow, "extra exceeds OPAQUE_MAX_EXTRA_BYTES")
	}
	rw, err := unblind(pw, sess.r, pub.Beta, suite.OprfKey)
	if err != nil {
		return nil, nil, nil, err
	}
	defer zero(rw)

	pu := randomScalar()
	defer pu.Zero()
	Pu := new(ristretto.Element).ScalarBaseMult(pu)

	secEnv := encodeKeypairSecEnv(pu.Encode(nil), Pu.Encode(nil), pub.Ps, extra)
	blob, ek, err := sealEnvelope(rw, secEnv, nil)
	if err != nil {
		return nil, nil, nil, err
	}

	rwdBytes := deriveRwd(rw)
	rwd, err = newSecretFrom(rwdBytes)
	zero(rwdBytes)
	if err != nil && rwd == nil {
		return nil, nil, nil, err
	}

	out := make([]byte, 0, ElementSize+8+len(blob))
	out = append(out, Pu.Encode(nil)...)
	out = appendU64(out, uint64(len(extra)))
	out = append(out, blob...)
	return out, rwd, ek, nil
}

// PrivateInitSrvFinish implements spec.md 4.4 step 4, srv_finish: it writes
// k_s, p_s, and P_s into the plaintext header of the record produced by
// PrivateInitUsrRespond and returns the complete, storable UserRecord bytes.
func PrivateInitSrvFinish(sec *RegisterSec, pub *RegisterPub, recordTail []byte) ([]byte, error) {
	if len(recordTail) < ElementSize+8 {
		return nil, wrapErr(KindBadArg, "record tail truncated")
	}
	Pu := recordTail[:ElementSize]
	extraLen, off := takeU64(recordTail, ElementSize)
	if err := checkExtraLen(extraLen); err != nil {
		return nil, err
	}
	want := blobLen(int(extraLen))
	if len(recordTail)-off != want {
		return nil, wrapErr(KindBadArg, "record tail blob has wrong length")
	}
	blob := recordTail[off:]

	rec := &UserRecord{
		Ks:       sec.Ks,
		Ps:       sec.Ps,
		Pu:       Pu,
		PsPub:    pub.Ps,
		ExtraLen: extraLen,
		Blob:     blob,
	}
	return rec.Encode(), nil
}
