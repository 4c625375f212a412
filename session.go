package opaque

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	ristretto "github.com/gtank/ristretto255"
	"golang.org/x/crypto/hkdf"
)

// UserSessionSecret is the client-local Opaque_UserSession_Secret: r ‖ x_u ‖
// nonceU ‖ alpha. It never leaves the client and must be released once the
// handshake concludes, successfully or not.
type UserSessionSecret struct {
	r     *ristretto.Scalar
	xu    *ristretto.Scalar
	alpha *ristretto.Element

	nonceU []byte
}

// Release zeroises the client-local session secrets. Safe to call more than
// once.
func (s *UserSessionSecret) Release() {
	if s == nil {
		return
	}
	s.r.Zero()
	s.xu.Zero()
	zero(s.nonceU)
}

// ServerAKEState is the server-local state retained between srv() and
// server_auth(): km3 and the transcript clone saved immediately before
// info3/einfo3 were absorbed.
type ServerAKEState struct {
	km3   *secret
	saved *transcript
}

// Release zeroises the retained km3 key. The cloned transcript carries no
// secret material (it is a hash of public/authenticated fields) and needs no
// zeroisation.
func (s *ServerAKEState) Release() {
	if s == nil {
		return
	}
	s.km3.release()
}

// SessionUsrStart implements spec.md 4.5 usr_start: it blinds pw exactly as
// OPRF.Blind, generates an ephemeral D-H keypair and a session nonce, and
// returns the client-local secret state together with the flight-1 message.
func SessionUsrStart(pw []byte) (*UserSessionSecret, *UserSession, error) {
	r, alpha := blind(pw)
	xu := randomScalar()
	Xu := new(ristretto.Element).ScalarBaseMult(xu)
	nonceU := randomBytes(NonceSize)

	sess := &UserSessionSecret{r: r, xu: xu, alpha: alpha, nonceU: nonceU}
	msg := &UserSession{
		Alpha:  alpha.Encode(nil),
		Xu:     Xu.Encode(nil),
		NonceU: nonceU,
	}
	return sess, msg, nil
}

// SessionSrv implements spec.md 4.5 srv: given the client's flight-1 message
// and the stored UserRecord, it completes the OPRF evaluation, runs its half
// of 3-DH, derives the five session keys, builds the transcript, and returns
// the flight-2 message plus sk and the state server_auth needs later.
//
// SessionServerAuth releases the returned ServerAKEState when it runs; a
// caller that abandons the handshake before that must release it itself.
func SessionSrv(msg *UserSession, record *UserRecord, ids Ids, infos AppInfos) (*ServerSession, *secret, *ServerAKEState, error) {
	ks := mustScalar(record.Ks)
	defer ks.Zero()
	beta, err := evaluate(ks, msg.Alpha)
	if err != nil {
		return nil, nil, nil, err
	}
	Xu, err := decodeElement(msg.Xu)
	if err != nil {
		return nil, nil, nil, err
	}
	Pu, err := decodeElement(record.Pu)
	if err != nil {
		return nil, nil, nil, err
	}
	ps := mustScalar(record.Ps)
	defer ps.Zero()

	xs := randomScalar()
	defer xs.Zero()
	Xs := new(ristretto.Element).ScalarBaseMult(xs)
	nonceS := randomBytes(NonceSize)

	ikm := serverTripleDH(ps, xs, Pu, Xu)
	defer zero(ikm)
	keyInfo := sha256Sum(msg.NonceU, nonceS, ids.IDU, ids.IDS)
	keys, err := deriveSessionKeys(ikm, keyInfo)
	if err != nil {
		return nil, nil, nil, err
	}
	defer zero(keys.Km2)

	t := newTranscript()
	writeTranscriptShort(t, msg.Alpha, msg.NonceU, infos.Info1, msg.Xu, beta.Encode(nil), record.Blob, nonceS, infos.Info2, Xs.Encode(nil), infos.EInfo2)
	saved := t.clone()
	auth := hmacSum(keys.Km2, t.sum())

	resp := &ServerSession{
		Beta:     beta.Encode(nil),
		Xs:       Xs.Encode(nil),
		NonceS:   nonceS,
		Auth:     auth,
		ExtraLen: record.ExtraLen,
		Blob:     record.Blob,
	}

	sk, err := newSecretFrom(keys.Sk)
	zero(keys.Sk)
	if err != nil && sk == nil {
		return nil, nil, nil, err
	}
	km3, err := newSecretFrom(keys.Km3)
	zero(keys.Km3)
	zero(keys.Ke2)
	zero(keys.Ke3)
	if err != nil && km3 == nil {
		return nil, nil, nil, err
	}

	return resp, sk, &ServerAKEState{km3: km3, saved: saved}, nil
}

// SessionUsrFinish implements spec.md 4.5 usr_finish: it recomputes rw,
// opens the envelope, runs its half of 3-DH, rebuilds the transcript through
// einfo2 to verify the server's auth tag, and -- if wantAuthU is set --
// extends the transcript with info3/einfo3 to emit authU.
//
// On any failure sk and rwd must be treated as indeterminate; the export key
// is not returned.
func SessionUsrFinish(pw []byte, sess *UserSessionSecret, resp *ServerSession, ids Ids, infos AppInfos, suite Suite, wantAuthU bool) (sk *secret, rwd *secret, exportKey *secret, extra []byte, authU []byte, err error) {
	Xs, err := decodeElement(resp.Xs)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	rw, err := unblind(pw, sess.r, resp.Beta, suite.OprfKey)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	defer zero(rw)

	secEnv, clrEnv, exportKey, err := openEnvelope(rw, resp.Blob, keypairLen+int(resp.ExtraLen), 0)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	_ = clrEnv
	pu, _, Ps, extraBytes, err := decodeKeypairSecEnv(secEnv)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	puScalar, err := decodeScalar(pu)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	defer puScalar.Zero()
	PsElem, err := decodeElement(Ps)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	ikm := userTripleDH(sess.xu, PsElem, puScalar, Xs)
	defer zero(ikm)
	keyInfo := sha256Sum(sess.nonceU, resp.NonceS, ids.IDU, ids.IDS)
	keys, err := deriveSessionKeys(ikm, keyInfo)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	defer zero(keys.Km2)

	t := newTranscript()
	writeTranscriptShort(t, sess.alpha.Encode(nil), sess.nonceU, infos.Info1, new(ristretto.Element).ScalarBaseMult(sess.xu).Encode(nil), resp.Beta, resp.Blob, resp.NonceS, infos.Info2, resp.Xs, infos.EInfo2)
	xcriptShort := t.sum()

	if !ctEqual(hmacSum(keys.Km2, xcriptShort), resp.Auth) {
		zero(keys.Sk)
		zero(keys.Km3)
		zero(keys.Ke2)
		zero(keys.Ke3)
		exportKey.release()
		return nil, nil, nil, nil, nil, wrapErr(KindServerAuth, "server auth tag mismatch")
	}

	sk, err = newSecretFrom(keys.Sk)
	zero(keys.Sk)
	if err != nil && sk == nil {
		return nil, nil, nil, nil, nil, err
	}

	rwdBytes := deriveRwd(rw)
	rwd, err = newSecretFrom(rwdBytes)
	zero(rwdBytes)
	if err != nil && rwd == nil {
		return nil, nil, nil, nil, nil, err
	}

	if wantAuthU {
		t.write(infos.Info3)
		t.write(infos.EInfo3)
		authU = hmacSum(keys.Km3, t.sum())
	}
	zero(keys.Km3)
	zero(keys.Ke2)
	zero(keys.Ke3)

	return sk, rwd, exportKey, extraBytes, authU, nil
}

// SessionServerAuth implements spec.md 4.5 server_auth: it resumes the
// transcript clone saved by SessionSrv, absorbs info3/einfo3, and verifies
// authU in constant time. state is released regardless of outcome.
func SessionServerAuth(state *ServerAKEState, authU []byte, infos AppInfos) error {
	defer state.Release()
	state.saved.write(infos.Info3)
	state.saved.write(infos.EInfo3)
	computed := hmacSum(state.km3.bytes(), state.saved.sum())
	if !ctEqual(computed, authU) {
		return wrapErr(KindUserAuth, "user auth tag mismatch")
	}
	return nil
}

// writeTranscriptShort feeds the handshake fields into t in the exact order
// spec.md 4.5 fixes, up through einfo2. info3/einfo3 are intentionally
// excluded here; callers that need the long transcript (authU) write those
// two fields themselves after this call.
func writeTranscriptShort(t *transcript, alpha, nonceU, info1, xu, beta, envelope, nonceS, info2, xs, einfo2 []byte) {
	t.write(alpha)
	t.write(nonceU)
	t.write(info1)
	t.write(xu)
	t.write(beta)
	t.write(envelope)
	t.write(nonceS)
	t.write(info2)
	t.write(xs)
	t.write(einfo2)
}

// serverTripleDH computes the server's half of the dual-pairing 3-DH:
// IKM = (p_s*X_u) ‖ (x_s*P_u) ‖ (x_s*X_u).
func serverTripleDH(ps, xs *ristretto.Scalar, Pu, Xu *ristretto.Element) []byte {
	t1 := new(ristretto.Element).ScalarMult(ps, Xu)
	t2 := new(ristretto.Element).ScalarMult(xs, Pu)
	t3 := new(ristretto.Element).ScalarMult(xs, Xu)
	out := make([]byte, 0, 3*ElementSize)
	out = append(out, t1.Encode(nil)...)
	out = append(out, t2.Encode(nil)...)
	out = append(out, t3.Encode(nil)...)
	return out
}

// userTripleDH computes the user's half of the dual-pairing 3-DH:
// IKM = (x_u*P_s) ‖ (p_u*X_s) ‖ (x_u*X_s). Term by term this yields the same
// three group elements as serverTripleDH under the D-H relation even though
// the scalar/point pairings are swapped -- swapping any pair breaks interop.
func userTripleDH(xu *ristretto.Scalar, Ps *ristretto.Element, pu *ristretto.Scalar, Xs *ristretto.Element) []byte {
	t1 := new(ristretto.Element).ScalarMult(xu, Ps)
	t2 := new(ristretto.Element).ScalarMult(pu, Xs)
	t3 := new(ristretto.Element).ScalarMult(xu, Xs)
	out := make([]byte, 0, 3*ElementSize)
	out = append(out, t1.Encode(nil)...)
	out = append(out, t2.Encode(nil)...)
	out = append(out, t3.Encode(nil)...)
	return out
}

// deriveSessionKeys runs HKDF-Extract(salt=nil, IKM)/Expand(info, 5*32) to
// produce the Opaque_Keys bundle: sk ‖ km2 ‖ km3 ‖ ke2 ‖ ke3.
func deriveSessionKeys(ikm, info []byte) (*Keys, error) {
	r := hkdf.New(sha256.New, ikm, nil, info)
	keys := &Keys{
		Sk:  make([]byte, HashSize),
		Km2: make([]byte, HashSize),
		Km3: make([]byte, HashSize),
		Ke2: make([]byte, HashSize),
		Ke3: make([]byte, HashSize),
	}
	for _, k := range []([]byte){keys.Sk, keys.Km2, keys.Km3, keys.Ke2, keys.Ke3} {
		if _, err := io.ReadFull(r, k); err != nil {
			return nil, wrapErr(KindBadArg, "hkdf expand: "+err.Error())
		}
	}
	return keys, nil
}

func hmacSum(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}

func sha256Sum(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// mustScalar decodes a scalar known to come from a trusted, already-validated
// source (our own stored UserRecord), panicking only if the record was
// corrupted after DecodeUserRecord already validated its shape.
func mustScalar(b []byte) *ristretto.Scalar {
	s, err := decodeScalar(b)
	if err != nil {
		panic("opaque: corrupted user record scalar: " + err.Error())
	}
	return s
}
