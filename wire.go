package opaque

import (
	"encoding/binary"
)

// OPAQUE_MAX_EXTRA_BYTES bounds extra_len to prevent integer overflow when
// sizing buffers from an untrusted length field, per spec.md section 6.
const OPAQUE_MAX_EXTRA_BYTES = 1 << 20 // 1 MiB

// keypairLen is the fixed length of the keypair fields of the envelope's
// secret payload: p_u, P_u, and P_s concatenated (S + 2P in spec.md section
// 3's notation). The full SecEnv additionally carries extra_len bytes of
// extra data appended after P_s -- per spec.md 4.3, extra is sealed inside
// SecEnv, not held as separate cleartext; see DESIGN.md on Open Question (i).
const keypairLen = ScalarSize + 2*ElementSize

// blobLen returns the total byte length of an Opaque_Blob carrying extraLen
// bytes of extra data: nonce ‖ ciphertext(keypairLen+extraLen) ‖ tag.
func blobLen(extraLen int) int {
	return NonceSize + keypairLen + extraLen + TagSize
}

// checkExtraLen validates an extra_len value read from an untrusted source
// (a wire message or an on-disk record) against the overflow bound of
// spec.md section 6.
func checkExtraLen(extraLen uint64) error {
	if extraLen > OPAQUE_MAX_EXTRA_BYTES {
		return wrapErr(KindOverflow, "extra_len exceeds OPAQUE_MAX_EXTRA_BYTES")
	}
	return nil
}

// encodeKeypairSecEnv packs (p_u, P_u, P_s, extra) into the SecEnv that
// sealEnvelope encrypts. extra is appended exactly once, guarded by its own
// length -- spec.md design note 9(i) flags the original source's duplicated,
// unconditional-plus-guarded copy of extra as likely buggy; this
// implementation keeps only the guarded copy.
func encodeKeypairSecEnv(pu, Pu, Ps, extra []byte) []byte {
	out := make([]byte, 0, keypairLen+len(extra))
	out = append(out, pu...)
	out = append(out, Pu...)
	out = append(out, Ps...)
	if len(extra) > 0 {
		out = append(out, extra...)
	}
	return out
}

// decodeKeypairSecEnv is the inverse of encodeKeypairSecEnv.
func decodeKeypairSecEnv(b []byte) (pu, Pu, Ps, extra []byte, err error) {
	if len(b) < keypairLen {
		return nil, nil, nil, nil, wrapErr(KindBadArg, "secret envelope payload has wrong length")
	}
	pu = b[0:ScalarSize]
	Pu = b[ScalarSize : ScalarSize+ElementSize]
	Ps = b[ScalarSize+ElementSize : ScalarSize+2*ElementSize]
	extra = b[keypairLen:]
	return pu, Pu, Ps, extra, nil
}

// UserRecord is the server-stored Opaque_UserRecord: k_s ‖ p_s ‖ P_u ‖ P_s ‖
// extra_len ‖ Opaque_Blob.
type UserRecord struct {
	Ks       []byte // 32, OPRF key
	Ps       []byte // 32, server long-term private scalar
	Pu       []byte // 32, user long-term public point (plaintext duplicate)
	PsPub    []byte // 32, server long-term public point
	ExtraLen uint64
	Blob     []byte // Opaque_Blob, blobLen(ExtraLen) bytes
}

// Encode serializes a UserRecord in the fixed little-endian layout of
// spec.md section 6.
func (r *UserRecord) Encode() []byte {
	out := make([]byte, 0, ScalarSize*2+ElementSize*2+8+len(r.Blob))
	out = append(out, r.Ks...)
	out = append(out, r.Ps...)
	out = append(out, r.Pu...)
	out = append(out, r.PsPub...)
	out = appendU64(out, r.ExtraLen)
	out = append(out, r.Blob...)
	return out
}

// DecodeUserRecord parses a UserRecord from its wire encoding.
func DecodeUserRecord(b []byte) (*UserRecord, error) {
	const head = ScalarSize*2 + ElementSize*2 + 8
	if len(b) < head {
		return nil, wrapErr(KindBadArg, "user record truncated")
	}
	r := &UserRecord{}
	off := 0
	r.Ks, off = take(b, off, ScalarSize)
	r.Ps, off = take(b, off, ScalarSize)
	r.Pu, off = take(b, off, ElementSize)
	r.PsPub, off = take(b, off, ElementSize)
	r.ExtraLen, off = takeU64(b, off)
	if err := checkExtraLen(r.ExtraLen); err != nil {
		return nil, err
	}
	want := blobLen(int(r.ExtraLen))
	if len(b)-off != want {
		return nil, wrapErr(KindBadArg, "user record blob has wrong length")
	}
	r.Blob = b[off:]
	return r, nil
}

// UserSession is the flight-1 Opaque_UserSession: alpha ‖ X_u ‖ nonceU.
type UserSession struct {
	Alpha  []byte // 32
	Xu     []byte // 32
	NonceU []byte // 32
}

// Encode serializes a UserSession.
func (m *UserSession) Encode() []byte {
	out := make([]byte, 0, ElementSize*2+NonceSize)
	out = append(out, m.Alpha...)
	out = append(out, m.Xu...)
	out = append(out, m.NonceU...)
	return out
}

// DecodeUserSession parses the fixed 96-byte UserSession message.
func DecodeUserSession(b []byte) (*UserSession, error) {
	if len(b) != ElementSize*2+NonceSize {
		return nil, wrapErr(KindBadArg, "user session has wrong length")
	}
	m := &UserSession{}
	off := 0
	m.Alpha, off = take(b, off, ElementSize)
	m.Xu, off = take(b, off, ElementSize)
	m.NonceU, _ = take(b, off, NonceSize)
	return m, nil
}

// ServerSession is the flight-2 Opaque_ServerSession: beta ‖ X_s ‖ nonceS ‖
// auth ‖ extra_len ‖ Opaque_Blob.
type ServerSession struct {
	Beta     []byte // 32
	Xs       []byte // 32
	NonceS   []byte // 32
	Auth     []byte // 32
	ExtraLen uint64
	Blob     []byte
}

// Encode serializes a ServerSession.
func (m *ServerSession) Encode() []byte {
	out := make([]byte, 0, ElementSize*2+NonceSize+TagSize+8+len(m.Blob))
	out = append(out, m.Beta...)
	out = append(out, m.Xs...)
	out = append(out, m.NonceS...)
	out = append(out, m.Auth...)
	out = appendU64(out, m.ExtraLen)
	out = append(out, m.Blob...)
	return out
}

// DecodeServerSession parses a ServerSession.
func DecodeServerSession(b []byte) (*ServerSession, error) {
	const head = ElementSize*2 + NonceSize + TagSize + 8
	if len(b) < head {
		return nil, wrapErr(KindBadArg, "server session truncated")
	}
	m := &ServerSession{}
	off := 0
	m.Beta, off = take(b, off, ElementSize)
	m.Xs, off = take(b, off, ElementSize)
	m.NonceS, off = take(b, off, NonceSize)
	m.Auth, off = take(b, off, TagSize)
	m.ExtraLen, off = takeU64(b, off)
	if err := checkExtraLen(m.ExtraLen); err != nil {
		return nil, err
	}
	want := blobLen(int(m.ExtraLen))
	if len(b)-off != want {
		return nil, wrapErr(KindBadArg, "server session blob has wrong length")
	}
	m.Blob = b[off:]
	return m, nil
}

// RegisterPub is the public half of the private-registration response: beta
// ‖ P_s.
type RegisterPub struct {
	Beta []byte // 32
	Ps   []byte // 32
}

// Encode serializes a RegisterPub.
func (m *RegisterPub) Encode() []byte {
	out := make([]byte, 0, ElementSize*2)
	out = append(out, m.Beta...)
	out = append(out, m.Ps...)
	return out
}

// DecodeRegisterPub parses a RegisterPub.
func DecodeRegisterPub(b []byte) (*RegisterPub, error) {
	if len(b) != ElementSize*2 {
		return nil, wrapErr(KindBadArg, "register pub has wrong length")
	}
	m := &RegisterPub{}
	off := 0
	m.Beta, off = take(b, off, ElementSize)
	m.Ps, _ = take(b, off, ElementSize)
	return m, nil
}

// RegisterSec is the server-local secret half of private registration: p_s
// ‖ k_s. It never leaves the server.
type RegisterSec struct {
	Ps []byte // 32
	Ks []byte // 32
}

// Ids is Opaque_Ids: the two identity byte strings bound into the AKE's
// session-key derivation (the HKDF info is SHA-256(nonceU ‖ nonceS ‖ idU ‖
// idS)); they are not written into the transcript hash.
type Ids struct {
	IDU []byte
	IDS []byte
}

// Encode serializes Ids as length-prefixed byte strings.
func (ids Ids) Encode() []byte {
	out := make([]byte, 0, 16+len(ids.IDU)+len(ids.IDS))
	out = appendU64(out, uint64(len(ids.IDU)))
	out = append(out, ids.IDU...)
	out = appendU64(out, uint64(len(ids.IDS)))
	out = append(out, ids.IDS...)
	return out
}

// AppInfos is Opaque_App_Infos: the five optional byte strings mixed into the
// transcript at protocol-fixed positions. A nil slice is treated as empty.
type AppInfos struct {
	Info1  []byte
	Info2  []byte
	EInfo2 []byte
	Info3  []byte
	EInfo3 []byte
}

// Keys is the session-local Opaque_Keys bundle: sk ‖ km2 ‖ km3 ‖ ke2 ‖ ke3.
type Keys struct {
	Sk  []byte
	Km2 []byte
	Km3 []byte
	Ke2 []byte
	Ke3 []byte
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func take(b []byte, off, n int) ([]byte, int) {
	return b[off : off+n], off + n
}

func takeU64(b []byte, off int) (uint64, int) {
	return binary.LittleEndian.Uint64(b[off : off+8]), off + 8
}
