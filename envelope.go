package opaque

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// envelopeInfoSuffix domain-separates the envelope's HKDF-Expand step from any
// other use of rw as an HKDF input key.
const envelopeInfoSuffix = "EnvU"

// sealEnvelope implements spec.md 4.2 Seal: it derives a pad, an HMAC key, and
// an export key from rw via HKDF-Expand(prk=rw, info=nonce||"EnvU"), XORs
// secEnv against the pad to produce the ciphertext, and appends clrEnv
// (unencrypted) and an HMAC tag covering nonce||ciphertext||clrEnv.
//
// sealEnvelope makes no copy of rw; the returned export key is held in a
// secret and is the caller's responsibility to release.
func sealEnvelope(rw []byte, secEnv, clrEnv []byte) (envelope []byte, exportKey *secret, err error) {
	nonce := randomBytes(NonceSize)

	pad, hmacKey, ek, err := envelopeKeys(rw, nonce, len(secEnv))
	if err != nil {
		return nil, nil, err
	}
	defer zero(pad)
	defer zero(hmacKey)

	ciphertext := make([]byte, len(secEnv))
	for i := range secEnv {
		ciphertext[i] = secEnv[i] ^ pad[i]
	}

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(nonce)
	mac.Write(ciphertext)
	mac.Write(clrEnv)
	tag := mac.Sum(nil)

	out := make([]byte, 0, len(nonce)+len(ciphertext)+len(clrEnv)+len(tag))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	out = append(out, clrEnv...)
	out = append(out, tag...)

	exportKey, err = newSecretFrom(ek)
	zero(ek)
	if err != nil && exportKey == nil {
		return nil, nil, err
	}
	return out, exportKey, nil
}

// openEnvelope implements spec.md 4.2 Open. secEnvLen and clrEnvLen must match
// the lengths used at Seal time; the caller (registration/session code) knows
// these from the fixed Opaque_Blob schema. On any HMAC mismatch this returns
// ErrEnvelopeAuth and the caller must treat sk/rwd as indeterminate.
func openEnvelope(rw []byte, envelope []byte, secEnvLen, clrEnvLen int) (secEnv, clrEnv []byte, exportKey *secret, err error) {
	want := NonceSize + secEnvLen + clrEnvLen + TagSize
	if len(envelope) != want {
		return nil, nil, nil, wrapErr(KindBadArg, "envelope has wrong length")
	}
	nonce := envelope[:NonceSize]
	ciphertext := envelope[NonceSize : NonceSize+secEnvLen]
	clr := envelope[NonceSize+secEnvLen : NonceSize+secEnvLen+clrEnvLen]
	tag := envelope[NonceSize+secEnvLen+clrEnvLen:]

	pad, hmacKey, ek, err := envelopeKeys(rw, nonce, secEnvLen)
	if err != nil {
		return nil, nil, nil, err
	}
	defer zero(pad)
	defer zero(hmacKey)

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(nonce)
	mac.Write(ciphertext)
	mac.Write(clr)
	computed := mac.Sum(nil)

	if !ctEqual(computed, tag) {
		zero(ek)
		return nil, nil, nil, wrapErr(KindEnvelopeAuth, "envelope tag mismatch")
	}

	sec := make([]byte, secEnvLen)
	for i := range ciphertext {
		sec[i] = ciphertext[i] ^ pad[i]
	}
	clrCopy := append([]byte(nil), clr...)

	exportKey, err = newSecretFrom(ek)
	zero(ek)
	if err != nil && exportKey == nil {
		return nil, nil, nil, err
	}
	return sec, clrCopy, exportKey, nil
}

// envelopeKeys runs HKDF-Expand(prk=rw, info=nonce||"EnvU", L) and partitions
// the output into (pad, hmacKey, exportKey) of lengths (secEnvLen, 32, 32).
func envelopeKeys(rw, nonce []byte, secEnvLen int) (pad, hmacKey, exportKey []byte, err error) {
	info := append(append([]byte{}, nonce...), []byte(envelopeInfoSuffix)...)
	r := hkdf.Expand(sha256.New, rw, info)

	pad = make([]byte, secEnvLen)
	hmacKey = make([]byte, HashSize)
	exportKey = make([]byte, HashSize)
	if _, err = io.ReadFull(r, pad); err != nil {
		return nil, nil, nil, wrapErr(KindBadArg, "hkdf expand: "+err.Error())
	}
	if _, err = io.ReadFull(r, hmacKey); err != nil {
		return nil, nil, nil, wrapErr(KindBadArg, "hkdf expand: "+err.Error())
	}
	if _, err = io.ReadFull(r, exportKey); err != nil {
		return nil, nil, nil, wrapErr(KindBadArg, "hkdf expand: "+err.Error())
	}
	return pad, hmacKey, exportKey, nil
}
