package opaque

import (
	"crypto/sha256"
	"encoding"
	"hash"
)

// transcript accumulates the canonical byte ordering of handshake fields into
// a running SHA-256 state, per spec.md 4.5 and design note 9. The server side
// needs to both emit its own auth tag over a short prefix of the transcript
// and later verify authU over the full transcript, so it must be able to save
// a snapshot before absorbing the final fields and resume hashing from there
// without re-absorbing everything already written.
type transcript struct {
	h hash.Hash
}

// newTranscript starts a fresh transcript.
func newTranscript() *transcript {
	return &transcript{h: sha256.New()}
}

// write absorbs b into the running hash.
func (t *transcript) write(b []byte) {
	t.h.Write(b)
}

// sum finalizes a COPY of the running hash, leaving t usable for further
// writes (SHA-256's Sum never mutates the receiver, but we route through this
// helper so the "finalize without disturbing state" intent is explicit at
// every call site).
func (t *transcript) sum() []byte {
	return t.h.Sum(nil)
}

// clone snapshots the current hash state into an independent transcript that
// can be advanced separately from t. This is the save point spec.md 4.5
// requires immediately before absorbing info3/einfo3: the server emits auth
// from t's state at the clone point, then later advances the clone with
// info3/einfo3 to verify authU.
func (t *transcript) clone() *transcript {
	marshaler, ok := t.h.(encoding.BinaryMarshaler)
	if !ok {
		panic("opaque: sha256 hash state does not support cloning")
	}
	state, err := marshaler.MarshalBinary()
	if err != nil {
		panic("opaque: marshal hash state: " + err.Error())
	}
	h2 := sha256.New()
	if err := h2.(encoding.BinaryUnmarshaler).UnmarshalBinary(state); err != nil {
		panic("opaque: unmarshal hash state: " + err.Error())
	}
	return &transcript{h: h2}
}
