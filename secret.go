package opaque

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// secret holds a locked, zeroise-on-release byte buffer. The keys this
// package hands back to callers (sk, rwd, the export key) and the retained
// km3 are held in a secret. Shorter-lived intermediates such as rw0, rw, the
// 3-DH IKM, and the Keys bundle are ordinary slices that are overwritten by
// zero once consumed; they are not locked against swapping.
type secret struct {
	b        []byte
	released bool
}

// newSecret allocates a locked buffer of n bytes. If the platform refuses to
// lock the pages the buffer is still usable (and still zeroised on release)
// but MemoryLock is returned so the caller can decide whether to proceed.
func newSecret(n int) (*secret, error) {
	b := make([]byte, n)
	s := &secret{b: b}
	if err := unix.Mlock(b); err != nil {
		runtime.SetFinalizer(s, (*secret).release)
		return s, wrapErr(KindMemoryLock, "mlock failed: "+err.Error())
	}
	runtime.SetFinalizer(s, (*secret).release)
	return s, nil
}

// newSecretFrom allocates a locked buffer and copies src into it.
func newSecretFrom(src []byte) (*secret, error) {
	s, err := newSecret(len(src))
	if s != nil {
		copy(s.b, src)
	}
	return s, err
}

func (s *secret) bytes() []byte {
	if s == nil || s.released {
		return nil
	}
	return s.b
}

// release zeroises the buffer, unlocks it, and marks it dead. release is
// idempotent and safe to call on every exit path, including error paths.
func (s *secret) release() {
	if s == nil || s.released {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
	_ = unix.Munlock(s.b)
	s.released = true
	runtime.SetFinalizer(s, nil)
}

// zero overwrites a plain (unlocked) byte slice in place. Used for scratch
// buffers that are too short-lived to justify a syscall-backed secret, but
// still must not linger with secret content once consumed.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
