package opaque

import (
	"bytes"
	"testing"

	ristretto "github.com/gtank/ristretto255"
)

func registerTestUser(t *testing.T, pw, extra []byte, suite Suite) *UserRecord {
	t.Helper()
	recordBytes, ek, err := InitSrv(pw, extra, suite)
	if err != nil {
		t.Fatalf("InitSrv: %v", err)
	}
	ek.release()
	record, err := DecodeUserRecord(recordBytes)
	if err != nil {
		t.Fatalf("DecodeUserRecord: %v", err)
	}
	return record
}

// TestLoginWrongPasswordFailsEnvelopeAuth runs spec.md section 8 scenario 3:
// a login attempt with the wrong password must fail inside SessionUsrFinish
// with EnvelopeAuth, since rw derived from the wrong password never opens
// the stored envelope.
func TestLoginWrongPasswordFailsEnvelopeAuth(t *testing.T) {
	pw := []byte("the real password")
	wrong := []byte("a different guess entirely")
	ids := Ids{IDU: []byte("user"), IDS: []byte("server")}
	infos := AppInfos{}

	record := registerTestUser(t, pw, []byte("extra"), DefaultSuite)

	clientSess, msg1, err := SessionUsrStart(wrong)
	if err != nil {
		t.Fatalf("SessionUsrStart: %v", err)
	}
	defer clientSess.Release()

	msg2, serverSk, serverState, err := SessionSrv(msg1, record, ids, infos)
	if err != nil {
		t.Fatalf("SessionSrv: %v", err)
	}
	defer serverSk.release()
	defer serverState.Release()

	_, _, _, _, _, err = SessionUsrFinish(wrong, clientSess, msg2, ids, infos, DefaultSuite, true)
	if err == nil {
		t.Fatal("expected login with the wrong password to fail")
	}
	if kerr, ok := err.(*Error); !ok || kerr.Kind != KindEnvelopeAuth {
		t.Fatalf("expected KindEnvelopeAuth, got %v", err)
	}
}

// TestLoginTamperedBetaRejected runs spec.md section 8 scenario 4: a server
// response whose beta has been corrupted in flight must be rejected, either
// immediately as an invalid point or downstream as an auth tag mismatch,
// never silently accepted.
func TestLoginTamperedBetaRejected(t *testing.T) {
	pw := []byte("tamper test password")
	ids := Ids{IDU: []byte("user"), IDS: []byte("server")}
	infos := AppInfos{}

	record := registerTestUser(t, pw, nil, DefaultSuite)

	clientSess, msg1, err := SessionUsrStart(pw)
	if err != nil {
		t.Fatalf("SessionUsrStart: %v", err)
	}
	defer clientSess.Release()

	msg2, serverSk, serverState, err := SessionSrv(msg1, record, ids, infos)
	if err != nil {
		t.Fatalf("SessionSrv: %v", err)
	}
	defer serverSk.release()
	defer serverState.Release()

	tampered := *msg2
	beta := append([]byte(nil), msg2.Beta...)
	beta[0] ^= 0xff
	tampered.Beta = beta

	_, _, _, _, _, err = SessionUsrFinish(pw, clientSess, &tampered, ids, infos, DefaultSuite, true)
	if err == nil {
		t.Fatal("expected tampered beta to be rejected")
	}
	if kerr, ok := err.(*Error); ok {
		if kerr.Kind != KindInvalidPoint && kerr.Kind != KindEnvelopeAuth {
			t.Fatalf("expected KindInvalidPoint or KindEnvelopeAuth, got %v", kerr.Kind)
		}
	}
}

// TestLoginMismatchedIdsFailsServerAuth runs spec.md section 8 scenario 5:
// if the client and server bind different identities into the session-key
// derivation, the server's auth tag (keyed with a km2 derived from the
// server's ids) must not verify against the client's recomputation (keyed
// with a km2 derived from different ids).
func TestLoginMismatchedIdsFailsServerAuth(t *testing.T) {
	pw := []byte("ids mismatch password")
	infos := AppInfos{}

	record := registerTestUser(t, pw, nil, DefaultSuite)

	clientSess, msg1, err := SessionUsrStart(pw)
	if err != nil {
		t.Fatalf("SessionUsrStart: %v", err)
	}
	defer clientSess.Release()

	serverIds := Ids{IDU: []byte("user"), IDS: []byte("server")}
	clientIds := Ids{IDU: []byte("user"), IDS: []byte("impostor-server")}

	msg2, serverSk, serverState, err := SessionSrv(msg1, record, serverIds, infos)
	if err != nil {
		t.Fatalf("SessionSrv: %v", err)
	}
	defer serverSk.release()
	defer serverState.Release()

	_, _, _, _, _, err = SessionUsrFinish(pw, clientSess, msg2, clientIds, infos, DefaultSuite, true)
	if err == nil {
		t.Fatal("expected mismatched ids to fail server auth verification")
	}
	if kerr, ok := err.(*Error); !ok || kerr.Kind != KindServerAuth {
		t.Fatalf("expected KindServerAuth, got %v", err)
	}
}

// TestServerAuthRejectsForgedAuthU checks SessionServerAuth independently:
// a forged authU tag must not verify even if the rest of the handshake was
// legitimate.
func TestServerAuthRejectsForgedAuthU(t *testing.T) {
	pw := []byte("server auth forgery test")
	ids := Ids{IDU: []byte("user"), IDS: []byte("server")}
	infos := AppInfos{}

	record := registerTestUser(t, pw, nil, DefaultSuite)

	clientSess, msg1, err := SessionUsrStart(pw)
	if err != nil {
		t.Fatalf("SessionUsrStart: %v", err)
	}
	defer clientSess.Release()

	msg2, serverSk, serverState, err := SessionSrv(msg1, record, ids, infos)
	if err != nil {
		t.Fatalf("SessionSrv: %v", err)
	}
	defer serverSk.release()

	clientSk, rwd, exportKey, _, authU, err := SessionUsrFinish(pw, clientSess, msg2, ids, infos, DefaultSuite, true)
	if err != nil {
		t.Fatalf("SessionUsrFinish: %v", err)
	}
	defer clientSk.release()
	defer rwd.release()
	defer exportKey.release()

	forged := append([]byte(nil), authU...)
	forged[0] ^= 0x01

	if err := SessionServerAuth(serverState, forged, infos); err == nil {
		t.Fatal("expected a forged authU tag to be rejected")
	} else if kerr, ok := err.(*Error); !ok || kerr.Kind != KindUserAuth {
		t.Fatalf("expected KindUserAuth, got %v", err)
	}
}

// TestTripleDHSymmetry checks the core algebraic property the whole AKE
// depends on: serverTripleDH and userTripleDH, fed the matching long-term
// and ephemeral key material from both sides, must compute bytewise
// identical IKM even though the scalar/point pairings are swapped between
// the two functions.
func TestTripleDHSymmetry(t *testing.T) {
	ps := randomScalar()
	defer ps.Zero()
	Ps := new(ristretto.Element).ScalarBaseMult(ps)

	pu := randomScalar()
	defer pu.Zero()
	Pu := new(ristretto.Element).ScalarBaseMult(pu)

	xs := randomScalar()
	defer xs.Zero()
	Xs := new(ristretto.Element).ScalarBaseMult(xs)

	xu := randomScalar()
	defer xu.Zero()
	Xu := new(ristretto.Element).ScalarBaseMult(xu)

	serverIKM := serverTripleDH(ps, xs, Pu, Xu)
	userIKM := userTripleDH(xu, Ps, pu, Xs)

	if !bytes.Equal(serverIKM, userIKM) {
		t.Fatalf("3-DH asymmetry:\n server %x\n user   %x", serverIKM, userIKM)
	}
}

// TestTripleDHSensitiveToEveryTerm checks that flipping any one of the four
// long-term/ephemeral keys changes the resulting IKM, i.e. none of the three
// D-H terms is accidentally redundant.
func TestTripleDHSensitiveToEveryTerm(t *testing.T) {
	newKeypair := func() (*ristretto.Scalar, *ristretto.Element) {
		s := randomScalar()
		return s, new(ristretto.Element).ScalarBaseMult(s)
	}

	ps, _ := newKeypair()
	pu, Pu := newKeypair()
	xs, _ := newKeypair()
	xu, Xu := newKeypair()
	defer ps.Zero()
	defer pu.Zero()
	defer xs.Zero()
	defer xu.Zero()

	base := serverTripleDH(ps, xs, Pu, Xu)

	other, otherPub := newKeypair()
	defer other.Zero()
	for name, perturbed := range map[string][]byte{
		"p_s": serverTripleDH(other, xs, Pu, Xu),
		"x_s": serverTripleDH(ps, other, Pu, Xu),
		"P_u": serverTripleDH(ps, xs, otherPub, Xu),
		"X_u": serverTripleDH(ps, xs, Pu, otherPub),
	} {
		if bytes.Equal(base, perturbed) {
			t.Fatalf("changing %s did not change the 3-DH output", name)
		}
	}
}

// TestSessionKeysDeterministicOnIKM checks that deriveSessionKeys is a pure
// function of (ikm, info): the same inputs must yield the same five keys,
// and changing info (e.g. a different nonce pair) must change the output.
func TestSessionKeysDeterministicOnIKM(t *testing.T) {
	ikm := randomBytes(3 * ElementSize)
	info1 := []byte("nonceU-nonceS-idU-idS")
	info2 := []byte("different-info")

	k1, err := deriveSessionKeys(ikm, info1)
	if err != nil {
		t.Fatalf("deriveSessionKeys: %v", err)
	}
	k2, err := deriveSessionKeys(ikm, info1)
	if err != nil {
		t.Fatalf("deriveSessionKeys: %v", err)
	}
	k3, err := deriveSessionKeys(ikm, info2)
	if err != nil {
		t.Fatalf("deriveSessionKeys: %v", err)
	}

	if !bytes.Equal(k1.Sk, k2.Sk) || !bytes.Equal(k1.Km2, k2.Km2) || !bytes.Equal(k1.Km3, k2.Km3) || !bytes.Equal(k1.Ke2, k2.Ke2) || !bytes.Equal(k1.Ke3, k2.Ke3) {
		t.Fatal("deriveSessionKeys is not deterministic on identical inputs")
	}
	if bytes.Equal(k1.Sk, k3.Sk) {
		t.Fatal("changing info did not change the derived session key")
	}
}

// TestDecodeUserSessionRejectsInvalidPoint checks that a UserSession message
// whose Xu field is a non-canonical encoding is rejected by SessionSrv
// rather than silently accepted.
func TestDecodeUserSessionRejectsInvalidPoint(t *testing.T) {
	pw := []byte("bad point test")
	record := registerTestUser(t, pw, nil, DefaultSuite)

	_, msg1, err := SessionUsrStart(pw)
	if err != nil {
		t.Fatalf("SessionUsrStart: %v", err)
	}
	bad := *msg1
	bad.Xu = bytes.Repeat([]byte{0xff}, ElementSize)

	ids := Ids{IDU: []byte("u"), IDS: []byte("s")}
	_, _, _, err = SessionSrv(&bad, record, ids, AppInfos{})
	if err == nil {
		t.Fatal("expected an invalid-point error for a bad X_u encoding")
	}
	if kerr, ok := err.(*Error); !ok || kerr.Kind != KindInvalidPoint {
		t.Fatalf("expected KindInvalidPoint, got %v", err)
	}
}
