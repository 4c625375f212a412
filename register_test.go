package opaque

import (
	"bytes"
	"testing"
)

// TestTrustedRegisterAndLogin runs spec.md section 8 scenario 1: trusted
// registration followed by a full three-flight login. It asserts both sides
// land on the same session key and export key, and that the extra data
// sealed at registration is recovered unchanged at login.
func TestTrustedRegisterAndLogin(t *testing.T) {
	pw := []byte("simple guessable dictionary password")
	extra := []byte("some additional secret data stored in the blob")
	suite := Suite{OprfKey: []byte("some optional key contributed to the opaque protocol")}
	ids := Ids{IDU: []byte("user"), IDS: []byte("server")}
	infos := AppInfos{}

	recordBytes, regExportKey, err := InitSrv(pw, extra, suite)
	if err != nil {
		t.Fatalf("InitSrv: %v", err)
	}
	defer regExportKey.release()

	record, err := DecodeUserRecord(recordBytes)
	if err != nil {
		t.Fatalf("DecodeUserRecord: %v", err)
	}

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

	clientSk, rwd, loginExportKey, recoveredExtra, authU, err := SessionUsrFinish(pw, clientSess, msg2, ids, infos, suite, true)
	if err != nil {
		t.Fatalf("SessionUsrFinish: %v", err)
	}
	defer clientSk.release()
	defer rwd.release()
	defer loginExportKey.release()

	if !bytes.Equal(recoveredExtra, extra) {
		t.Fatalf("recovered extra mismatch:\n got  %q\n want %q", recoveredExtra, extra)
	}

	if !bytes.Equal(clientSk.bytes(), serverSk.bytes()) {
		t.Fatal("client and server session keys differ")
	}

	if !bytes.Equal(regExportKey.bytes(), loginExportKey.bytes()) {
		t.Fatal("export key at registration differs from export key at login")
	}

	if err := SessionServerAuth(serverState, authU, infos); err != nil {
		t.Fatalf("SessionServerAuth: %v", err)
	}
}

// TestTrustedRegisterRejectsOversizedExtra exercises the Overflow bound on
// InitSrv directly.
func TestTrustedRegisterRejectsOversizedExtra(t *testing.T) {
	pw := []byte("pw")
	extra := make([]byte, OPAQUE_MAX_EXTRA_BYTES+1)
	if _, _, err := InitSrv(pw, extra, DefaultSuite); err == nil {
		t.Fatal("expected an overflow error")
	} else if kerr, ok := err.(*Error); !ok || kerr.Kind != KindOverflow {
		t.Fatalf("expected KindOverflow, got %v", err)
	}
}

// TestTrustedRegisterEmptyExtra runs spec.md section 8 scenario 6: a zero-
// length extra field must round trip cleanly through registration, login,
// and blob layout, and authU must still verify.
func TestTrustedRegisterEmptyExtra(t *testing.T) {
	pw := []byte("another password")
	ids := Ids{IDU: []byte("u"), IDS: []byte("s")}
	infos := AppInfos{}

	recordBytes, regExportKey, err := InitSrv(pw, nil, DefaultSuite)
	if err != nil {
		t.Fatalf("InitSrv: %v", err)
	}
	defer regExportKey.release()

	record, err := DecodeUserRecord(recordBytes)
	if err != nil {
		t.Fatalf("DecodeUserRecord: %v", err)
	}
	if record.ExtraLen != 0 {
		t.Fatalf("expected ExtraLen 0, got %d", record.ExtraLen)
	}
	if len(record.Blob) != blobLen(0) {
		t.Fatalf("expected blob length %d, got %d", blobLen(0), len(record.Blob))
	}

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

	clientSk, _, exportKey, recoveredExtra, authU, err := SessionUsrFinish(pw, clientSess, msg2, ids, infos, DefaultSuite, true)
	if err != nil {
		t.Fatalf("SessionUsrFinish: %v", err)
	}
	defer clientSk.release()
	defer exportKey.release()

	if len(recoveredExtra) != 0 {
		t.Fatalf("expected empty recovered extra, got %d bytes", len(recoveredExtra))
	}
	if !bytes.Equal(clientSk.bytes(), serverSk.bytes()) {
		t.Fatal("session keys differ")
	}
	if err := SessionServerAuth(serverState, authU, infos); err != nil {
		t.Fatalf("SessionServerAuth: %v", err)
	}
}
