/*
Package opaque implements OPAQUE, an asymmetric password-authenticated key
exchange (aPAKE). A client and a server jointly derive a shared session key
from a human password such that the server never learns the password, an
offline dictionary attack against a compromised server record requires
running Argon2id once per guess, and the server authenticates the client
without holding a password-equivalent verifier.

There are two ways to enroll a user. InitSrv runs trusted-server
registration: the caller already has the plaintext password on the server
side (e.g. during an account-import step run over an authenticated channel)
and the whole flow executes in one call. The private registration flow
(PrivateInitUsrStart, PrivateInitSrvRespond, PrivateInitUsrRespond,
PrivateInitSrvFinish) instead runs as three messages between a client and a
server that never sees the password at all.

Logging in runs as three flights: SessionUsrStart begins the handshake on the
client and emits a UserSession message; SessionSrv processes it against a
stored UserRecord and emits a ServerSession message together with the
session key and state for the final step; SessionUsrFinish processes the
server's message, verifies the server, and (optionally) emits an
authentication tag of its own; SessionServerAuth verifies that tag on the
server. If SessionUsrFinish returns a nil error the client has authenticated
the server; if SessionServerAuth returns a nil error the server has
authenticated the client. On success both sides hold the same sk.

Wire and storage encoding, transport, and persistent storage are left to the
caller: the exported functions take and return Go values (UserSession,
ServerSession, UserRecord, RegisterPub, RegisterSec, and byte slices), and
wire.go provides Encode methods and Decode functions that map UserSession,
ServerSession, UserRecord, and RegisterPub to and from their fixed
little-endian layouts. It is up to the caller to move those bytes between
client and server and to persist UserRecord bytes keyed by user ID.
RegisterSec has no wire encoding.
*/
package opaque
