package opaque

// Suite carries the application-level parameters that spec.md's Non-goals
// keep out of the wire protocol (no version negotiation) but that a caller
// may still want to fix once and pass to every operation. It generalizes the
// ciphersuite/configuration value threaded through the pack's bytemare-style
// OPAQUE fragment (internal/oprf.Ciphersuite, internal/keyrecovery's
// *internal.Configuration argument) down to the single fixed group and hash
// family this spec requires.
type Suite struct {
	// OprfKey is an optional application-supplied key mixed into the OPRF's
	// fast hash stage (spec.md 4.1). A nil or empty key means no application
	// key is contributed.
	OprfKey []byte
}

// DefaultSuite is the zero-value Suite: no application OPRF key.
var DefaultSuite = Suite{}
