package sspdomain

// AuditEvent is an additive operational record of a state transition
// this service made. Only certificate creation records one; salt
// initialization, JWKS set or refresh, and user creation record no
// audit event. It is never read by the core
// protocol logic and carries no invariant of its own — it exists
// purely for operators.
type AuditEvent struct {
	EventType      string `cbor:"1,keyasint"`
	EntityType     string `cbor:"2,keyasint"`
	EntityID       string `cbor:"3,keyasint"`
	Initiator      string `cbor:"4,keyasint"`
	OccurredAtWire string `cbor:"5,keyasint"`
	Seq            uint64 `cbor:"6,keyasint"`
}
