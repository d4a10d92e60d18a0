package types

// Event represents a typed event emitted during state transitions. Attribute
// values are rendered as decimal strings or lowercase hex so downstream
// indexers can consume them without schema negotiation.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
