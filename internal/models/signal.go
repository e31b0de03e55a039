package models

import "encoding/json"

// SignalType represents one step of the peer-to-peer handshake
type SignalType string

const (
	SignalTypeOffer       SignalType = "offer"
	SignalTypeAnswer      SignalType = "answer"
	SignalTypeCandidate   SignalType = "candidate"
	SignalTypeJoinRequest SignalType = "join_request" // viewer asks the host to offer
	SignalTypeHostReady   SignalType = "host_ready"   // host announces it can be asked
)

// SignalEnvelope carries a negotiation message between two participants.
// The relay never inspects Data; an empty Target means broadcast to the room
// minus the sender.
type SignalEnvelope struct {
	Type   SignalType      `json:"type"`
	Sender string          `json:"sender"`
	Target string          `json:"target,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}
