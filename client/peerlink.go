package client

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// LinkState is the observed condition of one peer-to-peer link
type LinkState int

const (
	LinkConnecting LinkState = iota
	LinkConnected
	LinkDisconnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerLink is one underlying peer-to-peer connection. The negotiator drives
// it through the description exchange; payloads stay opaque JSON so the
// negotiator never depends on their structure.
type PeerLink interface {
	// CreateOffer produces a local description to send to the remote peer.
	CreateOffer() (json.RawMessage, error)
	// AcceptOffer applies a remote offer and produces the answer.
	AcceptOffer(offer json.RawMessage) (json.RawMessage, error)
	// AcceptAnswer applies the remote answer to a previously sent offer.
	AcceptAnswer(answer json.RawMessage) error
	// AddCandidate applies one remote connectivity candidate. Callers must
	// only invoke this after a remote description is set.
	AddCandidate(candidate json.RawMessage) error
	// HasRemoteDescription reports whether candidates can be applied yet.
	HasRemoteDescription() bool
	// OnCandidate registers the callback for locally gathered candidates.
	OnCandidate(func(json.RawMessage))
	// OnStateChange registers the callback for link condition changes.
	OnStateChange(func(LinkState))
	Close() error
}

// LinkFactory builds a link for a remote participant
type LinkFactory func(remoteID string) (PeerLink, error)

// pionLink backs PeerLink with a pion/webrtc peer connection.
type pionLink struct {
	pc *webrtc.PeerConnection
}

// NewPionFactory returns a LinkFactory producing WebRTC peer connections
// using the given STUN/TURN servers. configure, when non-nil, runs on every
// new connection before negotiation so callers can attach media tracks.
func NewPionFactory(iceServers []string, configure func(*webrtc.PeerConnection) error) LinkFactory {
	return func(remoteID string) (PeerLink, error) {
		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
		})
		if err != nil {
			return nil, fmt.Errorf("new peer connection for %s: %w", remoteID, err)
		}
		if configure != nil {
			if err := configure(pc); err != nil {
				pc.Close()
				return nil, fmt.Errorf("configure peer connection for %s: %w", remoteID, err)
			}
		}
		return &pionLink{pc: pc}, nil
	}
}

func (l *pionLink) CreateOffer() (json.RawMessage, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(offer)
}

func (l *pionLink) AcceptOffer(offer json.RawMessage) (json.RawMessage, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(offer, &desc); err != nil {
		return nil, fmt.Errorf("parse offer: %w", err)
	}
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(answer)
}

func (l *pionLink) AcceptAnswer(answer json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(answer, &desc); err != nil {
		return fmt.Errorf("parse answer: %w", err)
	}
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (l *pionLink) AddCandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("parse candidate: %w", err)
	}
	if err := l.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

func (l *pionLink) HasRemoteDescription() bool {
	return l.pc.RemoteDescription() != nil
}

func (l *pionLink) OnCandidate(fn func(json.RawMessage)) {
	l.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end of gathering
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		fn(data)
	})
}

func (l *pionLink) OnStateChange(fn func(LinkState)) {
	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateConnected:
			fn(LinkConnected)
		case webrtc.PeerConnectionStateDisconnected:
			fn(LinkDisconnected)
		case webrtc.PeerConnectionStateFailed:
			fn(LinkFailed)
		case webrtc.PeerConnectionStateClosed:
			fn(LinkClosed)
		case webrtc.PeerConnectionStateConnecting:
			fn(LinkConnecting)
		}
	})
}

func (l *pionLink) Close() error {
	return l.pc.Close()
}
