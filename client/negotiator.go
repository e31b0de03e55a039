package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/Mitahi-1810/stream-mates/internal/models"
)

// NegotiationState tracks one link's progress through the handshake
type NegotiationState int

const (
	StateNew NegotiationState = iota
	StateOffering
	StateAnswering
	StateConnecting
	StateConnected
	StateRetrying
	StateFailed
	StateClosed
)

func (s NegotiationState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRetrying:
		return "retrying"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNegotiationFailed is terminal: the retry budget for a link is spent.
var ErrNegotiationFailed = errors.New("negotiation failed after retries")

const (
	retryInitialDelay = 2 * time.Second
	retryMaxDelay     = 30 * time.Second
	retryMaxAttempts  = 5
)

// Negotiator owns the handshake with one remote peer. All operations on the
// same instance are serialized by its mutex: a candidate arriving while an
// offer is mid-flight cannot corrupt the exchange. Instances for different
// remote peers are fully independent.
type Negotiator struct {
	localID  string
	remoteID string

	factory LinkFactory
	signal  func(models.SignalEnvelope) error
	// restart re-initiates the handshake after a failure: the host re-offers,
	// a viewer re-sends its connection request.
	restart func(*Negotiator)
	// onFailure fires once, after the retry budget is exhausted.
	onFailure func(remoteID string)

	maxAttempts int

	mu         sync.Mutex
	state      NegotiationState
	link       PeerLink
	pending    []json.RawMessage // candidates held until a remote description exists
	attempts   int
	retryTimer *time.Timer
	backoff    *backoff.ExponentialBackOff
}

// NegotiatorConfig wires a Negotiator to its surroundings. RetryDelay and
// MaxAttempts fall back to the package defaults when zero.
type NegotiatorConfig struct {
	LocalID     string
	RemoteID    string
	Factory     LinkFactory
	Signal      func(models.SignalEnvelope) error
	Restart     func(*Negotiator)
	OnFailure   func(remoteID string)
	RetryDelay  time.Duration
	MaxAttempts int
}

func NewNegotiator(cfg NegotiatorConfig) *Negotiator {
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = retryInitialDelay
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = retryMaxAttempts
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.MaxInterval = retryMaxDelay
	b.MaxElapsedTime = 0 // attempts are capped by count, not elapsed time
	b.Reset()

	return &Negotiator{
		localID:     cfg.LocalID,
		remoteID:    cfg.RemoteID,
		factory:     cfg.Factory,
		signal:      cfg.Signal,
		restart:     cfg.Restart,
		onFailure:   cfg.OnFailure,
		maxAttempts: attempts,
		state:       StateNew,
		backoff:     b,
	}
}

func (n *Negotiator) RemoteID() string { return n.remoteID }

func (n *Negotiator) State() NegotiationState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Offer starts the handshake from our side: build the link, generate an
// offer and send it to the remote peer.
func (n *Negotiator) Offer() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateClosed || n.state == StateFailed {
		return fmt.Errorf("negotiator for %s is %s", n.remoteID, n.state)
	}
	if err := n.ensureLinkLocked(); err != nil {
		return err
	}

	offer, err := n.link.CreateOffer()
	if err != nil {
		return fmt.Errorf("offer to %s: %w", n.remoteID, err)
	}
	n.state = StateOffering

	return n.signal(models.SignalEnvelope{
		Type:   models.SignalTypeOffer,
		Sender: n.localID,
		Target: n.remoteID,
		Data:   offer,
	})
}

// HandleOffer consumes a remote offer, replies with an answer and applies
// any candidates that arrived early.
func (n *Negotiator) HandleOffer(offer json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateClosed || n.state == StateFailed {
		return nil
	}
	if err := n.ensureLinkLocked(); err != nil {
		return err
	}

	n.state = StateAnswering
	answer, err := n.link.AcceptOffer(offer)
	if err != nil {
		return fmt.Errorf("answer to %s: %w", n.remoteID, err)
	}
	n.state = StateConnecting
	n.flushCandidatesLocked()

	return n.signal(models.SignalEnvelope{
		Type:   models.SignalTypeAnswer,
		Sender: n.localID,
		Target: n.remoteID,
		Data:   answer,
	})
}

// HandleAnswer applies the remote answer to our outstanding offer.
func (n *Negotiator) HandleAnswer(answer json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != StateOffering || n.link == nil {
		return nil // stale answer, e.g. after a retry rebuilt the link
	}
	if err := n.link.AcceptAnswer(answer); err != nil {
		return fmt.Errorf("apply answer from %s: %w", n.remoteID, err)
	}
	n.state = StateConnecting
	n.flushCandidatesLocked()
	return nil
}

// HandleCandidate applies a remote candidate, or buffers it until a remote
// description is set. Candidates may legitimately arrive before the
// description exchange finishes; dropping them would stall the link.
func (n *Negotiator) HandleCandidate(candidate json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateClosed || n.state == StateFailed {
		return nil
	}
	if n.link == nil || !n.link.HasRemoteDescription() {
		n.pending = append(n.pending, candidate)
		return nil
	}
	return n.link.AddCandidate(candidate)
}

// Close tears the link down and cancels any scheduled retry. No signaling
// for this peer is emitted afterwards.
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closeLocked(StateClosed)
}

func (n *Negotiator) closeLocked(final NegotiationState) {
	if n.retryTimer != nil {
		n.retryTimer.Stop()
		n.retryTimer = nil
	}
	if n.link != nil {
		_ = n.link.Close()
		n.link = nil
	}
	n.pending = nil
	n.state = final
}

func (n *Negotiator) ensureLinkLocked() error {
	if n.link != nil {
		return nil
	}
	link, err := n.factory(n.remoteID)
	if err != nil {
		return fmt.Errorf("build link to %s: %w", n.remoteID, err)
	}
	n.link = link

	link.OnCandidate(func(data json.RawMessage) {
		n.mu.Lock()
		closed := n.state == StateClosed || n.state == StateFailed
		n.mu.Unlock()
		if closed {
			return
		}
		_ = n.signal(models.SignalEnvelope{
			Type:   models.SignalTypeCandidate,
			Sender: n.localID,
			Target: n.remoteID,
			Data:   data,
		})
	})
	link.OnStateChange(n.observeLink)
	return nil
}

func (n *Negotiator) flushCandidatesLocked() {
	for _, c := range n.pending {
		if err := n.link.AddCandidate(c); err != nil {
			log.Debug().Err(err).Str("peer", n.remoteID).Msg("apply buffered candidate")
		}
	}
	n.pending = nil
}

func (n *Negotiator) observeLink(s LinkState) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch s {
	case LinkConnected:
		if n.state == StateClosed || n.state == StateFailed {
			return
		}
		n.state = StateConnected
		n.attempts = 0
		n.backoff.Reset()
		log.Info().Str("peer", n.remoteID).Msg("peer link connected")

	case LinkFailed, LinkDisconnected:
		if n.state == StateClosed || n.state == StateFailed || n.state == StateRetrying {
			return
		}
		n.scheduleRetryLocked()
	}
}

// scheduleRetryLocked arms a one-shot retry with capped exponential backoff.
// After retryMaxAttempts the negotiator goes terminal and reports failure.
func (n *Negotiator) scheduleRetryLocked() {
	n.attempts++
	if n.attempts > n.maxAttempts {
		log.Warn().Str("peer", n.remoteID).Int("attempts", n.attempts-1).Msg("retry budget exhausted")
		n.closeLocked(StateFailed)
		if n.onFailure != nil {
			go n.onFailure(n.remoteID)
		}
		return
	}

	delay := n.backoff.NextBackOff()
	n.state = StateRetrying
	log.Info().Str("peer", n.remoteID).Dur("delay", delay).Int("attempt", n.attempts).Msg("scheduling renegotiation")

	// Drop the dead link; the restart path builds a fresh one.
	if n.link != nil {
		_ = n.link.Close()
		n.link = nil
	}
	n.pending = nil

	n.retryTimer = time.AfterFunc(delay, func() {
		n.mu.Lock()
		if n.state != StateRetrying {
			n.mu.Unlock()
			return
		}
		n.state = StateNew
		n.mu.Unlock()
		if n.restart != nil {
			n.restart(n)
		}
	})
}
