// Package causal implements the causal-delivery layer above an unreliable
// unicast transport: it stamps outbound payloads with sender identity and
// a vector clock, tests inbound payloads for causal readiness, and holds
// back anything that arrives out of order until its predecessors land.
package causal

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kayua/causalnet/internal/errs"
	"github.com/kayua/causalnet/internal/invoker"
	"github.com/kayua/causalnet/internal/logging"
	"github.com/kayua/causalnet/pkg/vclock"
)

// Sender is the outbound half of the transport a Process rides on.
type Sender interface {
	Send(destAddr string, payload []byte) (uint64, error)
}

// Frame is an inbound datagram handed up from the transport, already
// dedup'd by msg_id.
type Frame struct {
	Payload    []byte
	SourceAddr string
}

// Delivered is a causally-ordered application payload ready for the
// consuming application. SenderAddr is the sender's self-declared IP
// carried inside the causal frame (what the control surface hands back as
// the message's origin); TransportSourceAddr is the UDP source address the
// datagram actually arrived from, which can differ from SenderAddr and is
// kept alongside it for diagnostics.
type Delivered struct {
	Payload             []byte
	SenderAddr          string
	TransportSourceAddr string
}

type holdbackEntry struct {
	raw        []byte
	sourceAddr string
}

// Process is the causal-delivery endpoint for one process in the group.
// It owns the vector clock and the holdback queue; all mutation of either
// is serialized behind a single mutex, per the single-coarse-lock
// discipline this module standardizes on.
type Process struct {
	mu sync.Mutex

	clock  *vclock.Clock
	selfID int
	selfIP string

	sender Sender

	holdback []holdbackEntry
	delivery chan Delivered

	logger  logging.Logger
	invoker invoker.Invoker
}

// Config configures a Process.
type Config struct {
	SelfID        int
	SelfIP        string
	NumProcesses  int
	DeliveryDepth int // buffer size of the delivery channel; 0 means 64
}

// New builds a Process wrapping sender for outbound delivery. Inbound
// frames are fed in by calling Ingest as they arrive from the transport.
func New(cfg Config, sender Sender, logger logging.Logger, inv invoker.Invoker) (*Process, error) {
	clk, err := vclock.New(cfg.NumProcesses, cfg.SelfID)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewDefault()
	}
	if inv == nil {
		inv = invoker.New()
	}
	depth := cfg.DeliveryDepth
	if depth <= 0 {
		depth = 64
	}
	return &Process{
		clock:    clk,
		selfID:   cfg.SelfID,
		selfIP:   cfg.SelfIP,
		sender:   sender,
		delivery: make(chan Delivered, depth),
		logger:   logger,
		invoker:  inv,
	}, nil
}

// Delivery returns the channel application code reads causally-ordered
// payloads from.
func (p *Process) Delivery() <-chan Delivered {
	return p.delivery
}

// Listen spawns the goroutine that feeds inbound transport frames into
// Ingest, until inbound is closed.
func (p *Process) Listen(inbound <-chan Frame) {
	p.invoker.Spawn(func() {
		for frame := range inbound {
			p.Ingest(frame)
		}
	})
}

// Close waits for the Listen goroutine to exit. The caller is responsible
// for closing the inbound channel (or its transport) first.
func (p *Process) Close() {
	p.invoker.Stop()
}

// Clock exposes the process's vector clock, mainly for tests and metrics;
// callers other than this package must not mutate it directly.
func (p *Process) Clock() *vclock.Clock {
	return p.clock
}

// Send stamps payload with this process's identity and current vector
// clock, then hands the encoded frame to the transport. The own-slot
// increment and the encode-and-submit step happen under the same lock, so
// no two locally-originated sends can ever share an own-slot value.
func (p *Process) Send(payload []byte, destAddr string) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock.Increment()
	return p.sender.Send(destAddr, p.encode(payload))
}

func (p *Process) encode(payload []byte) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s:%s", payload, p.selfID, p.selfIP, p.clock.Encode()))
}

// Ingest processes one raw frame delivered by the transport: a causally
// ready message is merged into the clock, delivered, and triggers a
// holdback drain; a well-formed message that is not yet ready is queued,
// and a malformed one is logged and dropped.
func (p *Process) Ingest(frame Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ingestLocked(frame)
}

func (p *Process) ingestLocked(frame Frame) {
	payload, senderID, senderAddr, vector, err := p.parse(frame.Payload)
	if err != nil {
		p.logger.Warnf("causal: dropping malformed frame from %s: %v", frame.SourceAddr, err)
		return
	}

	ready, err := p.clock.Ready(vector, senderID)
	if err != nil {
		p.logger.Warnf("causal: dropping frame with invalid vector from %s: %v", frame.SourceAddr, err)
		return
	}
	if !ready {
		p.holdback = append(p.holdback, holdbackEntry{raw: frame.Payload, sourceAddr: frame.SourceAddr})
		return
	}

	_ = p.clock.Merge(vector)
	p.clock.Increment()
	p.deliver(Delivered{Payload: payload, SenderAddr: senderAddr, TransportSourceAddr: frame.SourceAddr})

	p.drainHoldback()
}

// drainHoldback makes repeated passes over the holdback queue until a full
// pass delivers nothing, bounding total work across an endpoint's lifetime
// to one extra pass per delivery.
func (p *Process) drainHoldback() {
	for {
		delivered := false
		remaining := p.holdback[:0]
		pending := p.holdback
		p.holdback = nil

		for _, entry := range pending {
			payload, senderID, senderAddr, vector, err := p.parse(entry.raw)
			if err != nil {
				p.logger.Warnf("causal: dropping malformed held-back frame from %s: %v", entry.sourceAddr, err)
				continue
			}
			ready, err := p.clock.Ready(vector, senderID)
			if err != nil {
				p.logger.Warnf("causal: dropping held-back frame with invalid vector from %s: %v", entry.sourceAddr, err)
				continue
			}
			if !ready {
				remaining = append(remaining, entry)
				continue
			}
			_ = p.clock.Merge(vector)
			p.clock.Increment()
			p.deliver(Delivered{Payload: payload, SenderAddr: senderAddr, TransportSourceAddr: entry.sourceAddr})
			delivered = true
		}

		p.holdback = remaining
		if !delivered || len(p.holdback) == 0 {
			return
		}
	}
}

func (p *Process) deliver(d Delivered) {
	select {
	case p.delivery <- d:
	default:
		p.logger.Warnf("causal: delivery queue full, blocking on %s", d.TransportSourceAddr)
		p.delivery <- d
	}
}

// parse splits a causal frame "<payload>:<self_id>:<self_ip>:<vector>" on
// the first three colons; the payload is assumed not to contain ':'.
func (p *Process) parse(raw []byte) (payload []byte, senderID int, senderAddr string, vector []uint64, err error) {
	fields := strings.SplitN(string(raw), ":", 4)
	if len(fields) != 4 {
		return nil, 0, "", nil, fmt.Errorf("%w: expected 4 ':'-separated fields, got %d", errs.ErrMalformedFrame, len(fields))
	}
	senderID, convErr := strconv.Atoi(fields[1])
	if convErr != nil {
		return nil, 0, "", nil, fmt.Errorf("%w: sender id %q: %v", errs.ErrMalformedFrame, fields[1], convErr)
	}
	vector, decErr := vclock.Decode(fields[3], p.clock.Len())
	if decErr != nil {
		return nil, 0, "", nil, decErr
	}
	return []byte(fields[0]), senderID, fields[2], vector, nil
}
