// Package endpoint wires a VectorClock, an UnreliableTransport, and a
// CausalProcess into the single addressable unit an HTTP or CLI
// collaborator (both out of scope here) would drive: send, receive, id.
package endpoint

import (
	"fmt"

	"github.com/kayua/causalnet/internal/config"
	"github.com/kayua/causalnet/internal/errs"
	"github.com/kayua/causalnet/internal/invoker"
	"github.com/kayua/causalnet/internal/logging"
	"github.com/kayua/causalnet/pkg/causal"
	"github.com/kayua/causalnet/pkg/transport"
)

// Endpoint is the composition root for one process in the group. Each
// layer owns its own Invoker so Close can shut them down in dependency
// order instead of waiting on one shared WaitGroup.
type Endpoint struct {
	id        int
	transport *transport.Transport
	process   *causal.Process
	logger    logging.Logger
	bridgeInv invoker.Invoker
}

// New builds and starts an Endpoint: it binds the transport's listen
// socket, wires the causal layer on top of it, and starts the bridging
// and gave-up-logging goroutines. cfg must already pass Validate.
func New(cfg config.Config, logger logging.Logger) (*Endpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewDefault()
	}

	tr, err := transport.New(transport.Config{
		ProcessID:  cfg.ProcessID,
		ListenAddr: cfg.ListenAddr(),
		Fault: transport.FaultConfig{
			LossProbability:    cfg.LossProbability,
			AckLossProbability: cfg.AckLossProbability,
			MaxDelay:           cfg.MaxDelay,
			AckTimeout:         cfg.AckTimeout,
			MaxRetries:         cfg.MaxRetries,
		},
	}, logger, invoker.New())
	if err != nil {
		return nil, err
	}

	proc, err := causal.New(causal.Config{
		SelfID:       cfg.ProcessID,
		SelfIP:       cfg.Address,
		NumProcesses: cfg.NumProcesses,
	}, tr, logger, invoker.New())
	if err != nil {
		_ = tr.Close()
		return nil, fmt.Errorf("building causal process: %w", err)
	}

	bridge := make(chan causal.Frame, 64)
	proc.Listen(bridge)

	bridgeInv := invoker.New()
	ep := &Endpoint{
		id:        cfg.ProcessID,
		transport: tr,
		process:   proc,
		logger:    logger,
		bridgeInv: bridgeInv,
	}

	// Inbound and GaveUp are never closed by the transport (a send
	// racing that close would panic), so both forwarders select on
	// Done() to know when to stop instead of relying on channel closure.
	bridgeInv.Spawn(func() {
		defer close(bridge)
		for {
			select {
			case frame, ok := <-tr.Inbound():
				if !ok {
					return
				}
				bridge <- causal.Frame{Payload: frame.Payload, SourceAddr: frame.SourceAddr}
			case <-tr.Done():
				return
			}
		}
	})
	bridgeInv.Spawn(func() {
		for {
			select {
			case msgID, ok := <-tr.GaveUp():
				if !ok {
					return
				}
				logger.Warnf("endpoint %d: %v", ep.id, &errs.GaveUpErr{MsgID: msgID})
			case <-tr.Done():
				return
			}
		}
	})

	return ep, nil
}

// ID returns the static process id.
func (e *Endpoint) ID() int {
	return e.id
}

// Send enqueues an outbound causal send of payload to destAddr.
func (e *Endpoint) Send(payload []byte, destAddr string) error {
	_, err := e.process.Send(payload, destAddr)
	return err
}

// Receive is a non-blocking pop from the delivery queue; ok is false when
// the queue is currently empty.
func (e *Endpoint) Receive() (payload []byte, senderAddr string, ok bool) {
	select {
	case d := <-e.process.Delivery():
		return d.Payload, d.SenderAddr, true
	default:
		return nil, "", false
	}
}

// Close shuts down the transport (stopping its receive loop), waits for
// the bridging goroutines to drain and exit, then waits for the causal
// layer's own listen goroutine — each in the order that makes the next
// step's channel closure happen.
func (e *Endpoint) Close() error {
	err := e.transport.Close()
	e.bridgeInv.Stop()
	e.process.Close()
	return err
}
