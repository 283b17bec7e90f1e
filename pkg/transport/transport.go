// Package transport implements an unreliable-unicast datagram transport:
// positive-acknowledgement delivery over UDP with timed retransmission, a
// retry cap, duplicate suppression on the receive side, and injectable
// loss/delay faults for testing causal delivery under adverse conditions.
package transport

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kayua/causalnet/internal/errs"
	"github.com/kayua/causalnet/internal/invoker"
	"github.com/kayua/causalnet/internal/logging"
)

// FaultConfig controls the fault injection applied to every send and every
// ACK emitted by this transport. With zero loss probabilities and a zero
// MaxDelay it behaves like a perfectly reliable network with no delay;
// AckTimeout must still be set, since a non-positive value is rejected.
type FaultConfig struct {
	// LossProbability is the chance, in [0,1], that an outbound data
	// datagram is dropped before it ever reaches the wire.
	LossProbability float64
	// AckLossProbability is the chance, in [0,1], that an outbound ACK
	// frame is dropped before it reaches the wire.
	AckLossProbability float64
	// MaxDelay bounds the Uniform(0, MaxDelay) jitter applied to a
	// datagram's first emission. Zero means no delay.
	MaxDelay time.Duration
	// AckTimeout is how long a send waits for an ACK before retrying.
	AckTimeout time.Duration
	// MaxRetries is how many retransmissions are attempted before a
	// message is abandoned. Zero means a single attempt, no retries.
	MaxRetries int
}

func (f FaultConfig) validate() error {
	if f.LossProbability < 0 || f.LossProbability > 1 {
		return fmt.Errorf("%w: loss_probability %f out of [0,1]", errs.ErrInvalidConfig, f.LossProbability)
	}
	if f.AckLossProbability < 0 || f.AckLossProbability > 1 {
		return fmt.Errorf("%w: ack_loss_probability %f out of [0,1]", errs.ErrInvalidConfig, f.AckLossProbability)
	}
	if f.MaxDelay < 0 {
		return fmt.Errorf("%w: max_delay must be >= 0", errs.ErrInvalidConfig)
	}
	if f.AckTimeout <= 0 {
		return fmt.Errorf("%w: ack_timeout must be > 0", errs.ErrInvalidConfig)
	}
	if f.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", errs.ErrInvalidConfig)
	}
	return nil
}

// Config configures a Transport.
type Config struct {
	// ProcessID identifies the owning process; it is folded into every
	// msg_id this transport generates so ids are unique group-wide.
	ProcessID int
	// ListenAddr is the local "ip:port" this transport binds for both
	// receiving datagrams and sending (the socket is shared).
	ListenAddr string
	Fault      FaultConfig
}

// Frame is a data frame delivered up on the Inbound channel, paired with
// the address it arrived from.
type Frame struct {
	Payload    []byte
	SourceAddr string
}

// outboundRecord tracks one in-flight send awaiting its ACK.
type outboundRecord struct {
	msgID    uint64
	payload  []byte
	destAddr *net.UDPAddr
	retries  int
	timer    *time.Timer
}

// Transport is an unreliable-unicast datagram endpoint: positive-ACK
// delivery over a single UDP socket shared for send and receive.
type Transport struct {
	cfg     Config
	logger  logging.Logger
	invoker invoker.Invoker
	metrics *Metrics

	conn *net.UDPConn

	outboundMu sync.Mutex
	outbound   map[uint64]*outboundRecord

	receivedMu  sync.Mutex
	receivedIDs map[uint64]struct{}

	counter uint64

	inbound chan Frame
	gaveUp  chan uint64

	closed   int32
	closeCh  chan struct{}
	closeOne sync.Once

	// ackDropHook, when non-nil, replaces the probabilistic ack-loss check
	// with a deterministic decision. Set only from tests in this package.
	ackDropHook func(msgID uint64) bool
}

// New binds the listen socket and starts the receive loop. The returned
// Transport must be closed with Close once the caller is done with it.
func New(cfg Config, logger logging.Logger, inv invoker.Invoker) (*Transport, error) {
	if err := cfg.Fault.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewDefault()
	}
	if inv == nil {
		inv = invoker.New()
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %v", errs.ErrPortUnavailable, cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: listen %q: %v", errs.ErrPortUnavailable, cfg.ListenAddr, err)
	}

	t := &Transport{
		cfg:         cfg,
		logger:      logger,
		invoker:     inv,
		metrics:     NewMetrics(cfg.ProcessID),
		conn:        conn,
		outbound:    make(map[uint64]*outboundRecord),
		receivedIDs: make(map[uint64]struct{}),
		inbound:     make(chan Frame, 64),
		gaveUp:      make(chan uint64, 64),
		closeCh:     make(chan struct{}),
	}

	t.invoker.Spawn(t.recvLoop)
	return t, nil
}

// LocalAddr returns the bound socket's address.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Metrics exposes the transport's private Prometheus registry so a host
// application can fold it into its own /metrics endpoint.
func (t *Transport) Metrics() *Metrics {
	return t.metrics
}

// Inbound returns the channel of data frames delivered by peers.
func (t *Transport) Inbound() <-chan Frame {
	return t.inbound
}

// GaveUp returns the channel of msg_ids whose retry budget was exhausted
// without an ACK ever arriving.
func (t *Transport) GaveUp() <-chan uint64 {
	return t.gaveUp
}

// Done returns a channel closed once Close has been called, so a consumer
// blocked reading Inbound or GaveUp (neither of which is ever closed, to
// avoid a send racing a channel close) has something to select against.
func (t *Transport) Done() <-chan struct{} {
	return t.closeCh
}

func (t *Transport) isClosed() bool {
	return atomic.LoadInt32(&t.closed) == 1
}

// Send emits payload to destAddr under a fresh msg_id and returns that id
// immediately; delivery is asynchronous. A failure to ever deliver surfaces
// as msg_id on the GaveUp channel, not as a returned error.
func (t *Transport) Send(destAddr string, payload []byte) (uint64, error) {
	if t.isClosed() {
		return 0, errs.ErrTransportClosed
	}
	addr, err := net.ResolveUDPAddr("udp", destAddr)
	if err != nil {
		return 0, fmt.Errorf("%w: resolve dest %q: %v", errs.ErrInvalidConfig, destAddr, err)
	}

	msgID := t.nextMsgID()
	if len(payload)+20 > MaxDatagramSize {
		t.logger.Warnf("transport: payload for msg %d exceeds recommended datagram size", msgID)
	}

	rec := &outboundRecord{msgID: msgID, payload: payload, destAddr: addr}
	t.outboundMu.Lock()
	t.outbound[msgID] = rec
	t.outboundMu.Unlock()

	t.emit(rec, t.randomDelay())
	return msgID, nil
}

func (t *Transport) nextMsgID() uint64 {
	n := atomic.AddUint64(&t.counter, 1)
	return (uint64(uint32(t.cfg.ProcessID)) << 48) | (n & 0xFFFFFFFFFFFF)
}

func (t *Transport) randomDelay() time.Duration {
	if t.cfg.Fault.MaxDelay <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(t.cfg.Fault.MaxDelay) + 1))
}

// emit schedules rec for transmission after delay, then arms the retry
// timer regardless of whether the datagram was actually written to the
// wire — a pre-wire loss still needs a retry to eventually fire, otherwise
// loss_probability=1.0 would never reach the retry cap and GaveUp.
func (t *Transport) emit(rec *outboundRecord, delay time.Duration) {
	send := func() {
		if t.isClosed() {
			return
		}
		if rand.Float64() < t.cfg.Fault.LossProbability {
			t.logger.Debugf("transport: dropping datagram %d pre-wire (loss injection)", rec.msgID)
			t.metrics.DatagramsDroppedLoss.Inc()
		} else {
			frame := encodeDataFrame(rec.msgID, rec.payload)
			if _, err := t.conn.WriteToUDP(frame, rec.destAddr); err != nil {
				t.logger.Warnf("transport: write failed for msg %d: %v", rec.msgID, err)
			} else {
				t.metrics.DatagramsSent.Inc()
			}
		}
		t.armRetryTimer(rec)
	}

	if delay <= 0 {
		send()
		return
	}
	rec.timer = time.AfterFunc(delay, send)
}

func (t *Transport) armRetryTimer(rec *outboundRecord) {
	rec.timer = time.AfterFunc(t.cfg.Fault.AckTimeout, func() {
		t.onTimer(rec.msgID)
	})
}

func (t *Transport) onTimer(msgID uint64) {
	if t.isClosed() {
		return
	}
	t.outboundMu.Lock()
	rec, ok := t.outbound[msgID]
	if !ok {
		t.outboundMu.Unlock()
		return // already acked and cleaned up
	}
	if rec.retries >= t.cfg.Fault.MaxRetries {
		delete(t.outbound, msgID)
		t.outboundMu.Unlock()
		t.metrics.DeliveryGaveUp.Inc()
		t.logger.Warnf("transport: giving up on msg %d after %d retries", msgID, rec.retries)
		select {
		case t.gaveUp <- msgID:
		case <-t.closeCh:
		}
		return
	}
	rec.retries++
	t.outboundMu.Unlock()

	t.metrics.Retransmissions.Inc()
	t.emit(rec, 0)
}

func (t *Transport) handleAck(msgID uint64) {
	t.outboundMu.Lock()
	rec, ok := t.outbound[msgID]
	if ok {
		delete(t.outbound, msgID)
	}
	t.outboundMu.Unlock()
	if ok && rec.timer != nil {
		rec.timer.Stop()
	}
}

func (t *Transport) handleData(msgID uint64, payload []byte, sourceAddr *net.UDPAddr) {
	t.receivedMu.Lock()
	_, duplicate := t.receivedIDs[msgID]
	if !duplicate {
		t.receivedIDs[msgID] = struct{}{}
	}
	t.receivedMu.Unlock()

	if duplicate {
		t.metrics.DuplicatesSuppressed.Inc()
	} else {
		select {
		case t.inbound <- Frame{Payload: payload, SourceAddr: sourceAddr.String()}:
		case <-t.closeCh:
			return
		}
	}

	// An ACK is sent every time a data frame is received, duplicate or
	// not: the sender may not have seen the previous one.
	dropAck := t.cfg.Fault.AckLossProbability > 0 && rand.Float64() < t.cfg.Fault.AckLossProbability
	if t.ackDropHook != nil {
		dropAck = t.ackDropHook(msgID)
	}
	if dropAck {
		t.metrics.AcksDroppedLoss.Inc()
		return
	}
	ack := encodeAckFrame(msgID)
	if _, err := t.conn.WriteToUDP(ack, sourceAddr); err != nil {
		t.logger.Warnf("transport: ack write failed for msg %d: %v", msgID, err)
		return
	}
	t.metrics.AcksSent.Inc()
}

func (t *Transport) recvLoop() {
	buf := make([]byte, 65535)
	for {
		n, srcAddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if t.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Warnf("transport: read error: %v", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		frame, err := parseFrame(data)
		if err != nil {
			t.logger.Warnf("transport: dropping malformed frame from %s: %v", srcAddr, err)
			continue
		}

		if frame.isAck {
			t.handleAck(frame.msgID)
		} else {
			t.handleData(frame.msgID, frame.payload, srcAddr)
		}
	}
}

// Close stops the receive loop, cancels every pending retry timer, and
// releases the socket. Close is idempotent.
func (t *Transport) Close() error {
	var err error
	t.closeOne.Do(func() {
		atomic.StoreInt32(&t.closed, 1)
		close(t.closeCh)
		err = t.conn.Close()

		t.outboundMu.Lock()
		for _, rec := range t.outbound {
			if rec.timer != nil {
				rec.timer.Stop()
			}
		}
		t.outbound = nil
		t.outboundMu.Unlock()

		t.invoker.Stop()
		// inbound and gaveUp stay open: a racing timer callback could
		// still send on them, and closing would panic. Use Done instead.
	})
	return err
}
