// Package simple implements a stand-alone sender/receiver pair offering
// three user-selectable delivery semantics — at_most_once, at_least_once,
// exactly_once — on raw datagrams, sharing wire framing with the
// unreliable transport but without the causal-ordering layer above it.
package simple

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kayua/causalnet/internal/errs"
	"github.com/kayua/causalnet/internal/invoker"
	"github.com/kayua/causalnet/internal/logging"
)

const ackPrefix = "ACK:"

// Config configures a Pair.
type Config struct {
	ListenAddr string
	AckTimeout time.Duration
	MaxRetries int
}

// Frame is a delivered payload paired with its source address.
type Frame struct {
	Payload    []byte
	SourceAddr string
}

type outboundRecord struct {
	id       uint64
	frame    []byte
	destAddr *net.UDPAddr
	retries  int
	timer    *time.Timer
}

// Pair is a single endpoint of a simple sender/receiver pair: it can send
// under any of the three semantics and, concurrently, receive whatever a
// peer sends it.
type Pair struct {
	cfg     Config
	logger  logging.Logger
	invoker invoker.Invoker
	metrics *Metrics

	conn *net.UDPConn

	counter uint64

	outboundMu sync.Mutex
	outbound   map[uint64]*outboundRecord

	deliveredMu  sync.Mutex
	deliveredIDs map[uint64]struct{}

	inbound chan Frame

	closed  int32
	closeCh chan struct{}
	once    sync.Once
}

// New binds the listen socket and starts the receive loop.
func New(cfg Config, logger logging.Logger, inv invoker.Invoker) (*Pair, error) {
	if cfg.AckTimeout <= 0 {
		return nil, fmt.Errorf("%w: ack_timeout must be > 0", errs.ErrInvalidConfig)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max_retries must be >= 0", errs.ErrInvalidConfig)
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

	p := &Pair{
		cfg:          cfg,
		logger:       logger,
		invoker:      inv,
		metrics:      NewMetrics(cfg.ListenAddr),
		conn:         conn,
		outbound:     make(map[uint64]*outboundRecord),
		deliveredIDs: make(map[uint64]struct{}),
		inbound:      make(chan Frame, 64),
		closeCh:      make(chan struct{}),
	}
	p.invoker.Spawn(p.recvLoop)
	return p, nil
}

func (p *Pair) LocalAddr() net.Addr   { return p.conn.LocalAddr() }
func (p *Pair) Metrics() *Metrics     { return p.metrics }
func (p *Pair) Inbound() <-chan Frame { return p.inbound }

func (p *Pair) isClosed() bool { return atomic.LoadInt32(&p.closed) == 1 }

// Send dispatches payload under the given semantic. For ExactlyOnce,
// payload must already be the sender-chosen "<id>:<rest>" encoding; the
// caller picks the id so that repeated calls with the same id are
// recognized by the receiver as the same logical message.
func (p *Pair) Send(destAddr string, payload []byte, sem Semantic) (uint64, error) {
	if p.isClosed() {
		return 0, errs.ErrTransportClosed
	}
	addr, err := net.ResolveUDPAddr("udp", destAddr)
	if err != nil {
		return 0, fmt.Errorf("%w: resolve dest %q: %v", errs.ErrInvalidConfig, destAddr, err)
	}

	switch sem {
	case AtMostOnce:
		_, werr := p.conn.WriteToUDP(payload, addr)
		if werr != nil {
			p.logger.Warnf("simple: at_most_once write failed: %v", werr)
		} else {
			p.metrics.DatagramsSent.Inc()
		}
		return 0, nil

	case AtLeastOnce:
		id := atomic.AddUint64(&p.counter, 1)
		frame := []byte(strconv.FormatUint(id, 10) + ":" + string(payload))
		return id, p.sendTracked(id, frame, addr)

	case ExactlyOnce:
		id, err := parseLeadingID(payload)
		if err != nil {
			return 0, err
		}
		return id, p.sendTracked(id, payload, addr)

	default:
		return 0, fmt.Errorf("%w: unknown semantic %q", errs.ErrInvalidConfig, sem)
	}
}

func parseLeadingID(payload []byte) (uint64, error) {
	s := string(payload)
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return 0, fmt.Errorf("%w: exactly_once payload missing '<id>:' prefix", errs.ErrInvalidConfig)
	}
	id, err := strconv.ParseUint(s[:idx], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: exactly_once id %q: %v", errs.ErrInvalidConfig, s[:idx], err)
	}
	return id, nil
}

func (p *Pair) sendTracked(id uint64, frame []byte, addr *net.UDPAddr) error {
	rec := &outboundRecord{id: id, frame: frame, destAddr: addr}
	p.outboundMu.Lock()
	p.outbound[id] = rec
	p.outboundMu.Unlock()
	p.emit(rec)
	return nil
}

func (p *Pair) emit(rec *outboundRecord) {
	if p.isClosed() {
		return
	}
	if _, err := p.conn.WriteToUDP(rec.frame, rec.destAddr); err != nil {
		p.logger.Warnf("simple: write failed for id %d: %v", rec.id, err)
	} else {
		p.metrics.DatagramsSent.Inc()
	}
	rec.timer = time.AfterFunc(p.cfg.AckTimeout, func() { p.onTimer(rec.id) })
}

func (p *Pair) onTimer(id uint64) {
	if p.isClosed() {
		return
	}
	p.outboundMu.Lock()
	rec, ok := p.outbound[id]
	if !ok {
		p.outboundMu.Unlock()
		return
	}
	if rec.retries >= p.cfg.MaxRetries {
		delete(p.outbound, id)
		p.outboundMu.Unlock()
		p.metrics.DeliveryGaveUp.Inc()
		p.logger.Warnf("simple: giving up on id %d after %d retries", id, rec.retries)
		return
	}
	rec.retries++
	p.outboundMu.Unlock()
	p.metrics.Retransmissions.Inc()
	p.emit(rec)
}

func (p *Pair) handleAck(id uint64) {
	p.outboundMu.Lock()
	rec, ok := p.outbound[id]
	if ok {
		delete(p.outbound, id)
	}
	p.outboundMu.Unlock()
	if ok && rec.timer != nil {
		rec.timer.Stop()
	}
}

func (p *Pair) handleData(raw []byte, srcAddr *net.UDPAddr) {
	s := string(raw)
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		// No id prefix: an at_most_once datagram. Deliver once, no ack.
		p.deliverUp(Frame{Payload: raw, SourceAddr: srcAddr.String()})
		p.metrics.DeliveriesAtMostOnce.Inc()
		return
	}
	id, err := strconv.ParseUint(s[:idx], 10, 64)
	if err != nil {
		// Not actually an id-prefixed frame (e.g. a payload that happens
		// to contain a colon); treat as at_most_once too.
		p.deliverUp(Frame{Payload: raw, SourceAddr: srcAddr.String()})
		p.metrics.DeliveriesAtMostOnce.Inc()
		return
	}

	p.deliveredMu.Lock()
	_, duplicate := p.deliveredIDs[id]
	if !duplicate {
		p.deliveredIDs[id] = struct{}{}
	}
	p.deliveredMu.Unlock()

	if duplicate {
		p.metrics.DuplicatesSuppressed.Inc()
	} else {
		p.deliverUp(Frame{Payload: []byte(s[idx+1:]), SourceAddr: srcAddr.String()})
	}

	ack := []byte(ackPrefix + strconv.FormatUint(id, 10))
	if _, err := p.conn.WriteToUDP(ack, srcAddr); err != nil {
		p.logger.Warnf("simple: ack write failed for id %d: %v", id, err)
		return
	}
	p.metrics.AcksSent.Inc()
}

func (p *Pair) deliverUp(f Frame) {
	select {
	case p.inbound <- f:
	case <-p.closeCh:
	}
}

func (p *Pair) recvLoop() {
	buf := make([]byte, 65535)
	for {
		n, srcAddr, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			if p.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			p.logger.Warnf("simple: read error: %v", err)
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		if strings.HasPrefix(string(data), ackPrefix) {
			id, err := strconv.ParseUint(string(data[len(ackPrefix):]), 10, 64)
			if err != nil {
				p.logger.Warnf("simple: dropping malformed ack from %s: %v", srcAddr, err)
				continue
			}
			p.handleAck(id)
			continue
		}
		p.handleData(data, srcAddr)
	}
}

// Close stops the receive loop, cancels pending retry timers, and releases
// the socket. Close is idempotent.
func (p *Pair) Close() error {
	var err error
	p.once.Do(func() {
		atomic.StoreInt32(&p.closed, 1)
		close(p.closeCh)
		err = p.conn.Close()

		p.outboundMu.Lock()
		for _, rec := range p.outbound {
			if rec.timer != nil {
				rec.timer.Stop()
			}
		}
		p.outbound = nil
		p.outboundMu.Unlock()

		p.invoker.Stop()
	})
	return err
}
