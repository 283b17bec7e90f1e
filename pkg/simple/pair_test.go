package simple

import (
	"net"
	"testing"
	"time"

	"github.com/kayua/causalnet/internal/logging"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestPair(t *testing.T, cfg Config) *Pair {
	t.Helper()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = 50 * time.Millisecond
	}
	p, err := New(cfg, logging.NewDefault(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestParseSemantic_Invalid(t *testing.T) {
	_, err := ParseSemantic("sometimes")
	require.Error(t, err)

	sem, err := ParseSemantic("exactly_once")
	require.NoError(t, err)
	require.Equal(t, ExactlyOnce, sem)
}

func TestAtMostOnce_NoAckNoRetry(t *testing.T) {
	receiver := newTestPair(t, Config{MaxRetries: 0})
	sender := newTestPair(t, Config{MaxRetries: 0})

	_, err := sender.Send(receiver.LocalAddr().String(), []byte("fire and forget"), AtMostOnce)
	require.NoError(t, err)

	select {
	case f := <-receiver.Inbound():
		require.Equal(t, "fire and forget", string(f.Payload))
	case <-time.After(time.Second):
		t.Fatal("receiver never saw the datagram")
	}

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, float64(0), testutil.ToFloat64(receiver.Metrics().AcksSent))
	require.Equal(t, float64(0), testutil.ToFloat64(sender.Metrics().Retransmissions))
}

func TestAtLeastOnce_RetriesUntilAcked(t *testing.T) {
	receiver := newTestPair(t, Config{MaxRetries: 5})
	sender := newTestPair(t, Config{AckTimeout: 30 * time.Millisecond, MaxRetries: 5})

	_, err := sender.Send(receiver.LocalAddr().String(), []byte("payload"), AtLeastOnce)
	require.NoError(t, err)

	select {
	case f := <-receiver.Inbound():
		require.Equal(t, "payload", string(f.Payload))
	case <-time.After(time.Second):
		t.Fatal("receiver never delivered the payload")
	}

	require.Eventually(t, func() bool {
		sender.outboundMu.Lock()
		defer sender.outboundMu.Unlock()
		return len(sender.outbound) == 0
	}, time.Second, 10*time.Millisecond)
}

// TestExactlyOnce_DedupsFiveIdenticalDeliveries covers scenario S5:
// "42:hello" arrives five times; the receiver up-calls "hello" exactly
// once and acks all five.
func TestExactlyOnce_DedupsFiveIdenticalDeliveries(t *testing.T) {
	receiver := newTestPair(t, Config{MaxRetries: 0})

	senderConn, err := net.DialUDP("udp", nil, receiver.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer senderConn.Close()

	for i := 0; i < 5; i++ {
		_, err := senderConn.Write([]byte("42:hello"))
		require.NoError(t, err)
	}

	select {
	case f := <-receiver.Inbound():
		require.Equal(t, "hello", string(f.Payload))
	case <-time.After(time.Second):
		t.Fatal("receiver never delivered the message")
	}

	select {
	case f := <-receiver.Inbound():
		t.Fatalf("unexpected second delivery: %+v", f)
	case <-time.After(200 * time.Millisecond):
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(receiver.Metrics().AcksSent) == 5
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, float64(4), testutil.ToFloat64(receiver.Metrics().DuplicatesSuppressed))
}

func TestNewExactlyOnceID_Unique(t *testing.T) {
	a := NewExactlyOnceID()
	b := NewExactlyOnceID()
	require.NotEqual(t, a, b)
}

func TestRetryExhaustion_GivesUp(t *testing.T) {
	sender := newTestPair(t, Config{AckTimeout: 20 * time.Millisecond, MaxRetries: 2})

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	unreachable := conn.LocalAddr().String()
	require.NoError(t, conn.Close())

	_, err = sender.Send(unreachable, []byte("ping"), AtLeastOnce)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(sender.Metrics().DeliveryGaveUp) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, float64(2), testutil.ToFloat64(sender.Metrics().Retransmissions))
}
