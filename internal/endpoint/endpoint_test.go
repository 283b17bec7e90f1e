package endpoint

import (
	"testing"
	"time"

	"github.com/kayua/causalnet/internal/config"
	"github.com/kayua/causalnet/internal/logging"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestEndpointConfig(processID, numProcesses int) config.Config {
	return config.Config{
		ProcessID:    processID,
		NumProcesses: numProcesses,
		Address:      "127.0.0.1",
		ListenPort:   0,
		AckTimeout:   50 * time.Millisecond,
		MaxRetries:   3,
	}
}

// TestEndpoint_SendReceiveRoundTrip exercises the full composition root
// end to end. goleak.VerifyNone must see every endpoint already Close'd,
// so the Close defers are registered after (and therefore run before, by
// LIFO order) the leak check.
func TestEndpoint_SendReceiveRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	p0, err := New(newTestEndpointConfig(0, 2), logging.NewDefault())
	require.NoError(t, err)
	defer p0.Close()

	p1, err := New(newTestEndpointConfig(1, 2), logging.NewDefault())
	require.NoError(t, err)
	defer p1.Close()

	require.Equal(t, 0, p0.ID())
	require.Equal(t, 1, p1.ID())

	_, _, ok := p1.Receive()
	require.False(t, ok, "delivery queue should start empty")

	destAddr := p1.transport.LocalAddr().String()
	require.NoError(t, p0.Send([]byte("hi"), destAddr))

	require.Eventually(t, func() bool {
		payload, senderAddr, ok := p1.Receive()
		if !ok {
			return false
		}
		require.Equal(t, "hi", string(payload))
		require.Equal(t, "127.0.0.1", senderAddr)
		return true
	}, time.Second, 10*time.Millisecond)

	_, _, ok = p1.Receive()
	require.False(t, ok, "delivery queue should be empty after the single pop")
}
