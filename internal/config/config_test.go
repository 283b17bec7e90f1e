package config

import (
	"testing"
	"time"

	"github.com/kayua/causalnet/internal/errs"
	"github.com/stretchr/testify/require"
)

func validRaw() map[string]interface{} {
	return map[string]interface{}{
		"process_id":           0,
		"num_processes":        3,
		"address":              "127.0.0.1",
		"listen_port":          9000,
		"send_port":            9001,
		"max_delay":            "100ms",
		"loss_probability":     0.1,
		"ack_loss_probability": 0.0,
		"ack_timeout":          "500ms",
		"max_retries":          3,
	}
}

func TestDecode_RoundTripsDurations(t *testing.T) {
	cfg, err := Decode(validRaw())
	require.NoError(t, err)
	require.Equal(t, 100*time.Millisecond, cfg.MaxDelay)
	require.Equal(t, 500*time.Millisecond, cfg.AckTimeout)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddr())
	require.NoError(t, cfg.Validate())
}

func TestValidate_NumProcesses(t *testing.T) {
	raw := validRaw()
	raw["num_processes"] = 0
	cfg, err := Decode(raw)
	require.NoError(t, err)
	require.ErrorIs(t, cfg.Validate(), errs.ErrInvalidConfig)
}

func TestValidate_ProcessIDOutOfRange(t *testing.T) {
	raw := validRaw()
	raw["process_id"] = 5
	cfg, err := Decode(raw)
	require.NoError(t, err)
	require.ErrorIs(t, cfg.Validate(), errs.ErrInvalidConfig)
}

func TestValidate_LossProbabilityOutOfRange(t *testing.T) {
	raw := validRaw()
	raw["loss_probability"] = 1.5
	cfg, err := Decode(raw)
	require.NoError(t, err)
	require.ErrorIs(t, cfg.Validate(), errs.ErrInvalidConfig)
}

func TestValidate_UnknownSemantic(t *testing.T) {
	raw := validRaw()
	raw["semantic"] = "sometimes"
	cfg, err := Decode(raw)
	require.NoError(t, err)
	require.ErrorIs(t, cfg.Validate(), errs.ErrInvalidConfig)
}

func TestValidate_ZeroAckTimeoutRejected(t *testing.T) {
	raw := validRaw()
	raw["ack_timeout"] = "0s"
	cfg, err := Decode(raw)
	require.NoError(t, err)
	require.ErrorIs(t, cfg.Validate(), errs.ErrInvalidConfig)
}
