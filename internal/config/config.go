// Package config defines the typed configuration an endpoint is built
// from, decoded from a generic map so that either a flag parser or a file
// loader can populate it without this package knowing which.
package config

import (
	"fmt"
	"time"

	"github.com/kayua/causalnet/internal/errs"
	"github.com/kayua/causalnet/pkg/simple"
	"github.com/mitchellh/mapstructure"
)

// Config is every knob named in the control-surface contract: process
// identity, network binding, and the transport's fault-injection dials.
type Config struct {
	ProcessID    int    `mapstructure:"process_id"`
	NumProcesses int    `mapstructure:"num_processes"`
	Address      string `mapstructure:"address"`
	ListenPort   int    `mapstructure:"listen_port"`
	SendPort     int    `mapstructure:"send_port"`

	MaxDelay           time.Duration `mapstructure:"max_delay"`
	LossProbability    float64       `mapstructure:"loss_probability"`
	AckLossProbability float64       `mapstructure:"ack_loss_probability"`
	AckTimeout         time.Duration `mapstructure:"ack_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`

	// Semantic only applies to the stand-alone SimpleSemanticsPair mode;
	// the causal endpoint ignores it.
	Semantic string `mapstructure:"semantic"`
}

// Decode builds a Config from a generic map, the shape a CLI flag parser
// or a file loader would hand in after its own parsing.
func Decode(raw map[string]interface{}) (Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return Config{}, fmt.Errorf("%w: building config decoder: %v", errs.ErrInvalidConfig, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("%w: decoding config: %v", errs.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Validate checks every range the component contracts in spec.md §4.1,
// §4.2, and §4.4 name, returning ErrInvalidConfig wrapped with the first
// violation found.
func (c Config) Validate() error {
	if c.NumProcesses <= 0 {
		return fmt.Errorf("%w: num_processes must be > 0, got %d", errs.ErrInvalidConfig, c.NumProcesses)
	}
	if c.ProcessID < 0 || c.ProcessID >= c.NumProcesses {
		return fmt.Errorf("%w: process_id %d out of range [0,%d)", errs.ErrInvalidConfig, c.ProcessID, c.NumProcesses)
	}
	if c.Address == "" {
		return fmt.Errorf("%w: address must not be empty", errs.ErrInvalidConfig)
	}
	// 0 asks the OS for an ephemeral port.
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("%w: listen_port %d out of range", errs.ErrInvalidConfig, c.ListenPort)
	}
	if c.SendPort < 0 || c.SendPort > 65535 {
		return fmt.Errorf("%w: send_port %d out of range", errs.ErrInvalidConfig, c.SendPort)
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("%w: max_delay must be >= 0", errs.ErrInvalidConfig)
	}
	if c.LossProbability < 0 || c.LossProbability > 1 {
		return fmt.Errorf("%w: loss_probability %f out of [0,1]", errs.ErrInvalidConfig, c.LossProbability)
	}
	if c.AckLossProbability < 0 || c.AckLossProbability > 1 {
		return fmt.Errorf("%w: ack_loss_probability %f out of [0,1]", errs.ErrInvalidConfig, c.AckLossProbability)
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("%w: ack_timeout must be > 0", errs.ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", errs.ErrInvalidConfig)
	}
	if c.Semantic != "" {
		if _, err := simple.ParseSemantic(c.Semantic); err != nil {
			return err
		}
	}
	return nil
}

// ListenAddr is the "ip:port" the transport binds.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.ListenPort)
}
