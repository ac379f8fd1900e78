package node

import (
	"testing"
	"time"

	"github.com/safenetwork/safenode/src/common"
	"github.com/sirupsen/logrus"
)

// Config ...
type Config struct {
	// RequestTimeout bounds the requests the node sends and the handling of
	// the requests it receives.
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// BootstrapTimeout bounds the dials and the lookup of Bootstrap.
	BootstrapTimeout time.Duration `mapstructure:"bootstrap-timeout"`

	// Moniker is a friendly name shown in the stats.
	Moniker string `mapstructure:"moniker"`

	Logger *logrus.Logger
}

// NewConfig ...
func NewConfig(requestTimeout time.Duration,
	bootstrapTimeout time.Duration,
	moniker string,
	logger *logrus.Logger) *Config {

	return &Config{
		RequestTimeout:   requestTimeout,
		BootstrapTimeout: bootstrapTimeout,
		Moniker:          moniker,
		Logger:           logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		RequestTimeout:   30 * time.Second,
		BootstrapTimeout: 30 * time.Second,
		Logger:           logger,
	}
}

// TestConfig ...
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.RequestTimeout = 5 * time.Second
	config.BootstrapTimeout = 5 * time.Second
	config.Logger = common.NewTestLogger(t, common.TestLogLevel)
	return config
}
