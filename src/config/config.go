package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/rifflock/lfshook"
	"github.com/safenetwork/safenode/src/common"
	"github.com/safenetwork/safenode/src/kad"
	"github.com/safenetwork/safenode/src/node"
	"github.com/safenetwork/safenode/src/swarm"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel          = "debug"
	DefaultListenAddr        = "/ip4/127.0.0.1/tcp/1337"
	DefaultServiceAddr       = "127.0.0.1:8000"
	DefaultTCPTimeout        = 1000 * time.Millisecond
	DefaultMaxPool           = 2
	DefaultReplicationFactor = 20
	DefaultAlpha             = 3
	DefaultQueryTimeout      = 10 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultBootstrapTimeout  = 30 * time.Second
	DefaultStore             = false
	DefaultCacheSize         = 10000
	DefaultMaxRecords        = 100000
)

// Config contains all the configuration properties of a safenode.
type Config struct {
	// DataDir is the top-level directory containing the configuration and
	// the data of the node
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, if set, receives a copy of the Info and higher level logs.
	LogFile string `mapstructure:"log-file"`

	// ListenAddr is the multiaddr the node listens on, for example
	// /ip4/127.0.0.1/tcp/1337.
	ListenAddr string `mapstructure:"listen"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// TCPTimeout is the timeout of the RPC connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// ReplicationFactor is the Kademlia K parameter: the bucket size and the
	// number of peers a lookup converges on.
	ReplicationFactor int `mapstructure:"replication-factor"`

	// Alpha is the number of RPCs a Kademlia query keeps in flight.
	Alpha int `mapstructure:"alpha"`

	// QueryTimeout bounds a whole Kademlia query.
	QueryTimeout time.Duration `mapstructure:"query-timeout"`

	// RequestTimeout bounds an application request and its handling.
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// BootstrapTimeout bounds the dials and the lookup run at startup.
	BootstrapTimeout time.Duration `mapstructure:"bootstrap-timeout"`

	// Store activates persistent storage of the records.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the number of records cached in front of the database.
	CacheSize int `mapstructure:"cache-size"`

	// MaxRecords is the max number of records held by the node.
	MaxRecords int `mapstructure:"max-records"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// Key is the private key of the node. It is read from, or written to,
	// Keyfile when nil.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger

	// LogLevel and LogFile the logger was last configured with.
	loggerLevel string
	loggerFile  string
	testLogger  bool
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:           DefaultDataDir(),
		LogLevel:          DefaultLogLevel,
		ListenAddr:        DefaultListenAddr,
		ServiceAddr:       DefaultServiceAddr,
		TCPTimeout:        DefaultTCPTimeout,
		MaxPool:           DefaultMaxPool,
		ReplicationFactor: DefaultReplicationFactor,
		Alpha:             DefaultAlpha,
		QueryTimeout:      DefaultQueryTimeout,
		RequestTimeout:    DefaultRequestTimeout,
		BootstrapTimeout:  DefaultBootstrapTimeout,
		Store:             DefaultStore,
		DatabaseDir:       DefaultDatabaseDir(),
		CacheSize:         DefaultCacheSize,
		MaxRecords:        DefaultMaxRecords,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	config.testLogger = true
	return config
}

// SetDataDir sets the top-level directory, and updates the database directory
// if it is currently set to the default value. If the database directory is
// not currently the default, it means the user has explicitely set it to
// something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Listen parses ListenAddr.
func (c *Config) Listen() (ma.Multiaddr, error) {
	return ma.NewMultiaddr(c.ListenAddr)
}

// KadConfig returns the configuration of the Kademlia behaviour.
func (c *Config) KadConfig() kad.Config {
	conf := kad.DefaultConfig()
	conf.ReplicationFactor = c.ReplicationFactor
	conf.Alpha = c.Alpha
	conf.QueryTimeout = c.QueryTimeout
	return conf
}

// SwarmConfig returns the configuration of the swarm.
func (c *Config) SwarmConfig() swarm.Config {
	conf := swarm.DefaultConfig()
	conf.Kad = c.KadConfig()
	conf.DialTimeout = c.TCPTimeout * 10
	conf.RequestTimeout = c.RequestTimeout
	return conf
}

// NodeConfig returns the configuration of the node.
func (c *Config) NodeConfig() *node.Config {
	c.Logger()
	return node.NewConfig(c.RequestTimeout, c.BootstrapTimeout, c.Moniker, c.logger)
}

// Logger returns a formatted logrus Entry, with prefix set to "safenode".
// Changes of LogLevel and LogFile are applied to the logger, and to the
// entries it returned before, on the next call.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Formatter = new(prefixed.TextFormatter)
		c.configureLogger()
	} else if !c.testLogger && (c.loggerLevel != c.LogLevel || c.loggerFile != c.LogFile) {
		c.configureLogger()
	}
	return c.logger.WithField("prefix", "safenode")
}

func (c *Config) configureLogger() {
	c.logger.Level = LogLevel(c.LogLevel)
	c.logger.Hooks = make(logrus.LevelHooks)

	if c.LogFile != "" {
		c.logger.Hooks.Add(lfshook.NewHook(
			fileLevels(c.LogFile),
			&logrus.JSONFormatter{},
		))
	}

	c.loggerLevel, c.loggerFile = c.LogLevel, c.LogFile
}

// fileLevels maps Info and above to path.
func fileLevels(path string) lfshook.PathMap {
	pathMap := lfshook.PathMap{}
	for _, l := range []logrus.Level{
		logrus.InfoLevel,
		logrus.WarnLevel,
		logrus.ErrorLevel,
		logrus.FatalLevel,
		logrus.PanicLevel,
	} {
		pathMap[l] = path
	}
	return pathMap
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level safenode
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Safenode")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Safenode")
		} else {
			return filepath.Join(home, ".safenode")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
