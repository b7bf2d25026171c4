package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

const (
	//DefaultKeyfile is the default name of the file containing the validator's
	//private key.
	DefaultKeyfile = "priv_key"

	//DefaultBadgerFile is the default name of the folder containing the Badger
	//database.
	DefaultBadgerFile = "badger_db"

	//DefaultPeersFile is the default name of the file containing the genesis
	//peer set.
	DefaultPeersFile = "peers.json"
)

// Config contains all the configuration properties of a node.
type Config struct {
	//DataDir is the top-level directory containing the configuration and
	//database files.
	DataDir string `mapstructure:"datadir"`

	//BindAddr is the local address:port where this node gossips with other
	//nodes.
	BindAddr string `mapstructure:"listen"`

	//AdvertiseAddr is the address advertised to other nodes. It may differ
	//from BindAddr behind NAT.
	AdvertiseAddr string `mapstructure:"advertise"`

	//ServiceAddr is the address:port of the HTTP API service.
	ServiceAddr string `mapstructure:"service-listen"`

	//NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	//LogLevel is the level of the logger: debug, info, warn, error, fatal,
	//panic.
	LogLevel string `mapstructure:"log"`

	//Moniker defines a friendly name for this node.
	Moniker string `mapstructure:"moniker"`

	//HeartbeatTimeout is the frequency of the gossip timer when the node has
	//something to say.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	//TCPTimeout is the timeout of gossip TCP connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	//MaxPool controls how many connections are pooled per target in the
	//gossip connections.
	MaxPool int `mapstructure:"max-pool"`

	//CacheSize is the max number of items in in-memory caches.
	CacheSize int `mapstructure:"cache-size"`

	//SyncLimit defines the max number of events to return in a sync
	//response.
	SyncLimit int `mapstructure:"sync-limit"`

	//SuspendLimit is the number of undetermined events that will cause the
	//node to suspend itself. 0 disables self-suspension.
	SuspendLimit int `mapstructure:"suspend-limit"`

	//Store activates the Badger-backed store; without it the poset lives in
	//memory only.
	Store bool `mapstructure:"store"`

	//Bootstrap determines whether to load the poset from an existing
	//database on startup. Requires Store.
	Bootstrap bool `mapstructure:"bootstrap"`

	logger *logrus.Logger
}

// NewDefaultConfig returns the default configuration.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		BindAddr:         "127.0.0.1:1337",
		ServiceAddr:      "127.0.0.1:8000",
		LogLevel:         "debug",
		HeartbeatTimeout: 10 * time.Millisecond,
		TCPTimeout:       1000 * time.Millisecond,
		MaxPool:          2,
		CacheSize:        5000,
		SyncLimit:        1000,
		SuspendLimit:     300,
	}
	return config
}

// NewTestConfig returns a config with a given logger for tests.
func NewTestConfig(logger *logrus.Logger) *Config {
	config := NewDefaultConfig()
	config.logger = logger
	return config
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// PeersFile returns the full path of the file containing the genesis peer
// set.
func (c *Config) PeersFile() string {
	return filepath.Join(c.DataDir, DefaultPeersFile)
}

// BadgerDir returns the full path of the folder containing the Badger
// database.
func (c *Config) BadgerDir() string {
	return filepath.Join(c.DataDir, DefaultBadgerFile)
}

// Logger returns a formatted logrus Entry that supports nested prefixes.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		//also log to file in the data directory
		path := filepath.Join(c.DataDir, "lachesis.log")
		pathMap := lfshook.PathMap{}
		for _, lvl := range logrus.AllLevels {
			pathMap[lvl] = path
		}
		c.logger.Hooks.Add(lfshook.NewHook(
			pathMap,
			new(logrus.JSONFormatter),
		))
	}
	return c.logger.WithField("prefix", "lachesis")
}

// DefaultDataDir returns the default directory for the configuration and
// database files.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".lachesis"
	}
	return filepath.Join(home, ".lachesis")
}

// LogLevel parses a string into a logrus level.
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

// String implements the fmt.Stringer interface.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DataDir: %s, BindAddr: %s, ServiceAddr: %s, Store: %v}",
		c.DataDir, c.BindAddr, c.ServiceAddr, c.Store)
}
