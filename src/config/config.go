package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/consensus"
	"github.com/mosaicnetworks/eventcore/src/window"
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
	DefaultAncientMode       = "birth-round"
	DefaultRoundsNonAncient  = consensus.DefaultRoundsNonAncient
	DefaultMinTransIncrement = int64(consensus.DefaultMinTransIncrement)
	DefaultCoinRoundFreq     = consensus.DefaultCoinRoundFreq
	DefaultStore             = false
	DefaultBootstrap         = false
	DefaultMetrics           = false
	DefaultNodes             = 4
	DefaultEvents            = 1000
	DefaultTxsPerEvent       = 1
	DefaultSeed              = int64(0)
	DefaultLeadProbability   = 0.0
	DefaultLead              = int64(2)
	DefaultLagProbability    = 0.0
	DefaultLag               = int64(1)
	DefaultServiceAddr       = ""
)

// Config contains all the configuration properties of an eventcore node.
type Config struct {
	// DataDir is the top-level directory containing the configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// AncientMode selects the indicator compared against the ancient
	// threshold: "birth-round" or "generation".
	AncientMode string `mapstructure:"ancient-mode"`

	// RoundsNonAncient is the number of decided rounds whose events are not
	// ancient.
	RoundsNonAncient int64 `mapstructure:"rounds-non-ancient"`

	// MinTransIncrement is the minimum number of nanoseconds between the
	// consensus timestamps of two transactions.
	MinTransIncrement int64 `mapstructure:"min-trans-timestamp-incr-nanos"`

	// CoinRoundFreq is the frequency of coin rounds in fame elections.
	CoinRoundFreq int64 `mapstructure:"coin-round-freq"`

	// Store activates persistent snapshots.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Bootstrap determines whether or not to resume from the latest snapshot
	// in the database. Forces Store.
	Bootstrap bool `mapstructure:"bootstrap"`

	// Metrics collects OpenTelemetry metrics and prints them on exit.
	Metrics bool `mapstructure:"metrics"`

	// ServiceAddr is the address:port of the optional HTTP service. The
	// service is disabled when empty.
	ServiceAddr string `mapstructure:"service-listen"`

	// Nodes is the number of simulated members.
	Nodes int `mapstructure:"nodes"`

	// Events is the number of simulated events.
	Events int `mapstructure:"events"`

	// TxsPerEvent is the number of transactions in each simulated event.
	TxsPerEvent int `mapstructure:"txs-per-event"`

	// Seed seeds the simulation.
	Seed int64 `mapstructure:"seed"`

	// LeadProbability and Lead control how often, and by how many rounds,
	// simulated events are born ahead of consensus.
	LeadProbability float64 `mapstructure:"lead-probability"`
	Lead            int64   `mapstructure:"lead"`

	// LagProbability and Lag do the same for events born behind consensus.
	LagProbability float64 `mapstructure:"lag-probability"`
	Lag            int64   `mapstructure:"lag"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:           DefaultDataDir(),
		LogLevel:          DefaultLogLevel,
		AncientMode:       DefaultAncientMode,
		RoundsNonAncient:  DefaultRoundsNonAncient,
		MinTransIncrement: DefaultMinTransIncrement,
		CoinRoundFreq:     DefaultCoinRoundFreq,
		Store:             DefaultStore,
		DatabaseDir:       DefaultDatabaseDir(),
		Bootstrap:         DefaultBootstrap,
		Metrics:           DefaultMetrics,
		Nodes:             DefaultNodes,
		Events:            DefaultEvents,
		TxsPerEvent:       DefaultTxsPerEvent,
		Seed:              DefaultSeed,
		LeadProbability:   DefaultLeadProbability,
		Lead:              DefaultLead,
		LagProbability:    DefaultLagProbability,
		Lag:               DefaultLag,
		ServiceAddr:       DefaultServiceAddr,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
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

// Mode parses AncientMode.
func (c *Config) Mode() (window.AncientMode, error) {
	return window.ParseAncientMode(c.AncientMode)
}

// ConsensusConfig returns the consensus parameters.
func (c *Config) ConsensusConfig() (consensus.Config, error) {
	mode, err := c.Mode()
	if err != nil {
		return consensus.Config{}, err
	}
	return consensus.Config{
		Mode:              mode,
		RoundsNonAncient:  c.RoundsNonAncient,
		MinTransIncrement: time.Duration(c.MinTransIncrement),
		CoinRoundFreq:     c.CoinRoundFreq,
	}, nil
}

// Logger returns a formatted logrus Entry, with prefix set to "eventcore".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "eventcore")
}

// BaseLogger returns the logger behind Logger, so that hooks can be added.
func (c *Config) BaseLogger() *logrus.Logger {
	c.Logger()
	return c.logger
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config based
// on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".EventCore")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "EventCore")
		} else {
			return filepath.Join(home, ".eventcore")
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
