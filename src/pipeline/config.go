package pipeline

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/consensus"
	"github.com/mosaicnetworks/eventcore/src/event"
	"github.com/mosaicnetworks/eventcore/src/peers"
)

// Config holds the parameters of a Node.
type Config struct {
	Consensus consensus.Config

	IntakeCapacity int `mapstructure:"intake-capacity"`
	OutputCapacity int `mapstructure:"output-capacity"`

	//load the latest snapshot from the store in Init
	Bootstrap bool `mapstructure:"bootstrap"`

	//events created by Self are recorded in the SelfEventStore
	Self *peers.Peer

	//Prehandle, when set, runs on every admitted event in its own goroutine
	//before the event's latch is completed. At most PrehandleWorkers run at
	//once.
	Prehandle        func(*event.Event)
	PrehandleWorkers int

	Logger *logrus.Entry
}

// DefaultConfig returns the default configuration with a Debug logger.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		Consensus:        consensus.DefaultConfig(),
		IntakeCapacity:   1024,
		OutputCapacity:   64,
		PrehandleWorkers: 8,
		Logger:           logrus.NewEntry(logger),
	}
}

// TestConfig returns the default configuration logging through t.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.Logger = common.NewTestEntry(t, "pipeline")
	return config
}

// waitTimeout bounds how long Run waits for a slow prehandle before logging.
const waitTimeout = 5 * time.Second
