package commands

import (
	"github.com/mosaicnetworks/eventcore/src/config"
)

//CLIConfig contains configuration for the Simulate command
type CLIConfig struct {
	EventCore config.Config `mapstructure:",squash"`
	LogFile   string        `mapstructure:"log-file"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		EventCore: *config.NewDefaultConfig(),
	}
}
