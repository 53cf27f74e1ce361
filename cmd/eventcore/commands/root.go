package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for eventcore
var RootCmd = &cobra.Command{
	Use:              "eventcore",
	Short:            "hashgraph event lifecycle",
	TraverseChildren: true,
}
