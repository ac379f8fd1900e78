package commands

import (
	"github.com/safenetwork/safenode/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for safenode
var RootCmd = &cobra.Command{
	Use:              "safenode",
	Short:            "safe network node",
	TraverseChildren: true,
}
