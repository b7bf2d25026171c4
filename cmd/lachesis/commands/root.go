package commands

import (
	"github.com/spf13/cobra"

	"github.com/Fantom-foundation/go-lachesis/src/config"
)

var _config = config.NewDefaultConfig()

// RootCmd is the root command for lachesis.
var RootCmd = &cobra.Command{
	Use:   "lachesis",
	Short: "lachesis consensus node",
}
