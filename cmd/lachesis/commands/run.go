package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Fantom-foundation/go-lachesis/src/lachesis"
)

// NewRunCmd returns the command that starts a node.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runLachesis,
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("datadir", "d", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for lachesis node")
	cmd.Flags().String("advertise", _config.AdvertiseAddr, "Advertise IP:Port for lachesis node")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP API service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP API service")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")
	cmd.Flags().DurationP("heartbeat", "", _config.HeartbeatTimeout, "Time between gossips")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")
	cmd.Flags().Int("cache-size", _config.CacheSize, "Number of items in LRU caches")
	cmd.Flags().Int("sync-limit", _config.SyncLimit, "Max number of events for sync")
	cmd.Flags().Int("suspend-limit", _config.SuspendLimit, "Undetermined events before self-suspension")
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().Bool("bootstrap", _config.Bootstrap, "Load from database")
}

//loadConfig reads the flags, the environment, and an optional lachesis.toml
//file into the config, in increasing order of precedence.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	viper.SetEnvPrefix("LACHESIS")
	viper.AutomaticEnv()

	viper.SetConfigName("lachesis")
	viper.AddConfigPath(viper.GetString("datadir"))
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	return viper.Unmarshal(_config)
}

func runLachesis(cmd *cobra.Command, args []string) error {
	engine := lachesis.NewLachesis(_config)

	if err := engine.Init(); err != nil {
		return fmt.Errorf("initializing engine: %v", err)
	}

	//shut down cleanly on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		engine.Node.Shutdown()
	}()

	engine.Run()

	return nil
}
