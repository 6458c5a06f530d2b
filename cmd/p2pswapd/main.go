// Command p2pswapd serves the order-book engine and follows its event stream.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/evvm-org/p2pswap/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:           "p2pswapd",
		Short:         "Delegated-signature peer-to-peer order book",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCommand(), watchCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "p2pswapd: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the configured log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log.SetLevel(level)
	if cfg.Env != "development" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return cfg, nil
}
