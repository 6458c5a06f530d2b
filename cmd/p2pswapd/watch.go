package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evvm-org/p2pswap/internal/feed"
)

func watchCommand() *cobra.Command {
	var market uint64
	c := &cobra.Command{
		Use:   "watch",
		Short: "Print engine events as JSON lines",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			url := cfg.Feed.URL
			if market != 0 {
				url = fmt.Sprintf("%s?market=%d", url, market)
			}

			ctx, cancel := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client := feed.NewWSClient(feed.DefaultWSConfig(url))
			if err := client.Connect(ctx); err != nil {
				return fmt.Errorf("connect %s: %w", url, err)
			}
			defer client.Close()

			enc := json.NewEncoder(os.Stdout)
			events := client.Subscribe()
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg, ok := <-events:
					if !ok {
						return nil
					}
					if err := enc.Encode(msg); err != nil {
						return err
					}
				}
			}
		},
	}
	c.Flags().Uint64Var(&market, "market", 0, "only show events of this market")
	return c
}
