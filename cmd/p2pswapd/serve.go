package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/evvm-org/p2pswap/internal/config"
	"github.com/evvm-org/p2pswap/internal/evvm"
	"github.com/evvm-org/p2pswap/internal/feed"
	"github.com/evvm-org/p2pswap/internal/metrics"
	"github.com/evvm-org/p2pswap/internal/p2pswap"
	"github.com/evvm-org/p2pswap/internal/rpc"
)

func serveCommand() *cobra.Command {
	var grants, stakers []string
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over gRPC and stream its events",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, grants, stakers)
		},
	}
	flags := c.Flags()
	flags.StringArrayVar(&grants, "mint", nil, "initial ledger balance as account:asset:amount (repeatable)")
	flags.StringArrayVar(&stakers, "staker", nil, "account registered as a staker (repeatable)")
	return c
}

func serve(ctx context.Context, cfg *config.Config, grants, stakers []string) error {
	ledger := evvm.NewMemoryLedger(cfg.EVVM.InstanceID, cfg.EVVM.RewardUnit)
	if err := seedLedger(ledger, grants, stakers); err != nil {
		return err
	}

	hub := feed.NewHub()
	recorder := metrics.New()

	engine, err := p2pswap.New(p2pswap.Config{
		InstanceID:           cfg.EVVM.InstanceID,
		Address:              cfg.Engine.Address,
		PrincipalToken:       cfg.EVVM.PrincipalToken,
		Owner:                cfg.Engine.Owner,
		PercentageFee:        cfg.Engine.PercentageFee,
		MaxLimitFillFixedFee: cfg.Engine.MaxLimitFillFixedFee,
		RewardPercentage: p2pswap.Percentage{
			Seller:  cfg.Engine.RewardSeller,
			Service: cfg.Engine.RewardService,
			Staker:  cfg.Engine.RewardStaker,
		},
	}, ledger, ledger, p2pswap.WithEventSink(hub), p2pswap.WithObserver(recorder))
	if err != nil {
		return err
	}

	go hub.Run(ctx)

	if cfg.Redis.Enabled {
		client, closeRedis, err := feed.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer closeRedis()
		writer := feed.NewRedisWriter(client, hub.SubscribeAll(), feed.WithResync(engine, cfg.Redis.ResyncInterval))
		if err := writer.Resync(ctx); err != nil {
			return fmt.Errorf("initial redis resync: %w", err)
		}
		go writer.Run(ctx)
		log.WithFields(log.Fields{
			"component": "p2pswapd",
			"addr":      cfg.Redis.Addr,
			"resync":    cfg.Redis.ResyncInterval,
		}).Info("mirroring book to redis")
	}

	mux := http.NewServeMux()
	mux.Handle("/events", feed.NewStreamServer(hub, feed.DefaultStreamConfig()))
	streamSrv := &http.Server{Addr: cfg.Feed.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	var metricsSrv *http.Server
	if cfg.Metrics.ListenAddr != "" {
		mm := http.NewServeMux()
		mm.Handle("/metrics", recorder.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mm, ReadHeaderTimeout: 5 * time.Second}
	}

	rpcSrv, err := rpc.NewServer(cfg.RPC.SocketPath, rpc.NewHandler(engine))
	if err != nil {
		return err
	}

	errCh := make(chan error, 3)
	go func() { errCh <- rpcSrv.Serve() }()
	go func() { errCh <- listen(streamSrv) }()
	if metricsSrv != nil {
		go func() { errCh <- listen(metricsSrv) }()
	}

	log.WithFields(log.Fields{
		"component": "p2pswapd",
		"env":       cfg.Env,
		"engine":    cfg.Engine.Address.Hex(),
		"socket":    cfg.RPC.SocketPath,
		"feed":      cfg.Feed.ListenAddr,
		"metrics":   cfg.Metrics.ListenAddr,
	}).Info("engine ready")

	var serveErr error
	select {
	case <-ctx.Done():
		log.WithField("component", "p2pswapd").Info("shutting down")
	case serveErr = <-errCh:
	}

	rpcSrv.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Ending the hub's subscriptions closes open streams, which Shutdown
	// does not track.
	hub.Close()
	streamSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}
	return serveErr
}

// listen serves srv until it is shut down.
func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", srv.Addr, err)
	}
	return nil
}
