package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/olyamironova/peer-exchange/internal/adapter/cache"
	"github.com/olyamironova/peer-exchange/internal/adapter/in_memory"
	"github.com/olyamironova/peer-exchange/internal/adapter/pg"
	grpcapi "github.com/olyamironova/peer-exchange/internal/api/grpc"
	httpapi "github.com/olyamironova/peer-exchange/internal/api/http"
	"github.com/olyamironova/peer-exchange/internal/config"
	"github.com/olyamironova/peer-exchange/internal/core"
	"github.com/olyamironova/peer-exchange/internal/logger"
	"github.com/olyamironova/peer-exchange/internal/metrics"
	"github.com/olyamironova/peer-exchange/internal/middleware"
	"github.com/olyamironova/peer-exchange/internal/node"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:          "exchange-node",
		Short:        "Run a peer-exchange node",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default ./config.yaml)")
	cmd.AddCommand(checkpointCmd())
	return cmd
}

// checkpointCmd asks a running node to run its checkpoint.
func checkpointCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Ask a node to execute a block if its pending queue is full",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := grpcapi.NewClient(addr, "cli")
			if err != nil {
				return err
			}
			defer c.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			resp, err := c.Consensus(ctx)
			if err != nil {
				return err
			}
			if !resp.Executed {
				fmt.Fprintln(cmd.OutOrStdout(), "no block: pending queue below block size")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "block %d: %d orders, %d trades, %d dropped\n",
				resp.Block.Height, len(resp.Block.OrderIds), len(resp.Block.Trades), len(resp.Block.Dropped))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "node gRPC address")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(cfg.Log.Production, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()
	log = log.With(zap.String("node", cfg.Node.ID))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	policy, err := core.ParseDuplicatePolicy(cfg.Engine.DuplicatePolicy)
	if err != nil {
		return err
	}
	eng := core.NewEngine(
		core.WithBlockSize(cfg.Engine.BlockSize),
		core.WithAutoCheckpoint(cfg.Engine.AutoCheckpoint),
		core.WithDuplicatePolicy(policy),
		core.WithLogger(log.Named("engine")),
		core.WithMetrics(metrics.New(reg)),
	)

	opts := []node.Option{node.WithLogger(log.Named("node"))}
	if cfg.Postgres.DSN != "" {
		repo, err := pg.NewPgRepo(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer repo.Close(ctx)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts, node.WithRepository(repo))
		log.Info("postgres journal enabled")
	} else {
		opts = append(opts, node.WithRepository(in_memory.NewMemoryRepo()))
	}
	if cfg.Redis.Addr != "" {
		rc := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL).
			WithNodePrefix(cfg.Node.ID)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			return err
		}
		opts = append(opts, node.WithCache(rc))
		log.Info("redis orderbook cache enabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		opts = append(opts, node.WithCache(in_memory.NewCache()))
	}

	peers := make([]*grpcapi.Client, 0, len(cfg.Peers.Addrs))
	for _, addr := range cfg.Peers.Addrs {
		c, err := grpcapi.NewClient(addr, cfg.Node.ID)
		if err != nil {
			return err
		}
		defer c.Close()
		peers = append(peers, c)
		opts = append(opts, node.WithPeers(cfg.Peers.RequestTimeout, c))
	}
	log.Info("peers configured", zap.Strings("addrs", cfg.Peers.Addrs))

	svc := node.NewService(eng, opts...)
	defer svc.Close()

	grpcMetrics := grpc_prometheus.NewServerMetrics()
	reg.MustRegister(grpcMetrics)
	grpcLog := log.Named("grpc")
	gsrv := grpcapi.NewServer(grpcapi.NewGRPCServer(svc, grpcLog), grpcLog, grpcMetrics)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Interval > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.Interval)
	}
	hsrv := httpapi.NewHTTPServer(svc, log.Named("http"), limiter, reg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.Node.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc: listen %s: %w", cfg.Node.GRPCAddr, err)
		}
		grpcLog.Info("grpc listening", zap.String("addr", cfg.Node.GRPCAddr))
		return gsrv.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		gsrv.GracefulStop()
		return nil
	})
	g.Go(func() error {
		return hsrv.Run(ctx, cfg.Node.HTTPAddr)
	})

	log.Info("node started",
		zap.Int("block_size", eng.BlockSize()),
		zap.String("duplicate_policy", string(policy)),
		zap.Int("peers", len(peers)),
	)
	err = g.Wait()
	log.Info("node stopped", zap.Error(err))
	return err
}
