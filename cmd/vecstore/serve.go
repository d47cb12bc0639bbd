package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/brbranch/vecstore/internal/bootstrap"
	"github.com/brbranch/vecstore/internal/jsonrpc"
	"github.com/brbranch/vecstore/internal/model"
	httptransport "github.com/brbranch/vecstore/internal/transport/http"
	kafkatransport "github.com/brbranch/vecstore/internal/transport/kafka"
	"github.com/brbranch/vecstore/internal/transport/stdio"
)

// serveOptions はserveコマンドのフラグ
type serveOptions struct {
	transport string
	host      string
	port      int
	kafka     bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON-RPC server (stdio or HTTP) and the optional Kafka consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(cmd); err != nil {
				return err
			}
			return runServe(cmd.Context(), root.configPath, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.transport, "transport", "t", "", "Transport type: stdio, http (default from config)")
	cmd.Flags().StringVar(&opts.host, "host", "", "HTTP host (default from config)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "HTTP port (default from config)")
	cmd.Flags().BoolVar(&opts.kafka, "kafka", true, "Run the Kafka consumer when brokers are configured")
	return cmd
}

// validate は明示されたフラグだけを検証する（未指定は設定ファイルの値を使う）
func (o *serveOptions) validate(cmd *cobra.Command) error {
	if o.transport != "" && o.transport != model.TransportStdio && o.transport != model.TransportHTTP {
		return fmt.Errorf("invalid transport: %s (must be stdio or http)", o.transport)
	}
	if cmd.Flags().Changed("port") && (o.port < 1 || o.port > 65535) {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", o.port)
	}
	return nil
}

// resolve はフラグと設定からtransportとlisten addressを決める
func (o *serveOptions) resolve(cfg *model.Config) (transport, addr string) {
	transport = o.transport
	if transport == "" {
		transport = cfg.TransportDefaults.DefaultTransport
	}
	if transport == "" {
		transport = model.TransportStdio
	}
	host := o.host
	if host == "" {
		host = cfg.Server.Host
	}
	port := o.port
	if port == 0 {
		port = cfg.Server.Port
	}
	return transport, net.JoinHostPort(host, strconv.Itoa(port))
}

// runServe はserveコマンドを実行
// stdioがEOFで終わった場合やシグナルを受けた場合は、Kafkaコンシューマーも止める
func runServe(ctx context.Context, configPath string, opts *serveOptions) error {
	services, cleanup, err := bootstrap.Initialize(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := services.Config
	logger := services.Logger
	handler := jsonrpc.New(services.RecordService, services.ConfigService, logger)
	transport, addr := opts.resolve(cfg)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if opts.kafka && cfg.Kafka.Brokers != "" {
		consumer, err := kafkatransport.New(services.RecordService, cfg.Kafka, kafkatransport.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create kafka consumer: %w", err)
		}
		defer consumer.Close()
		g.Go(func() error { return consumer.Run(gctx) })
	}

	switch transport {
	case model.TransportStdio:
		server := stdio.New(handler, stdio.WithLogger(logger))
		g.Go(func() error {
			defer cancel()
			return server.Run(gctx)
		})
	case model.TransportHTTP:
		server := httptransport.New(handler, services.RecordService, services.ConfigService, httptransport.Config{
			Addr:        addr,
			CORSOrigins: cfg.Server.CORSOrigins,
		}, httptransport.WithLogger(logger))
		g.Go(func() error {
			defer cancel()
			return server.Run(gctx)
		})
	default:
		return fmt.Errorf("unknown transport: %s", transport)
	}

	logger.Info("serving", "transport", transport, "addr", addr, "kafka", opts.kafka && cfg.Kafka.Brokers != "")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
