package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/joho/godotenv"
	"github.com/mhbvr/collage/config"
	"github.com/mhbvr/collage/editor"
	pb "github.com/mhbvr/collage/proto"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/channelz/service"
	"google.golang.org/grpc/orca"
)

var (
	configPath           = flag.String("config", "", "YAML config file")
	host                 = flag.String("host", "", "Server host")
	port                 = flag.Int("port", 0, "Server port")
	metricsPort          = flag.Int("metrics-port", 0, "Prometheus metrics and gallery port")
	dbPath               = flag.String("db", "", "Database path (directory for filetree and pebble, file for bolt)")
	dbType               = flag.String("db-type", "", "Database type: filetree, bolt, or pebble")
	orcaEnabled          = flag.Bool("orca", false, "Enable ORCA load reporting")
	orcaThreshold        = flag.Int("orca-num-req-report", 0, "Update utilization after every N requests")
	maxConcurrentDecodes = flag.Int("max-concurrent-decodes", 0, "Maximum number of concurrent image decodes (0 = unlimited)")
)

func loadConfig() (config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config.Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	// Flags set explicitly win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Server.Host = *host
		case "port":
			cfg.Server.Port = *port
		case "metrics-port":
			cfg.Server.MetricsPort = *metricsPort
		case "db":
			cfg.Store.Path = *dbPath
		case "db-type":
			cfg.Store.Type = *dbType
		case "orca":
			cfg.Server.Orca = *orcaEnabled
		case "orca-num-req-report":
			cfg.Server.OrcaThreshold = *orcaThreshold
		}
	})

	return cfg, cfg.IsValid()
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Store.Path == "" {
		log.Fatal("Database path must be specified with -db flag")
	}

	zpagesHandler, cleanup, err := InitializeTracing()
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer cleanup()

	store, err := cfg.Store.Open()
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := cfg.Editor.EditorOptions()
	if err != nil {
		log.Fatalf("Invalid editor configuration: %v", err)
	}
	logger := log.Default()
	opts = append(opts,
		editor.WithWriter(store),
		editor.WithMetrics(editor.NewMetrics(prometheus.DefaultRegisterer)),
		editor.WithLogger(logger),
		editor.WithNotifier(editor.NotifierFunc(func(title, text string) {
			log.Printf("Alert: %s %s", title, text)
		})),
	)
	ed, err := editor.New(ctx, opts...)
	if err != nil {
		log.Fatalf("Failed to create editor: %v", err)
	}
	defer ed.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	serverOptions := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	}
	unary := []grpc.UnaryServerInterceptor{grpc_prometheus.UnaryServerInterceptor}
	stream := []grpc.StreamServerInterceptor{grpc_prometheus.StreamServerInterceptor}

	if cfg.Server.Orca {
		orcaReporter := NewORCAReporter(cfg.Server.OrcaThreshold, ed)

		// Add call metrics interceptor for trailer-based reporting
		serverOptions = append(serverOptions, orca.CallMetricsServerOption(orcaReporter.ServerMetricsProvider()))
		unary = append(unary, orcaReporter.UnaryInterceptor)
		stream = append(stream, orcaReporter.StreamInterceptor)

		log.Printf("ORCA load reporting enabled (update after every %d requests)", cfg.Server.OrcaThreshold)
	}
	serverOptions = append(serverOptions,
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	)

	s := grpc.NewServer(serverOptions...)
	pb.RegisterCollageEditorServer(s, NewCollageServer(ed, store, *maxConcurrentDecodes))

	// Register Channelz service for gRPC debugging and monitoring
	service.RegisterChannelzServiceToServer(s)

	grpc_prometheus.Register(s)
	grpc_prometheus.EnableHandlingTimeHistogram()

	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
	httpServer := &http.Server{
		Addr: metricsAddr,
		Handler: SetupHTTP(NewGallery(store, prometheus.DefaultRegisterer),
			prometheus.DefaultGatherer, zpagesHandler, logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("gRPC server listening on %s (using %s database: %s)", addr, cfg.Store.Type, cfg.Store.Path)
		return s.Serve(lis)
	})
	g.Go(func() error {
		log.Printf("Metrics and gallery server listening on %s", metricsAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("Shutting down")
		s.GracefulStop()
		return httpServer.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
