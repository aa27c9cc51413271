package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittodav/internal/logger"
	"github.com/marmos91/dittodav/pkg/adapter/webdav"
	"github.com/marmos91/dittodav/pkg/config"
	"github.com/marmos91/dittodav/pkg/server"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `dittodav - multi-tenant WebDAV gateway

Usage:
  dittodav <command> [flags]

Commands:
  init      Write a sample configuration file
  start     Start the server
  version   Print the version

Run 'dittodav <command> -h' for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd := os.Args[1]; cmd {
	case "init":
		err = runInit(os.Args[2:])
	case "start":
		err = runStart(os.Args[2:])
	case "version":
		fmt.Printf("dittodav %s\n", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "Path of the file to write (default: "+config.GetDefaultConfigPath()+")")
	force := fs.Bool("force", false, "Overwrite an existing file")
	_ = fs.Parse(args)

	path, err := config.InitConfig(*configPath, *force)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	fmt.Printf("Start the server with: dittodav start --config %s\n", path)
	return nil
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to the configuration file (default: "+config.GetDefaultConfigPath()+")")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Configure(cfg.Logging); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Info("dittodav %s", version)
	if *configPath != "" {
		logger.Info("Configuration loaded from %s", *configPath)
	} else if config.ConfigExists() {
		logger.Info("Configuration loaded from %s", config.GetDefaultConfigPath())
	} else {
		logger.Warn("No configuration file found, serving a scratch repository under %s", os.TempDir())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := config.InitializeMetrics(cfg)

	reg, err := config.InitializeRegistry(ctx, cfg, m)
	if err != nil {
		return err
	}

	adapters, err := config.CreateAdapters(cfg, m.HTTP, version)
	if err != nil {
		_ = reg.Close(ctx)
		return err
	}

	var dav *webdav.WebDAVAdapter
	for _, a := range adapters {
		if d, ok := a.(*webdav.WebDAVAdapter); ok {
			dav = d
		}
	}

	collector, err := config.CreateCollector(cfg, reg, dav)
	if err != nil {
		_ = reg.Close(ctx)
		return err
	}

	opts := []server.Option{
		server.WithCollector(collector),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	}
	if m.Server != nil {
		opts = append(opts, server.WithMetricsServer(m.Server))
		logger.Info("Metrics enabled on port %d", m.Server.Port())
	}

	srv := server.New(reg, opts...)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			_ = reg.Close(ctx)
			return err
		}
	}

	logger.Info("Serving %d repositories. Press Ctrl+C to stop.", reg.CountRepositories())

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
