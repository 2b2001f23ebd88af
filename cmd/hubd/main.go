// Command hubd runs the Coordination Hub: the registry, thread store,
// mention router, and wait coordinator behind the HTTP+SSE Tool Surface
// and a narrow admin Unix socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"meshhub/internal/config"
	"meshhub/internal/hub"
	"meshhub/internal/transport"
	"meshhub/internal/utils"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML hub config file")
	httpPort := flag.Int("http-port", 0, "override http port")
	socketPath := flag.String("socket", "", "override admin unix socket path")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	cfg, err := config.LoadHubConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	if *httpPort != 0 {
		cfg.HTTP.Port = *httpPort
	}
	if *socketPath != "" {
		cfg.Socket.Path = *socketPath
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	logger := utils.NewLogger(cfg.Logging.Level)
	server := hub.NewServer(cfg, logger)
	server.Start()
	defer server.Stop()

	ctx, cancel := contextWithSignals()
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)

	httpTransport := transport.NewHTTPTransport(cfg, server, logger)
	group.Go(func() error {
		if err := httpTransport.Start(gctx); err != nil {
			logger.Errorf("http transport stopped: %v", err)
			return err
		}
		return nil
	})

	if cfg.Socket.Enabled {
		unixTransport := transport.NewUnixTransport(cfg, server, logger)
		group.Go(func() error {
			if err := unixTransport.Start(gctx); err != nil {
				logger.Errorf("admin socket stopped: %v", err)
				return err
			}
			return nil
		})
	}

	logger.Infof("hub listening on %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownDeadline := time.After(5 * time.Second)
	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			logger.Warnf("shutdown error: %v", err)
		}
	case <-shutdownDeadline:
		logger.Warnf("shutdown timed out")
	}
	return 0
}

func contextWithSignals() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
