// unmind is the rename session daemon. It owns one language server
// process and serves rename batches over local TCP, so short-lived
// unmin invocations skip the server startup cost.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unminlab/unmin/internal/config"
	"github.com/unminlab/unmin/internal/daemon"
	"github.com/unminlab/unmin/internal/lsp"
	"github.com/unminlab/unmin/pkg/logger"
)

// version is set by build flags during release.
var version = "dev"

var (
	listenAddr  = flag.String("listen", "", "listen address (default from config, 127.0.0.1:7831)")
	lockPath    = flag.String("lock", "", "lock file path (default from config)")
	rootDir     = flag.String("root", "", "workspace root announced to the language server (default: cwd)")
	verbose     = flag.Bool("verbose", false, "verbose output")
	showVersion = flag.Bool("version", false, "show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("unmind v%s\n", version)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Warn("failed to load config: %v, using defaults", err)
		cfg = config.DefaultConfig()
	}

	log := logger.Default().WithPrefix("unmind")
	if *verbose {
		logger.SetLevel(logger.DEBUG)
	} else {
		logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	}

	addr := cfg.Addr()
	if *listenAddr != "" {
		addr = *listenAddr
	}
	lock := *lockPath
	if lock == "" {
		lock, err = cfg.LockPath()
		if err != nil {
			log.Error("resolve lock path: %v", err)
			os.Exit(1)
		}
	}

	opts := []daemon.Option{
		daemon.WithAddr(addr),
		daemon.WithServerConfig(lsp.ServerConfig{
			Command:    cfg.Server.Command,
			Args:       cfg.Server.Args,
			LanguageID: cfg.Server.LanguageID,
		}),
		daemon.WithRequestTimeout(cfg.RequestTimeout()),
	}
	if *rootDir != "" {
		opts = append(opts, daemon.WithRootDir(*rootDir))
	}

	d := daemon.NewDaemon(daemon.NewLockFile(lock), log, opts...)

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		log.Error("start failed: %v", err)
		os.Exit(1)
	}
	log.Info("unmind v%s serving on %s", version, d.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := d.Stop(stopCtx); err != nil {
		log.Error("shutdown error: %v", err)
		os.Exit(1)
	}
}
