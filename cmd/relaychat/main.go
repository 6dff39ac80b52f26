package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"

	intrnl "relaychat/internal"
	"relaychat/internal/app"
)

func main() {
	cfg, err := app.LoadServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaychat: %v\n", err)
		os.Exit(1)
	}

	flagSet := flag.NewFlagSet("relaychat", flag.ExitOnError)
	addr := flagSet.String("addr", cfg.ListenAddr(), "server listen address")
	path := flagSet.String("path", cfg.Path, "websocket path")
	db := flagSet.String("db", cfg.DBPath, "sqlite database path")
	quiet := flagSet.Bool("quiet", false, "only log warnings and errors")
	version := flagSet.Bool("version", false, "print the version and exit")
	_ = flagSet.Parse(os.Args[1:])

	if *version {
		fmt.Println("relaychat", intrnl.Version)
		return
	}

	cfg.Addr = *addr
	cfg.Path = app.NormalizeJoinPath(*path)
	cfg.DBPath = *db

	log := logs.GetLoggerFromString(cfg.LogLevel)
	if *quiet {
		log = logs.GetLoggerFromLevel(slog.LevelWarn)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("relaychat stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg app.ServerConfig, log *slog.Logger) error {
	handle, err := app.RunServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.Info("relaychat listening", "version", intrnl.Version, "addr", handle.Addr(), "ws_path", cfg.Path, "store", cfg.StoreDriver)
	return handle.Wait()
}
