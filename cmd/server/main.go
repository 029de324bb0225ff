package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/config"
	"github.com/NTGPC/ntglogin-sub000/internal/infrastructure/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment")
	port := flag.String("port", "", "override PORT")
	flag.Parse()

	if err := run(*envFile, *port); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run(envFile, port string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	srv.Start(context.WithoutCancel(ctx))

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Run() }()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, srv.Shutdown(shutdownCtx))
}
