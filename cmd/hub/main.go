package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Helias/lightning/hub"
	"github.com/Helias/lightning/hub/registry"
	"github.com/Helias/lightning/hub/sessions"
	"github.com/Helias/lightning/hub/supervisor"
)

func main() {
	var (
		dbPath     = flag.String("db", "lightning.db", "Path to the registry database")
		listenAddr = flag.String("listen", ":8099", "Address for the hub API to listen on")
		minPort    = flag.Int("min-port", 10000, "Lower bound of the app instance port range")
		maxPort    = flag.Int("max-port", 19999, "Upper bound of the app instance port range")
		secretPath = flag.String("jwt-secret", "lightning-jwt.key", "Path to the JWT signing key (generated when absent)")
		username   = flag.String("username", "admin", "Username accepted at login")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	logger.Info("Starting lightning hub")

	password := os.Getenv("LIGHTNING_PASSWORD")
	if password == "" {
		logger.Error("LIGHTNING_PASSWORD environment variable is required")
		os.Exit(1)
	}

	reg, err := registry.Open(*dbPath)
	if err != nil {
		logger.Error("Failed to open registry", "error", err)
		os.Exit(1)
	}
	defer reg.Close()

	project, err := reg.DefaultProject()
	if err != nil {
		logger.Error("Failed to resolve default project", "error", err)
		os.Exit(1)
	}
	logger.Info("Serving project", "projectID", project.ID)

	secretKey, err := sessions.LoadSecretKey(*secretPath)
	if err != nil {
		logger.Error("Failed to load JWT secret key", "error", err)
		os.Exit(1)
	}
	sessionMgr, err := sessions.NewManager(reg.DB(), 15*time.Minute, 30*24*time.Hour, secretKey)
	if err != nil {
		logger.Error("Failed to create session manager", "error", err)
		os.Exit(1)
	}

	ports, err := supervisor.NewPortManager(*minPort, *maxPort)
	if err != nil {
		logger.Error("Failed to create port manager", "error", err)
		os.Exit(1)
	}
	super, err := supervisor.New(supervisor.Config{
		Registry:  reg,
		ProjectID: project.ID,
		Ports:     ports,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("Failed to create supervisor", "error", err)
		os.Exit(1)
	}

	server, err := hub.NewServer(hub.Config{
		Registry:   reg,
		Sessions:   sessionMgr,
		Users:      map[string]string{*username: password},
		ListenAddr: *listenAddr,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("Failed to create hub server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()
	}()

	done := make(chan struct{})
	go func() {
		super.Run(ctx)
		close(done)
	}()

	if err := server.ListenAndServe(ctx); err != nil {
		logger.Error("Hub server exited with error", "error", err)
	}
	<-done
	logger.Info("Lightning hub stopped")
}
