// Command quickstart is a minimal app server. The hub supervisor launches it
// with -port and health-checks it; the lightning CLI can then discover and
// run the commands it registers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Helias/lightning/appserver"
)

func main() {
	port := flag.Int("port", appserver.DefaultPort, "Port to listen on")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "quickstart")

	server := appserver.NewServer("quickstart",
		appserver.WithPort(*port),
		appserver.WithLogger(logger),
	)

	err := server.Register(appserver.Command{
		Name:        "greet",
		Description: "Greet someone by name",
		Params: []appserver.Param{
			{Name: "name", Description: "Who to greet", Required: true},
		},
	}, func(ctx context.Context, args map[string]string) (interface{}, error) {
		return fmt.Sprintf("Hello, %s!", args["name"]), nil
	})
	if err != nil {
		log.Fatalf("Failed to register greet: %v", err)
	}

	err = server.Register(appserver.Command{
		Name:        "echo",
		Description: "Echo back every argument passed to the command",
	}, func(ctx context.Context, args map[string]string) (interface{}, error) {
		pairs := make([]string, 0, len(args))
		for name, value := range args {
			pairs = append(pairs, name+"="+value)
		}
		return strings.Join(pairs, " "), nil
	})
	if err != nil {
		log.Fatalf("Failed to register echo: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting quickstart app server", "port", *port)
	if err := server.ListenAndServe(ctx); err != nil {
		logger.Error("App server exited with error", "error", err)
		os.Exit(1)
	}
}
