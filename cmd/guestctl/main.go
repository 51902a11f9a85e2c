// Command guestctl imports and exports event guest lists from the shell.
//
//	guestctl import --event E guests.csv
//	guestctl export --event E -o guests.csv
//	guestctl list --event E
//
// It reads the same REGISTRY_* and IMPORT_* environment as the server and
// runs every operation in process, with in-memory locks and history.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/guestlist/internal/config"
	"github.com/JonMunkholm/guestlist/internal/core"
	"github.com/JonMunkholm/guestlist/internal/logging"
	"github.com/JonMunkholm/guestlist/internal/registry"
)

func main() {
	// Unlike the server, explicit environment wins over .env
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(serviceFromEnv)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", userMessage(err))
		stop()
		os.Exit(1)
	}
}

// serviceFromEnv builds a Service from the environment configuration.
func serviceFromEnv() (*core.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	client := registry.New(cfg.Registry.BaseURL, cfg.Registry.Token, cfg.Registry.Timeout)
	return core.NewService(client, core.Options{
		ImportTimeout:   cfg.Import.Timeout,
		MaxFileSize:     cfg.Import.MaxFileSize,
		RegistryTimeout: cfg.Registry.Timeout,
	}), nil
}

// userMessage returns the mapped message for errors the service knows about
// and the raw text for everything else, such as flag errors.
func userMessage(err error) string {
	if core.IsUserFacing(err) {
		return core.FormatUserError(err)
	}
	return err.Error()
}
