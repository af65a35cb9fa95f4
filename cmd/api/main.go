package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/urfave/cli/v2"

	middleware "github.com/markdave123-py/docflow/internal/api/middlewares"
	"github.com/markdave123-py/docflow/internal/app"
	"github.com/markdave123-py/docflow/internal/config"
	db "github.com/markdave123-py/docflow/internal/core/database"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "docflow",
		Usage: "Document ingestion, OCR review and retrieval service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: setupLogger,
		Action: serveCommand,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the background pipeline",
				Action: serveCommand,
			},
			{
				Name:   "migrate",
				Usage:  "Apply the database schema and exit",
				Action: migrateCommand,
			},
			{
				Name:   "token",
				Usage:  "Issue a bearer token for a tenant (local testing)",
				Action: tokenCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tenant",
						Aliases:  []string{"t"},
						Usage:    "Tenant id to embed in the token",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Token lifetime",
						Value: 24 * time.Hour,
					},
				},
			},
		},
	}
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	application, err := app.NewApp(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer application.Close()

	slog.Info("docflow is running", "port", cfg.Port)
	err = application.Run(ctx)
	slog.Info("shutting down")
	return err
}

func migrateCommand(c *cli.Context) error {
	cfg := config.LoadConfig()
	conn, err := db.Open(c.Context, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.EnsureBootstrapped(c.Context, conn); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	slog.Info("schema is up to date")
	return nil
}

func tokenCommand(c *cli.Context) error {
	cfg := config.LoadConfig()
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET not set")
	}
	token, err := middleware.SignToken([]byte(cfg.JWTSecret), c.String("tenant"), jwt.MapClaims{
		"exp": time.Now().Add(c.Duration("ttl")).Unix(),
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, token)
	return err
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
}

func setupLogger(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}
