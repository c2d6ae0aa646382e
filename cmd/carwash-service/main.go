package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Glen-Yegon/niapay-carwash1/internal/catalog"
	"github.com/Glen-Yegon/niapay-carwash1/internal/config"
	"github.com/Glen-Yegon/niapay-carwash1/internal/migrations"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "carwash-service",
		Usage: "car wash job tracking service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Usage: "HTTP port, overrides CARWASH_PORT"},
			&cli.StringFlag{Name: "store", Usage: "store driver (memory, postgres, mysql), overrides CARWASH_STORE_DRIVER"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and realtime endpoint",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "migrate", Usage: "apply pending migrations before serving"},
				},
				Action: serveCommand,
			},
			{
				Name:  "migrate",
				Usage: "manage the database schema",
				Subcommands: []*cli.Command{
					{Name: "up", Usage: "apply all pending migrations", Action: migrateUp},
					{
						Name:   "down",
						Usage:  "roll back migrations",
						Flags:  []cli.Flag{&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to roll back"}},
						Action: migrateDown,
					},
					{Name: "version", Usage: "print the current schema version", Action: migrateVersion},
				},
			},
			{
				Name:  "seed-catalog",
				Usage: "write the service menu as YAML, ready for CARWASH_CATALOG_PATH",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "output file (default stdout)"},
				},
				Action: seedCatalog,
			},
		},
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if port := c.String("port"); port != "" {
		cfg.Port = port
	}
	if driver := c.String("store"); driver != "" {
		cfg.StoreDriver = driver
	}
	return cfg, nil
}

func databaseConfig(c *cli.Context) (config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ValidateStore(); err != nil {
		return config.Config{}, err
	}
	if cfg.StoreDriver == config.DriverMemory {
		return config.Config{}, errors.New("migrations need the postgres or mysql store driver")
	}
	return cfg, nil
}

func migrateUp(c *cli.Context) error {
	cfg, err := databaseConfig(c)
	if err != nil {
		return err
	}
	return migrations.Up(cfg.StoreDriver, cfg.DatabaseURL)
}

func migrateDown(c *cli.Context) error {
	cfg, err := databaseConfig(c)
	if err != nil {
		return err
	}
	return migrations.Down(cfg.StoreDriver, cfg.DatabaseURL, c.Int("steps"))
}

func migrateVersion(c *cli.Context) error {
	cfg, err := databaseConfig(c)
	if err != nil {
		return err
	}
	version, dirty, err := migrations.Version(cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "version %d (dirty=%t)\n", version, dirty)
	return nil
}

func seedCatalog(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	menu, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	out, err := menu.YAML()
	if err != nil {
		return errors.Wrap(err, "encode service menu")
	}

	var w io.Writer = c.App.Writer
	if path := c.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "create menu file")
		}
		defer f.Close()
		w = f
	}
	_, err = w.Write(out)
	return err
}
