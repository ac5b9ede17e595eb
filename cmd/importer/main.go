// Command importer copies the host and customer tabs of the spreadsheet into
// Postgres, so the API can run with SOURCE=postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storeit/dashboard/internal/config"
	"github.com/storeit/dashboard/internal/database"
	"github.com/storeit/dashboard/internal/logger"
	"github.com/storeit/dashboard/internal/models"
	"github.com/storeit/dashboard/internal/repository"
	"github.com/storeit/dashboard/internal/sheets"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "fetch and parse the sheets without writing to the database")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall import deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.Server.Env, cfg.Server.LogLevel).WithComponent("importer")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := sheets.NewClient(cfg.Sheets.HostURL, cfg.Sheets.CustomerURL, cfg.Sheets.Timeout, log)

	var (
		hosts     []models.HostRecord
		customers []models.CustomerRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		hosts, err = client.FetchHosts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		customers, err = client.FetchCustomers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Fatal("Failed to read spreadsheet", err, nil)
	}

	log.Info("Spreadsheet parsed", map[string]interface{}{
		"hosts":     len(hosts),
		"customers": len(customers),
	})

	if *dryRun {
		log.Info("Dry run, nothing written", nil)
		return
	}

	if err := cfg.Database.Validate(); err != nil {
		log.Fatal("Invalid database configuration", err, nil)
	}

	if err := database.RunMigrations(database.DSN(cfg.Database)); err != nil {
		log.Fatal("Failed to apply migrations", err, nil)
	}

	db, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", err, map[string]interface{}{
			"host": cfg.Database.Host,
			"name": cfg.Database.Name,
		})
	}
	defer db.Close()

	if err := repository.NewRecordRepository(db).ReplaceAll(ctx, hosts, customers); err != nil {
		db.Close()
		log.Fatal("Import failed", err, nil)
	}

	log.Info("Import complete", map[string]interface{}{
		"hosts":     len(hosts),
		"customers": len(customers),
		"database":  cfg.Database.Name,
	})
}
