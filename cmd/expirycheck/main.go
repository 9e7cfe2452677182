// Command expirycheck zeroes the stock of every expired drug once and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/neopharm/pharmacy/internal/events"
	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/repo"
	"github.com/neopharm/pharmacy/internal/service"
	"github.com/neopharm/pharmacy/pkg/config"
	"github.com/neopharm/pharmacy/pkg/db"
	"github.com/neopharm/pharmacy/pkg/logging"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "list expired drugs without changing stock")
	flag.Parse()

	cfg := config.Load()
	cfg.MustValid()

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName, "cmd", "expirycheck")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logger)

	gdb, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db_open_failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close(gdb) }()
	if err := models.Migrate(gdb); err != nil {
		logger.Error("db_migrate_failed", "error", err)
		os.Exit(1)
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewProducer(cfg.KafkaBrokers)
	}
	defer func() { _ = publisher.Close() }()

	drugs := &service.DrugService{Repo: &repo.GormRepo{DB: gdb}, Events: publisher}
	items, err := drugs.ZeroExpired(ctx, *dryRun)
	if err != nil {
		logger.Error("expiry_check_failed", "error", err)
		os.Exit(1)
	}

	verb := "zeroed"
	if *dryRun {
		verb = "would zero"
	}
	for _, it := range items {
		fmt.Printf("%s\t%s #%d %s\tstock %d\texpired %s\n", verb, it.Category.Label(), it.ID, it.Name, it.Stock, it.ExpDate.Format("2006-01-02"))
	}
	logger.Info("expiry_check_done", "items", len(items), "dry_run", *dryRun)
}
