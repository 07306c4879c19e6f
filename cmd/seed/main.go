// Command seed loads products, customers and leads from a YAML fixture.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ariefcatur/go-bizops/internal/config"
	"github.com/ariefcatur/go-bizops/internal/crm"
	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/inventory"
	"github.com/ariefcatur/go-bizops/internal/logging"
	"github.com/ariefcatur/go-bizops/internal/postgres"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	var (
		file    = flag.StringP("file", "f", "fixtures.yaml", "YAML fixture to load")
		dsn     = flag.String("dsn", cfg.PostgresDSN, "PostgreSQL DSN")
		dryRun  = flag.Bool("dry-run", false, "validate the fixture against an in-memory store")
		timeout = flag.Duration("timeout", time.Minute, "overall timeout")
	)
	flag.Parse()

	log := logging.New("bizops-seed", cfg.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fx, err := loadFixture(*file)
	if err != nil {
		log.WithError(err).Fatal("load fixture")
	}

	var store docstore.Store
	if *dryRun {
		store = docstore.NewMemory()
	} else {
		db, err := postgres.Connect(ctx, *dsn)
		if err != nil {
			log.WithError(err).Fatal("db connect")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("db migrate")
		}
		store = postgres.NewStore(db, nil)
	}

	s := seeder{
		inv: &inventory.Service{Store: store, Log: log},
		crm: &crm.Service{Store: store, Log: log, CodePrefix: cfg.ReferralCodePrefix},
	}
	sum, err := s.apply(ctx, fx)
	if err != nil {
		log.WithError(err).Error("seed failed")
		os.Exit(1)
	}
	log.WithField("products", sum.Products).
		WithField("customers", sum.Customers).
		WithField("leads", sum.Leads).
		WithField("warnings", len(sum.Warnings)).
		Info("seed complete")
	for _, w := range sum.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
}
