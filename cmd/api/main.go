package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-bizops/internal/config"
	"github.com/ariefcatur/go-bizops/internal/crm"
	"github.com/ariefcatur/go-bizops/internal/digest"
	"github.com/ariefcatur/go-bizops/internal/docstore"
	"github.com/ariefcatur/go-bizops/internal/domain"
	"github.com/ariefcatur/go-bizops/internal/events"
	"github.com/ariefcatur/go-bizops/internal/httpx"
	"github.com/ariefcatur/go-bizops/internal/inventory"
	kafkax "github.com/ariefcatur/go-bizops/internal/kafka"
	"github.com/ariefcatur/go-bizops/internal/logging"
	"github.com/ariefcatur/go-bizops/internal/orders"
	"github.com/ariefcatur/go-bizops/internal/postgres"
	"github.com/ariefcatur/go-bizops/internal/redisx"
	"github.com/ariefcatur/go-bizops/internal/referrals"
	"github.com/ariefcatur/go-bizops/internal/state"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.ServiceName, cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Kafka: domain events and the cross-instance change feed
	emitter := &events.Emitter{Producer: cfg.ServiceName}
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		prod.Start()
		emitter.Pub = &kafkax.EventPublisher{P: prod}
	}

	// Store
	var store docstore.Store
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Warn("memory store: data is lost on restart")
		store = docstore.NewMemory()
	case config.BackendPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.WithError(err).Fatal("db connect")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("db migrate")
		}

		var feed docstore.Feed = docstore.NewLocalFeed()
		if prod != nil {
			host, _ := os.Hostname()
			group := cfg.ServiceName + "-feed-" + host + "-" + uuid.NewString()[:8]
			cf := kafkax.NewChangeFeed(cfg.KafkaBrokers, group, prod, log)
			go func() {
				if err := cf.Run(ctx); err != nil {
					log.WithError(err).Error("change feed stopped")
					cancel()
				}
			}()
			feed = cf
		}
		store = postgres.NewStore(db, feed)
	default:
		log.WithField("backend", cfg.StoreBackend).Fatal("unknown STORE_BACKEND")
	}

	// Redis: shared invoice sequence and share-token cache
	var (
		seq    orders.Sequencer = orders.NewLocalSequencer()
		tokens orders.TokenCache
	)
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			log.WithError(err).Fatal("redis ping")
		}
		seq = &redisx.InvoiceSequencer{RDB: rdb}
		tokens = &redisx.TokenCache{RDB: rdb}
	}

	// Services
	inv := &inventory.Service{Store: store, Events: emitter, Log: log.WithField("component", "inventory")}
	cs := &crm.Service{
		Store: store, Events: emitter, Log: log.WithField("component", "crm"),
		CodePrefix: cfg.ReferralCodePrefix,
	}
	refs := &referrals.Service{
		Store: store, Events: emitter, Log: log.WithField("component", "referrals"),
		Reward: cfg.ReferralReward,
	}
	ords := &orders.Service{
		Store:     store,
		Inventory: inv,
		CRM:       cs,
		Referrals: refs,
		Sequencer: seq,
		Tokens:    tokens,
		Events:    emitter,
		Log:       log.WithField("component", "orders"),
		Location:  cfg.Location,
	}

	// Mirror + websocket push
	mirror := state.NewMirror(store, log.WithField("component", "state"))
	if err := mirror.Start(ctx); err != nil {
		log.WithError(err).Fatal("state mirror")
	}
	hub := httpx.NewHub(mirror, domain.Collections, log.WithField("component", "ws"))
	mirror.OnChange(hub.Broadcast)

	// Digest
	job := &digest.Job{State: mirror, Events: emitter, Log: log.WithField("component", "digest"), Location: cfg.Location}
	sched, err := digest.Schedule(cfg.DigestSchedule, job)
	if err != nil {
		log.WithError(err).Fatal("digest schedule")
	}
	if sched != nil {
		sched.Start()
	}

	limiter := httpx.NewRateLimiter(cfg.PublicRateLimit, cfg.PublicRateBurst)
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				limiter.Cleanup(now)
			}
		}
	}()

	router := httpx.NewRouter(&httpx.API{
		Inventory: inv,
		CRM:       cs,
		Orders:    ords,
		Referrals: refs,
		State:     mirror,
		Hub:       hub,
		Public:    limiter,
		Log:       log.WithField("component", "http"),
		Location:  cfg.Location,
	})

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if sched != nil {
		<-sched.Stop().Done()
	}
	mirror.Close()
	cancel() // stop change feed consumer
	if prod != nil {
		prod.Close()      // close inbox -> flush & close writer
		prod.WaitClosed() // drain
	}
}
