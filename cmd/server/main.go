package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"boostnet/internal/auth"
	"boostnet/internal/boost"
	"boostnet/internal/claimhook"
	"boostnet/internal/claimlink"
	"boostnet/internal/credential"
	"boostnet/internal/delivery"
	"boostnet/internal/events"
	"boostnet/internal/exchange"
	"boostnet/internal/graph"
	"boostnet/internal/inbox"
	"boostnet/internal/platform/config"
	"boostnet/internal/platform/httpserver"
	"boostnet/internal/platform/logger"
	"boostnet/internal/platform/metrics"
	platformredis "boostnet/internal/platform/redis"
	"boostnet/internal/revoke"
	"boostnet/internal/signingauthority"
	httptransport "boostnet/internal/transport/http"
	"boostnet/internal/vcapi"
	"boostnet/internal/webhook"
)

// main wires the dependency graph and owns process lifecycle. Business
// logic lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	// Exchange store: Redis in production, in-memory for single-node dev.
	var exchangeStore exchange.Store = exchange.NewInMemoryStore()
	var health func() error
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		exchangeStore = exchange.NewRedis(redisClient.Client)
		health = func() error { return redisClient.Health(context.Background()) }
		log.Info("using redis exchange store")
	} else {
		log.Warn("redis not configured, using in-memory exchange store (single instance only)")
	}

	// Inbox store: Postgres when configured.
	var inboxStore inbox.Store = inbox.NewInMemoryStore()
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		pgStore, err := inbox.NewPostgresStore(db)
		if err != nil {
			log.Error("postgres schema setup failed", "error", err)
			os.Exit(1)
		}
		inboxStore = pgStore
		log.Info("using postgres inbox store")
	} else {
		log.Warn("postgres not configured, using in-memory inbox store")
	}
	defer inboxStore.Close()

	// Lifecycle events: Kafka when configured, otherwise disabled.
	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Info("publishing lifecycle events to kafka", "topic", cfg.Kafka.Topic)
	}
	emitter := events.NewEmitter(publisher)

	graphStore := graph.NewInMemoryStore()
	signer := credential.NewStaticSigner("did:web:" + cfg.Server.Domain)

	authorities := signingauthority.NewService(graphStore, signer, log)
	hooks := claimhook.NewService(graphStore, log)
	boosts := boost.NewService(graphStore, authorities, hooks, emitter, log)
	links := claimlink.NewManager(exchangeStore, log,
		cfg.Exchange.ClaimLinkTTL, cfg.Exchange.ClaimLinkMaxUses, cfg.Exchange.ChallengeRetries)

	dispatcher := delivery.NewDispatcher(delivery.NewMemoryService(), log, cfg.Inbox.DeliveryTimeout)
	dispatcher.OnFailure(m.DeliveryFailures.Inc)
	webhooks := webhook.NewNotifier(log, cfg.Inbox.DeliveryTimeout)

	inboxService := inbox.NewService(inboxStore, exchangeStore, graphStore, authorities, hooks,
		dispatcher, webhooks, emitter, m, log, cfg.Inbox.ClaimBaseURL, cfg.Inbox.ExpiresInDays)
	vcapiService := vcapi.NewService(exchangeStore, links, boosts, graphStore, signer, signer, signer,
		emitter, m, log, cfg.Server.Domain, cfg.Exchange.SessionTTL)
	revokeService := revoke.NewService(graphStore, exchangeStore, emitter, m, log)

	validator := auth.NewJWTValidator(cfg.Server.JWTSigningKey)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:             log,
		Validator:          validator,
		Boosts:             boost.NewHandler(boosts),
		ClaimLinks:         claimlink.NewHandler(links, boosts, graphStore, emitter, m),
		ClaimHooks:         claimhook.NewHandler(hooks),
		Inbox:              inbox.NewHandler(inboxService),
		Revoke:             revoke.NewHandler(revokeService),
		SigningAuthorities: signingauthority.NewHandler(authorities),
		VCAPI:              vcapi.NewHandler(vcapiService),
		Health:             health,
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	// Periodic sweep moves PENDING inbox records past expiry to EXPIRED.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if _, err := inboxService.ExpirePending(sweepCtx); err != nil {
					log.Error("inbox expiry sweep failed", "error", err)
				}
			}
		}
	}()

	go func() {
		log.Info("starting boostnet server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
