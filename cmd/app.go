package cmd

import (
	"context"

	"example.com/backstage/allegro/config"
	"example.com/backstage/allegro/internal/api"
	"example.com/backstage/allegro/internal/api/handlers"
	"example.com/backstage/allegro/internal/cache"
	"example.com/backstage/allegro/internal/database"
	"example.com/backstage/allegro/internal/mailer"
	"example.com/backstage/allegro/internal/marketplace"
	"example.com/backstage/allegro/internal/messaging"
	"example.com/backstage/allegro/internal/metrics"
	"example.com/backstage/allegro/internal/processors"
	"example.com/backstage/allegro/internal/repositories"
	"example.com/backstage/allegro/internal/scheduler"
	"example.com/backstage/allegro/internal/search"
	"example.com/backstage/allegro/internal/services"
	"example.com/backstage/allegro/internal/tracing"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// app holds the long-lived dependencies shared by the commands
type app struct {
	cfg        config.Config
	db         *gorm.DB
	readOnlyDB *gorm.DB
	redis      *cache.RedisCache
	tracer     tracing.Tracer
	stats      *metrics.Metrics
	prom       *metrics.ProcessorMetrics
	client     *marketplace.Client
	publisher  *messaging.StatusPublisher
	indexer    *search.OrderIndexer
	sender     mailer.Sender
}

func newApp(cfg config.Config) (*app, error) {
	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		db:         db,
		readOnlyDB: readOnlyDB,
		stats:      metrics.NewMetrics(),
		prom:       metrics.NewProcessorMetrics(),
	}

	// Sessions live in Redis when it is available so every worker reuses them
	var sessions marketplace.SessionStore = marketplace.NewMemorySessionStore()
	a.redis, err = cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, keeping sessions in memory")
	} else if a.redis.Enabled() {
		sessions = cache.NewSessionStore(a.redis)
	}

	a.tracer, err = tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		a.tracer = tracing.Noop()
	}

	a.client = marketplace.NewClient(
		marketplace.NewHTTPTransport(cfg.Marketplace.Endpoint, cfg.Marketplace.Timeout),
		sessions,
		marketplace.Options{
			CountryCode:      cfg.Marketplace.CountryCode,
			SessionTTL:       cfg.Marketplace.SessionTTL,
			JournalPageSize:  cfg.Marketplace.JournalPageSize,
			FeedbackPageSize: cfg.Marketplace.FeedbackPageSize,
		},
	)

	if cfg.Elastic.Enabled {
		a.indexer, err = search.NewOrderIndexer(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search indexing")
		}
	}

	if cfg.Azure.ConnectionString != "" {
		bus, err := messaging.NewServiceBusClient(cfg.Azure, "allegro-worker")
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Azure Service Bus, continuing without status messages")
		} else {
			a.publisher = messaging.NewStatusPublisher(bus)
		}
	}

	sender, err := mailer.NewSMTPSender(cfg.SMTP)
	if err != nil {
		log.Warn().Err(err).Msg("SMTP is not configured, virtual item emails are disabled")
	} else {
		a.sender = sender
	}

	return a, nil
}

// notifier forwards order changes to whichever sinks are configured
func (a *app) notifier() *services.Notifier {
	var (
		indexer   services.OrderIndexer
		publisher services.StatusPublisher
	)
	if a.indexer != nil {
		indexer = a.indexer
	}
	if a.publisher != nil {
		publisher = a.publisher
	}
	return services.NewNotifier(repositories.NewOrderRepository(a.db, a.readOnlyDB), indexer, publisher)
}

// processors builds every processor this instance can run
func (a *app) processors() []scheduler.Processor {
	notifier := a.notifier()
	p := a.cfg.Processors

	all := processors.Build(p, processors.Services{
		Journal:     services.NewJournalService(a.db, a.readOnlyDB, a.client, notifier, a.prom),
		VirtualItem: services.NewVirtualItemService(a.db, a.readOnlyDB, a.sender, notifier, a.prom),
		Refund:      services.NewRefundService(a.db, a.readOnlyDB, a.client, notifier, a.prom, p.RefundGracePeriod, p.RefundReasonID),
		Feedback:    services.NewFeedbackService(a.db, a.readOnlyDB, a.client, a.prom, p.FeedbackComment),
		Auctions:    services.NewAuctionService(a.db, a.readOnlyDB, a.client),
	})

	if a.sender != nil {
		return all
	}

	enabled := all[:0]
	for _, proc := range all {
		if proc.Name != processors.VirtualItem {
			enabled = append(enabled, proc)
		}
	}
	return enabled
}

// server builds the health and metrics endpoint
func (a *app) server() *api.Server {
	return api.NewServer(a.cfg.Server, api.Dependencies{
		Stats:  a.stats,
		Prom:   a.prom,
		Orders: repositories.NewOrderRepository(a.db, a.readOnlyDB),
		Jobs:   repositories.NewJobRepository(a.db),
		Checks: map[string]handlers.Pinger{
			"database": func(ctx context.Context) error {
				sqlDB, err := a.db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": a.redis.Ping,
		},
		Tracer: a.tracer,
	})
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Service Bus client")
		}
	}
	if err := a.redis.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close Redis connection")
	}
	a.tracer.Close()
	if err := database.Close(a.db, a.readOnlyDB); err != nil {
		log.Warn().Err(err).Msg("Failed to close database connections")
	}
}
