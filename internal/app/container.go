package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/outbound-dialer/internal/config"
	"github.com/acme/outbound-dialer/internal/dialer"
	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/infra/db"
	"github.com/acme/outbound-dialer/internal/infra/redis"
	"github.com/acme/outbound-dialer/internal/queue"
	"github.com/acme/outbound-dialer/internal/repository"
	"github.com/acme/outbound-dialer/internal/repository/memory"
	"github.com/acme/outbound-dialer/internal/repository/nocodb"
	pgrepo "github.com/acme/outbound-dialer/internal/repository/postgres"
	scyllarepo "github.com/acme/outbound-dialer/internal/repository/scylla"
	callsvc "github.com/acme/outbound-dialer/internal/service/call"
	"github.com/acme/outbound-dialer/internal/service/concurrency"
	"github.com/acme/outbound-dialer/internal/service/reconcile"
	"github.com/acme/outbound-dialer/internal/service/report"
	"github.com/acme/outbound-dialer/internal/service/retry"
	"github.com/acme/outbound-dialer/internal/service/schedule"
	"github.com/acme/outbound-dialer/internal/telephony"
	"github.com/acme/outbound-dialer/internal/telephony/mock"
	"github.com/acme/outbound-dialer/internal/telephony/vapi"
	"github.com/acme/outbound-dialer/pkg/logger"
)

// Container wires together shared infrastructure dependencies. Postgres,
// Scylla, Redis and Kafka are nil unless configured.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	hours *dialer.Window

	// lazily initialised components
	components struct {
		once      sync.Once
		stores    *stores
		services  *services
		provider  telephony.Provider
		publisher queue.Publisher
	}
}

type stores struct {
	Leads    repository.LeadStore
	CallLogs repository.CallLogStore
	// Journal is nil when no event journal is configured.
	Journal repository.EventJournal
}

type services struct {
	Gate      *concurrency.Gate
	Lock      *concurrency.RunLock
	Call      *callsvc.Service
	Reconcile *reconcile.Service
	Schedule  *schedule.Service
	Report    *report.Service
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, err
	}

	hours, err := dialer.ParseWindow(cfg.Dialer.CallingHours)
	if err != nil {
		return nil, err
	}

	c := &Container{Config: cfg, Logger: lg, hours: hours}

	if cfg.Store.Driver == "postgres" {
		pg, err := db.NewPostgres(ctx, cfg.Postgres, cfg.App.Name)
		if err != nil {
			return nil, fmt.Errorf("bootstrap postgres: %w", err)
		}
		c.Postgres = pg
		if err := pgrepo.EnsureSchema(ctx, pg.DB()); err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("bootstrap postgres schema: %w", err)
		}
	}

	if len(cfg.Scylla.Hosts) > 0 {
		scylla, err := db.NewScylla(cfg.Scylla)
		if err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("bootstrap scylla: %w", err)
		}
		c.Scylla = scylla
	}

	if cfg.Redis.Address != "" {
		redisClient, err := redis.NewClient(ctx, cfg.Redis, cfg.App.Name)
		if err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		c.Redis = redisClient
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := queue.NewKafka(cfg.Kafka)
		if err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("bootstrap kafka: %w", err)
		}
		c.Kafka = kafka
	}

	return c, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		cfg := c.Config

		st := c.buildStores()
		provider := c.buildProvider()

		var publisher queue.Publisher = queue.NopPublisher{}
		if c.Kafka != nil {
			publisher = queue.NewEventPublisher(c.Kafka)
		}

		gate := concurrency.NewGate(provider, concurrency.GateOptions{
			MaxConcurrent: cfg.Gate.MaxConcurrent,
			PollInterval:  cfg.Gate.PollInterval,
			MaxPolls:      cfg.Gate.MaxPolls,
			ListLimit:     cfg.Provider.ListLimit,
		}, c.Logger.Named("gate"))

		var lock *concurrency.RunLock
		if c.Redis != nil {
			lock = concurrency.NewRunLock(c.Redis.Inner(), cfg.Dialer.LockKeyPrefix, cfg.Dialer.LockTTL, c.Logger.Named("lock"))
		}

		reconciler := reconcile.NewService(st.Leads, st.CallLogs, provider, publisher, reconcile.Settings{
			Rules: reconcile.Rules{
				RetryCeiling: cfg.Reconcile.RetryCeiling,
				RetryDelay:   cfg.Reconcile.RetryDelay,
			},
			CountryCode:     cfg.Provider.CountryCode,
			EnrichThrottle:  cfg.Reconcile.EnrichThrottle,
			TranscriptLimit: cfg.Reconcile.TranscriptLimit,
		}, c.Logger.Named("reconcile"))

		calls := callsvc.NewService(provider, gate, retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			Multiplier:  cfg.Retry.Multiplier,
			MaxDelay:    cfg.Retry.MaxDelay,
		}, callsvc.Settings{
			PhoneNumberID:      cfg.Provider.PhoneNumberID,
			DefaultAssistantID: cfg.Provider.AssistantID(""),
			CountryCode:        cfg.Provider.CountryCode,
			RecallFirstMessage: cfg.Provider.RecallFirstMessage,
		}, c.Logger.Named("call")).
			WithLeads(st.Leads).
			WithRecorder(reconciler)

		c.components.stores = st
		c.components.provider = provider
		c.components.publisher = publisher
		c.components.services = &services{
			Gate:      gate,
			Lock:      lock,
			Call:      calls,
			Reconcile: reconciler,
			Schedule:  schedule.NewService(st.Leads, cfg.Provider.CountryCode, c.Logger),
			Report:    report.NewService(st.Leads, st.CallLogs, gate, c.Logger),
		}
	})
}

func (c *Container) buildStores() *stores {
	cfg := c.Config
	var st stores
	switch cfg.Store.Driver {
	case "postgres":
		st.Leads = pgrepo.NewLeadStore(c.Postgres.DB())
		st.CallLogs = pgrepo.NewCallLogStore(c.Postgres.DB())
	case "memory":
		mem := memory.NewStore()
		st.Leads, st.CallLogs, st.Journal = mem, mem, mem
	default:
		client := nocodb.NewClient(cfg.Store.NocoDB)
		st.Leads = nocodb.NewLeadStore(client, cfg.Store.NocoDB.LeadsTable)
		st.CallLogs = nocodb.NewCallLogStore(client, cfg.Store.NocoDB.CallLogsTable)
	}
	if c.Scylla != nil {
		st.Journal = scyllarepo.NewEventJournal(c.Scylla.Session())
	}
	return &st
}

func (c *Container) buildProvider() telephony.Provider {
	if c.Config.Provider.Name == "mock" {
		return mock.NewProvider(c.Config.Provider)
	}
	return vapi.NewClient(c.Config.Provider)
}

// Stores exposes the lead, call-log and journal stores.
func (c *Container) Stores() *stores {
	c.initComponents()
	return c.components.stores
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Provider exposes the telephony provider.
func (c *Container) Provider() telephony.Provider {
	c.initComponents()
	return c.components.provider
}

// Dialer builds the bulk dialer from configuration.
func (c *Container) Dialer() *dialer.Dialer {
	c.initComponents()
	cfg := c.Config
	statuses := make([]domain.LeadStatus, 0, len(cfg.Dialer.Statuses))
	for _, s := range cfg.Dialer.Statuses {
		statuses = append(statuses, domain.ParseLeadStatus(s))
	}
	svc := c.components.services
	var lock dialer.Locker
	if svc.Lock != nil {
		lock = svc.Lock
	}
	return dialer.New(c.components.stores.Leads, svc.Gate, svc.Call, svc.Reconcile, lock, dialer.Settings{
		Statuses:      statuses,
		ExcludedNames: cfg.Dialer.ExcludedNames,
		CallSpacing:   cfg.Dialer.CallSpacing,
		CountryCode:   cfg.Provider.CountryCode,
		Hours:         c.hours,
	}, c.Logger.Named("dialer"))
}

// EnsureJournal creates the Kafka events topic and the Scylla journal tables
// when those backends are configured.
func (c *Container) EnsureJournal(ctx context.Context) error {
	c.initComponents()
	if c.Kafka != nil {
		if err := c.Kafka.EnsureEventsTopic(ctx, 1); err != nil {
			return err
		}
	}
	if j, ok := c.components.stores.Journal.(*scyllarepo.EventJournal); ok && !c.Config.Scylla.DisableInitSchema {
		if err := j.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if p := c.components.publisher; p != nil {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
