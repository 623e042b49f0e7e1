package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/auth"
	alertingsvc "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/services/alerting"
	auditsvc "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/services/audit"
	dqsvc "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/services/dq"
	etlsvc "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/services/etl"
	healthsvc "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/services/health"
	piisvc "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/services/pii"
	userssvc "github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/services/users"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/storage/memory"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/system"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/httputil"
	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users     storage.UserStore
	Sessions  storage.SessionStore
	Targets   storage.TargetStore
	Rules     storage.RuleStore
	Runs      storage.RunStore
	Alerts    storage.AlertStore
	Pipelines storage.PipelineStore
	PII       storage.PIIStore
	Audit     storage.AuditStore
}

// Options tunes application behaviour beyond persistence.
type Options struct {
	Version string

	AuthSecret        string
	TokenTTL          time.Duration
	BootstrapUser     string
	BootstrapPassword string

	RedisAddr   string
	WebhookURL  string
	DedupWindow time.Duration

	RuleInterval     time.Duration
	PipelineInterval time.Duration

	HealthPinger healthsvc.Pinger
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Auth      *auth.Manager
	Users     *userssvc.Service
	DQ        *dqsvc.Service
	Alerting  *alertingsvc.Service
	ETL       *etlsvc.Service
	PII       *piisvc.Service
	Audit     *auditsvc.Recorder
	Health    *healthsvc.Checker
	Connector *dqsvc.Connector
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Sessions == nil {
		stores.Sessions = mem
	}
	if stores.Targets == nil {
		stores.Targets = mem
	}
	if stores.Rules == nil {
		stores.Rules = mem
	}
	if stores.Runs == nil {
		stores.Runs = mem
	}
	if stores.Alerts == nil {
		stores.Alerts = mem
	}
	if stores.Pipelines == nil {
		stores.Pipelines = mem
	}
	if stores.PII == nil {
		stores.PII = mem
	}
	if stores.Audit == nil {
		stores.Audit = mem
	}

	manager := system.NewManager()

	authManager, err := auth.NewManager(opts.AuthSecret, opts.TokenTTL, stores.Users, stores.Sessions, log)
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}

	userService := userssvc.New(stores.Users, log)
	auditRecorder := auditsvc.NewRecorder(0, auditsvc.NewStoreSink(stores.Audit), log)

	var deduper alertingsvc.Deduper
	if opts.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		deduper = alertingsvc.NewRedisDeduper(client, log)
	} else {
		deduper = alertingsvc.NewMemoryDeduper()
	}

	sinks := []alertingsvc.Sink{alertingsvc.NewLogSink(log)}
	if opts.WebhookURL != "" {
		client := httputil.NewClient(httputil.ClientConfig{BaseURL: opts.WebhookURL})
		sinks = append(sinks, alertingsvc.NewWebhookSink(client, ""))
	}
	alertService := alertingsvc.New(stores.Alerts, sinks, deduper, alertingsvc.NewBus(), opts.DedupWindow, log)

	connector := dqsvc.NewConnector()
	dqService := dqsvc.New(stores.Targets, stores.Rules, stores.Runs, connector, alertService, log)
	etlService := etlsvc.New(stores.Pipelines, stores.Targets, connector, log)
	piiService := piisvc.New(stores.PII, stores.Targets, connector, log)
	healthChecker := healthsvc.NewChecker(opts.Version, opts.HealthPinger)

	services := []system.Service{
		authManager,
		dqsvc.NewScheduler(stores.Rules, dqService, opts.RuleInterval, log),
		etlsvc.NewRunner(stores.Pipelines, etlService, opts.PipelineInterval, log),
	}
	for _, svc := range services {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:   manager,
		log:       log,
		Auth:      authManager,
		Users:     userService,
		DQ:        dqService,
		Alerting:  alertService,
		ETL:       etlService,
		PII:       piiService,
		Audit:     auditRecorder,
		Health:    healthChecker,
		Connector: connector,
	}, nil
}

// Bootstrap seeds the initial admin account when the user store is empty.
func (a *Application) Bootstrap(ctx context.Context, username, password string) error {
	return a.Auth.Bootstrap(ctx, username, password)
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services and closes pooled target connections.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	a.Connector.Close()
	return err
}
