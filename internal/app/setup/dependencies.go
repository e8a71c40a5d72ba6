package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/config"
	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	ledgerdynamo "github.com/LavaJover/shvark-ledger-service/internal/infrastructure/dynamodb"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/kafka"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/memory"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/metrics"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/migrate"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/notifier"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/postgres"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"

	notifyTimeout = 10 * time.Second
)

type Dependencies struct {
	Config     *config.LedgerConfig
	Logger     *slog.Logger
	Store      domain.LedgerStore
	Methods    domain.MethodRepository
	Audit      domain.CallbackAuditLog
	Registry   *prometheus.Registry
	Metrics    *metrics.LedgerMetrics
	Publisher  *kafka.Publisher
	Subscriber domain.SubscriberPort
	Notifier   domain.Notifier
	Events     domain.TransactionEventSink
	Probes     map[string]func(ctx context.Context) error

	closers []io.Closer
}

// Close releases every resource opened by InitializeDependencies, last opened first.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func InitializeDependencies(ctx context.Context, cfg *config.LedgerConfig, logger *slog.Logger) (*Dependencies, error) {
	methods, err := configuredMethods(cfg)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		Probes: make(map[string]func(ctx context.Context) error),
	}

	if err := deps.initStore(ctx, methods); err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("ledger store: %w", err)
	}

	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Metrics = metrics.NewLedgerMetrics(deps.Registry)

	deps.initMessaging()
	return deps, nil
}

func configuredMethods(cfg *config.LedgerConfig) ([]domain.PaymentMethod, error) {
	methods := make([]domain.PaymentMethod, 0, len(cfg.Methods))
	for _, mc := range cfg.Methods {
		m, err := mc.PaymentMethod()
		if err != nil {
			return nil, fmt.Errorf("methods: %w", err)
		}
		methods = append(methods, m)
	}
	return methods, nil
}

func (d *Dependencies) initStore(ctx context.Context, methods []domain.PaymentMethod) error {
	switch d.Config.LedgerDB.Driver {
	case DriverPostgres:
		db := postgres.MustInitDB(d.Config)
		if path := d.Config.LedgerDB.MigrationsPath; path != "" {
			if err := migrate.RunMigrations(db, path, d.Logger); err != nil {
				return err
			}
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("get sql.DB: %w", err)
		}
		d.closers = append(d.closers, sqlDB)
		d.Probes["postgres"] = sqlDB.PingContext

		repo := postgres.NewDefaultMethodRepository(db)
		if err := repo.Seed(ctx, methods); err != nil {
			return fmt.Errorf("seed payment methods: %w", err)
		}
		d.Store = postgres.NewLedgerStore(db)
		d.Methods = repo
		d.Audit = postgres.NewDefaultCallbackAuditLog(db)

	case DriverDynamoDB:
		opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(d.Config.DynamoDB.Region)}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if endpoint := d.Config.DynamoDB.Endpoint; endpoint != "" {
				o.BaseEndpoint = &endpoint
			}
		})
		store := ledgerdynamo.New(client, d.Config.DynamoDB.TransactionsTable, d.Config.DynamoDB.BalancesTable)
		d.Probes["dynamodb"] = func(ctx context.Context) error {
			_, err := store.ListBalances(ctx, "health-probe")
			return err
		}
		d.Store = store
		d.Methods = memory.NewMethodRepository(methods...)
		d.Audit = ledgerdynamo.NewAuditLog(client, d.Config.DynamoDB.AuditTable)

	case DriverMemory, "":
		d.Logger.Warn("using in-memory ledger store, state is lost on restart")
		d.Store = memory.NewStore()
		d.Methods = memory.NewMethodRepository(methods...)
		d.Audit = memory.NewAuditLog()

	default:
		return fmt.Errorf("unknown driver %q", d.Config.LedgerDB.Driver)
	}
	return nil
}

func (d *Dependencies) initMessaging() {
	var notifiers notifier.Multi

	if d.Config.KafkaService.Enabled() {
		d.Publisher = kafka.NewPublisher(d.Config.KafkaService.Brokers)
		d.closers = append(d.closers, d.Publisher)
		d.Subscriber = kafka.NewSubscriber(d.Config.KafkaService.Brokers, d.Logger)
		d.Events = kafka.NewEventSink(d.Publisher, d.Config.KafkaService.TransactionsTopic, d.Logger)
		notifiers = append(notifiers, notifier.NewKafkaNotifier(d.Publisher, d.Config.KafkaService.NotificationsTopic, d.Logger))
	}

	if url := d.Config.Notifier.CallbackURL; url != "" {
		client := &http.Client{Timeout: notifyTimeout}
		notifiers = append(notifiers, notifier.NewCallbackNotifier(url, d.Config.Notifier.CallbackSecret, client, d.Logger))
	}

	switch len(notifiers) {
	case 0:
		d.Notifier = notifier.NewLog(d.Logger)
	case 1:
		d.Notifier = notifiers[0]
	default:
		d.Notifier = notifiers
	}
}
