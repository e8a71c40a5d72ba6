package setup

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/LavaJover/shvark-ledger-service/internal/config"
	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers/cryptoinvoice"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers/formkassa"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers/hmacpay"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers/sbpqr"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/providers/shoplink"
	"github.com/LavaJover/shvark-ledger-service/internal/usecase/balance"
	"github.com/LavaJover/shvark-ledger-service/internal/usecase/settlement"
	"github.com/LavaJover/shvark-ledger-service/internal/usecase/transaction"
)

type UseCases struct {
	Ledger     *balance.Ledger
	Manager    *transaction.Manager
	Providers  *providers.Registry
	Settlement *settlement.Service
}

type adapterFactory func(settings domain.ProviderSettings, reconciler domain.TransactionReconciler, client *http.Client, logger *slog.Logger) domain.ProviderAdapter

var adapterFactories = map[string]adapterFactory{
	formkassa.Name: func(s domain.ProviderSettings, r domain.TransactionReconciler, _ *http.Client, l *slog.Logger) domain.ProviderAdapter {
		return formkassa.New(s, r, l)
	},
	shoplink.Name: func(s domain.ProviderSettings, r domain.TransactionReconciler, _ *http.Client, l *slog.Logger) domain.ProviderAdapter {
		return shoplink.New(s, r, l)
	},
	cryptoinvoice.Name: func(s domain.ProviderSettings, r domain.TransactionReconciler, c *http.Client, l *slog.Logger) domain.ProviderAdapter {
		return cryptoinvoice.New(s, r, c, l)
	},
	hmacpay.Name: func(s domain.ProviderSettings, r domain.TransactionReconciler, c *http.Client, l *slog.Logger) domain.ProviderAdapter {
		return hmacpay.New(s, r, c, l)
	},
	sbpqr.Name: func(s domain.ProviderSettings, r domain.TransactionReconciler, c *http.Client, l *slog.Logger) domain.ProviderAdapter {
		return sbpqr.New(s, r, c, l)
	},
}

func InitializeUseCases(deps *Dependencies) (*UseCases, error) {
	ledger := balance.NewLedger(deps.Store, deps.Metrics, deps.Logger)

	manager, err := transaction.NewManager(deps.Store, ledger, deps.Notifier, deps.Events, deps.Metrics, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("transaction manager: %w", err)
	}

	// Adapters reconcile callbacks through the manager, so the registry comes after it.
	registry, err := initProviders(deps.Config.Providers, manager, deps.Logger)
	if err != nil {
		return nil, err
	}

	service := settlement.NewService(
		deps.Methods,
		ledger,
		manager,
		registry,
		deps.Audit,
		settlement.Config{
			DefaultCurrency:   deps.Config.Settlement.DefaultCurrency,
			AutoPayoutEnabled: deps.Config.Settlement.AutoPayoutEnabled,
			GatewayTimeout:    deps.Config.Settlement.GatewayTimeout,
		},
		deps.Logger,
	)

	return &UseCases{
		Ledger:     ledger,
		Manager:    manager,
		Providers:  registry,
		Settlement: service,
	}, nil
}

// initProviders builds one adapter per configured gateway. Gateways absent from
// the config are not routable.
func initProviders(cfgs map[string]config.ProviderConfig, reconciler domain.TransactionReconciler, logger *slog.Logger) (*providers.Registry, error) {
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]providers.Entry, 0, len(names))
	for _, name := range names {
		pc := cfgs[name]
		factory, ok := adapterFactories[providers.Normalize(name)]
		if !ok {
			return nil, fmt.Errorf("providers: no adapter for %q", name)
		}
		settings, err := pc.Settings()
		if err != nil {
			return nil, fmt.Errorf("providers: %s: %w", name, err)
		}
		client := providers.NewHTTPClient(pc.RequestTimeout)
		entries = append(entries, providers.Entry{
			Name:    name,
			Adapter: factory(settings, reconciler, client, logger),
			Aliases: pc.Aliases,
		})
	}

	registry, err := providers.NewRegistry(entries...)
	if err != nil {
		return nil, err
	}
	logger.Info("payment providers registered", "providers", registry.Names())
	return registry, nil
}
