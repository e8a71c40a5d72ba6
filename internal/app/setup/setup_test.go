package setup

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LavaJover/shvark-ledger-service/internal/config"
	"github.com/LavaJover/shvark-ledger-service/internal/infrastructure/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.LedgerConfig {
	return &config.LedgerConfig{
		LedgerDB:   config.LedgerDB{Driver: DriverMemory},
		HTTPServer: config.HTTPServer{Host: "127.0.0.1", Port: "0"},
		GRPCServer: config.GRPCServer{Host: "127.0.0.1", Port: "0"},
		Settlement: config.Settlement{DefaultCurrency: "RUB"},
		Providers: map[string]config.ProviderConfig{
			"formkassa": {BaseURL: "https://pay.example", ShopID: "1001", PrivateKey: "s1", PublicKey: "s2", Aliases: []string{"form kassa"}},
			"hmacpay":   {BaseURL: "https://api.example", APIKey: "m1", PrivateKey: "k", FeePercent: "2.5"},
		},
		Methods: []config.MethodConfig{
			{ID: "form-in", Provider: "Form Kassa", Direction: "payin", MinAmount: "100", Enabled: true},
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitialize_MemoryDriver(t *testing.T) {
	deps, err := InitializeDependencies(context.Background(), testConfig(), discardLogger())
	require.NoError(t, err)
	defer deps.Close()

	assert.Nil(t, deps.Publisher)
	assert.Nil(t, deps.Subscriber)
	assert.IsType(t, &notifier.Log{}, deps.Notifier)

	uc, err := InitializeUseCases(deps)
	require.NoError(t, err)
	assert.Equal(t, []string{"formkassa", "hmacpay"}, uc.Providers.Names())

	adapter, err := uc.Providers.Resolve("FORM KASSA")
	require.NoError(t, err)
	assert.NotNil(t, adapter)

	servers := InitializeServers(deps, uc)
	srv := httptest.NewServer(servers.HTTP.Handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/payins", "application/json",
		strings.NewReader(`{"user_id":"u-1","amount":"250","method_id":"form-in"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		PaymentURL  string `json:"payment_url"`
		Transaction struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"transaction"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.PaymentURL, "https://pay.example")
	assert.Equal(t, "PENDING", body.Transaction.Status)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	raw, _ := io.ReadAll(metricsResp.Body)
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestInitialize_MessagingFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.KafkaService = config.KafkaService{Brokers: []string{"localhost:9092"}}
	cfg.Notifier = config.Notifier{CallbackURL: "http://localhost:9/notify"}

	deps, err := InitializeDependencies(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer deps.Close()

	assert.NotNil(t, deps.Publisher)
	assert.NotNil(t, deps.Subscriber)
	assert.NotNil(t, deps.Events)
	multi, ok := deps.Notifier.(notifier.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 2)
}

func TestInitialize_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.LedgerDB.Driver = "sqlite"
	_, err := InitializeDependencies(context.Background(), cfg, discardLogger())
	assert.ErrorContains(t, err, "unknown driver")

	cfg = testConfig()
	cfg.Methods = append(cfg.Methods, config.MethodConfig{ID: "bad", MinAmount: "ten"})
	_, err = InitializeDependencies(context.Background(), cfg, discardLogger())
	assert.ErrorContains(t, err, "min_amount")

	cfg = testConfig()
	cfg.Providers["paypal"] = config.ProviderConfig{}
	deps, err := InitializeDependencies(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	_, err = InitializeUseCases(deps)
	assert.ErrorContains(t, err, "no adapter")
}
