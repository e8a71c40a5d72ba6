package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/LavaJover/shvark-ledger-service/internal/domain"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const configPathEnv = "LEDGER_CONFIG_PATH"

type LedgerConfig struct {
	Env          string `yaml:"env" env:"LEDGER_ENV" env-default:"local"`
	HTTPServer   `yaml:"http_server"`
	GRPCServer   `yaml:"grpc_server"`
	LedgerDB     `yaml:"ledger_db"`
	DynamoDB     `yaml:"dynamodb"`
	LogConfig    `yaml:"log_config"`
	KafkaService `yaml:"kafka_service"`
	Notifier     `yaml:"notifier"`
	Settlement   `yaml:"settlement"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
	Methods      []MethodConfig            `yaml:"methods"`
}

type HTTPServer struct {
	Host         string        `yaml:"host" env:"LEDGER_HTTP_HOST" env-default:"0.0.0.0"`
	Port         string        `yaml:"port" env:"LEDGER_HTTP_PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"30s"`
}

type GRPCServer struct {
	Host string `yaml:"host" env:"LEDGER_GRPC_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"LEDGER_GRPC_PORT" env-default:"50051"`
}

// LedgerDB selects the store. Driver is one of postgres, dynamodb or memory.
type LedgerDB struct {
	Driver         string `yaml:"driver" env:"LEDGER_DB_DRIVER" env-default:"memory"`
	Dsn            string `yaml:"dsn" env:"LEDGER_DB_DSN"`
	MigrationsPath string `yaml:"migrations_path" env:"LEDGER_MIGRATIONS_PATH"`
}

type DynamoDB struct {
	Region            string `yaml:"region" env:"AWS_REGION" env-default:"eu-central-1"`
	Endpoint          string `yaml:"endpoint" env:"LEDGER_DYNAMODB_ENDPOINT"`
	TransactionsTable string `yaml:"transactions_table" env-default:"ledger_transactions"`
	BalancesTable     string `yaml:"balances_table" env-default:"ledger_balances"`
	AuditTable        string `yaml:"audit_table" env-default:"ledger_callback_audit"`
}

type LogConfig struct {
	LogLevel  string `yaml:"log_level" env:"LEDGER_LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env-default:"json"`
	LogOutput string `yaml:"log_output" env-default:"stdout"`
}

type KafkaService struct {
	Brokers            []string `yaml:"brokers" env:"LEDGER_KAFKA_BROKERS" env-separator:","`
	TransactionsTopic  string   `yaml:"transactions_topic" env-default:"ledger-transactions"`
	NotificationsTopic string   `yaml:"notifications_topic" env-default:"ledger-notifications"`
	OperatorTopic      string   `yaml:"operator_topic" env-default:"ledger-operator-decisions"`
	GroupID            string   `yaml:"group_id" env-default:"ledger-service"`
}

func (k KafkaService) Enabled() bool {
	return len(k.Brokers) > 0
}

type Notifier struct {
	CallbackURL    string `yaml:"callback_url" env:"LEDGER_NOTIFY_URL"`
	CallbackSecret string `yaml:"callback_secret" env:"LEDGER_NOTIFY_SECRET"`
}

type Settlement struct {
	DefaultCurrency   string        `yaml:"default_currency" env-default:"RUB"`
	AutoPayoutEnabled bool          `yaml:"auto_payout_enabled" env:"LEDGER_AUTO_PAYOUT"`
	PayinTTL          time.Duration `yaml:"payin_ttl" env-default:"24h"`
	ExpiryInterval    time.Duration `yaml:"expiry_interval" env-default:"5m"`
	GatewayTimeout    time.Duration `yaml:"gateway_timeout" env-default:"15s"`
}

type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	PublicKey      string        `yaml:"public_key"`
	PrivateKey     string        `yaml:"private_key"`
	APIKey         string        `yaml:"api_key"`
	ShopID         string        `yaml:"shop_id"`
	CallbackURL    string        `yaml:"callback_url"`
	SuccessURL     string        `yaml:"success_url"`
	FailURL        string        `yaml:"fail_url"`
	FeePercent     string        `yaml:"fee_percent"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Aliases        []string      `yaml:"aliases"`
}

func (p ProviderConfig) Settings() (domain.ProviderSettings, error) {
	fee, err := parseDecimal(p.FeePercent)
	if err != nil {
		return domain.ProviderSettings{}, fmt.Errorf("fee_percent: %w", err)
	}
	return domain.ProviderSettings{
		BaseURL:        p.BaseURL,
		PublicKey:      p.PublicKey,
		PrivateKey:     p.PrivateKey,
		APIKey:         p.APIKey,
		ShopID:         p.ShopID,
		CallbackURL:    p.CallbackURL,
		SuccessURL:     p.SuccessURL,
		FailURL:        p.FailURL,
		FeePercent:     fee,
		RequestTimeout: p.RequestTimeout,
	}, nil
}

type MethodConfig struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Provider   string `yaml:"provider"`
	SubMethod  string `yaml:"sub_method"`
	Direction  string `yaml:"direction"`
	MinAmount  string `yaml:"min_amount"`
	MaxAmount  string `yaml:"max_amount"`
	Enabled    bool   `yaml:"enabled"`
	AutoPayout bool   `yaml:"auto_payout"`
}

func (m MethodConfig) PaymentMethod() (domain.PaymentMethod, error) {
	if m.ID == "" {
		return domain.PaymentMethod{}, fmt.Errorf("method without id")
	}
	minAmount, err := parseDecimal(m.MinAmount)
	if err != nil {
		return domain.PaymentMethod{}, fmt.Errorf("method %s min_amount: %w", m.ID, err)
	}
	maxAmount, err := parseDecimal(m.MaxAmount)
	if err != nil {
		return domain.PaymentMethod{}, fmt.Errorf("method %s max_amount: %w", m.ID, err)
	}
	return domain.PaymentMethod{
		ID:         m.ID,
		Name:       m.Name,
		Provider:   m.Provider,
		SubMethod:  m.SubMethod,
		Direction:  domain.Direction(strings.ToUpper(m.Direction)),
		MinAmount:  minAmount,
		MaxAmount:  maxAmount,
		Enabled:    m.Enabled,
		AutoPayout: m.AutoPayout,
	}, nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(raw))
}

// Load reads the YAML file at path; env variables override matching fields.
func Load(path string) (*LedgerConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}
	var cfg LedgerConfig
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return &cfg, nil
}

func MustLoad() *LedgerConfig {
	// .env is optional
	_ = godotenv.Load()

	configPath := os.Getenv(configPathEnv)
	if configPath == "" {
		log.Fatalf("%s was not found\n", configPathEnv)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}
