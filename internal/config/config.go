package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// Stripe credentials. The webhook secret signs inbound event payloads;
	// the secret key authenticates outbound API calls.
	StripeSecretKey     string
	StripeWebhookSecret string

	// AuthJWTSecret verifies end-user bearer tokens issued by the identity
	// provider. AccountHookToken authenticates the identity provider's
	// server-to-server account-creation callback.
	AuthJWTSecret    string
	AccountHookToken string

	CheckoutSuccessURL string
	CheckoutCancelURL  string
	CheckoutPriceID    string
	CheckoutTrialDays  int

	RedisAddr     string
	RedisPassword string

	SlackWebhookURL string
	SlackOpsChannel string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "kindmind"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "kindmind"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		StripeSecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
		StripeWebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),

		AuthJWTSecret:    strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AccountHookToken: strings.TrimSpace(getenv("ACCOUNT_HOOK_TOKEN", "")),

		CheckoutSuccessURL: getenv("CHECKOUT_SUCCESS_URL", "https://app.kindmind.io/billing/success"),
		CheckoutCancelURL:  getenv("CHECKOUT_CANCEL_URL", "https://app.kindmind.io/billing/cancel"),
		CheckoutPriceID:    strings.TrimSpace(getenv("CHECKOUT_PRICE_ID", "")),
		CheckoutTrialDays:  getenvInt("CHECKOUT_TRIAL_DAYS", 7),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		SlackWebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
		SlackOpsChannel: getenv("SLACK_OPS_CHANNEL", "#kindmind-ops"),
	}
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPlanConfigHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
