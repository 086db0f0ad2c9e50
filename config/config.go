package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Rates    RatesConfig
	Mpesa    MpesaConfig
	Payment  PaymentConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig selects the distributed rate cache. Empty Addr = in-memory cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

type RatesConfig struct {
	BaseURL     string
	APIKey      string
	CacheTTL    time.Duration
	CallTimeout time.Duration
}

// MpesaConfig holds Daraja STK push credentials. The rotating password is
// derived per request from ShortCode + Passkey + timestamp.
type MpesaConfig struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	Passkey         string
	CallbackBaseURL string // callback URL is CallbackBaseURL + /api/v1/webhooks/mpesa/{token}
	Timeout         time.Duration
}

type PaymentConfig struct {
	MinAmountCents int64         // provider minimum, settlement-currency cents
	PendingExpiry  time.Duration // PENDING older than this is failed by the sweeper
	SweepInterval  time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8088"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", "somahub:somahub@tcp(localhost:3306)/somahub?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
			Issuer:        "somahub",
		},
		Rates: RatesConfig{
			BaseURL:     getEnv("RATES_BASE_URL", "https://api.exchangerate.host"),
			APIKey:      getEnv("RATES_API_KEY", ""),
			CacheTTL:    time.Hour,
			CallTimeout: 10 * time.Second,
		},
		Mpesa: MpesaConfig{
			BaseURL:         getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:     getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:  getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:       getEnv("MPESA_SHORT_CODE", "174379"),
			Passkey:         getEnv("MPESA_PASSKEY", ""),
			CallbackBaseURL: getEnv("MPESA_CALLBACK_BASE_URL", "https://somahub.co.ke"),
			Timeout:         30 * time.Second,
		},
		Payment: PaymentConfig{
			MinAmountCents: 100, // 1 KES
			PendingExpiry:  30 * time.Minute,
			SweepInterval:  5 * time.Minute,
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
