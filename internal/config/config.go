package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	Env           string
	AllowedOrigin string
	LogFile       string

	StateBackend string
	BoltPath     string
	DatabaseURL  string
	SeedDemo     bool

	RedisAddr                 string
	RedisPassword             string
	RedisDB                   int
	CommissionCacheTTLSeconds int

	AuthSecret            string
	AccessTokenTTLMinutes int
	OperatorPINs          string

	CreditDefaultLimit decimal.Decimal
	CreditDueDays      int
	OverdueCron        string
}

// Load reads configuration from an optional .env file in the working
// directory and from the environment, which takes precedence.
func Load() Config {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("STATE_BACKEND", "memory")
	v.SetDefault("BOLT_PATH", "barberpos.db")
	v.SetDefault("SEED_DEMO", true)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("COMMISSION_CACHE_TTL_SECONDS", 60)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("CREDIT_DEFAULT_LIMIT", "500")
	v.SetDefault("CREDIT_DUE_DAYS", 30)
	v.SetDefault("OVERDUE_CRON", "@daily")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("warning: could not read config file: %v", err)
		}
	}

	limit, err := decimal.NewFromString(v.GetString("CREDIT_DEFAULT_LIMIT"))
	if err != nil || limit.IsNegative() {
		limit = decimal.NewFromInt(500)
	}
	ttl := v.GetInt("COMMISSION_CACHE_TTL_SECONDS")
	if ttl < 0 {
		ttl = 60
	}
	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}
	dueDays := v.GetInt("CREDIT_DUE_DAYS")
	if dueDays < 1 {
		dueDays = 30
	}

	return Config{
		Port:                      v.GetString("PORT"),
		Env:                       v.GetString("APP_ENV"),
		AllowedOrigin:             v.GetString("ALLOWED_ORIGIN"),
		LogFile:                   strings.TrimSpace(v.GetString("LOG_FILE")),
		StateBackend:              strings.ToLower(strings.TrimSpace(v.GetString("STATE_BACKEND"))),
		BoltPath:                  v.GetString("BOLT_PATH"),
		DatabaseURL:               v.GetString("DATABASE_URL"),
		SeedDemo:                  v.GetBool("SEED_DEMO"),
		RedisAddr:                 v.GetString("REDIS_ADDR"),
		RedisPassword:             v.GetString("REDIS_PASSWORD"),
		RedisDB:                   v.GetInt("REDIS_DB"),
		CommissionCacheTTLSeconds: ttl,
		AuthSecret:                strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:     tokenTTL,
		OperatorPINs:              strings.TrimSpace(v.GetString("OPERATOR_PINS")),
		CreditDefaultLimit:        limit,
		CreditDueDays:             dueDays,
		OverdueCron:               v.GetString("OVERDUE_CRON"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

type Operator struct {
	Name string
	Role string
	PIN  string
}

// Operators parses OPERATOR_PINS, a comma separated list of name:role:pin.
func (c Config) Operators() ([]Operator, error) {
	if c.OperatorPINs == "" {
		return nil, nil
	}
	entries := strings.Split(c.OperatorPINs, ",")
	out := make([]Operator, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("OPERATOR_PINS entry %q must be name:role:pin", entry)
		}
		op := Operator{
			Name: strings.TrimSpace(parts[0]),
			Role: strings.ToLower(strings.TrimSpace(parts[1])),
			PIN:  strings.TrimSpace(parts[2]),
		}
		if op.Name == "" || op.PIN == "" {
			return nil, fmt.Errorf("OPERATOR_PINS entry %q must be name:role:pin", entry)
		}
		if op.Role != "admin" && op.Role != "cashier" {
			return nil, fmt.Errorf("OPERATOR_PINS entry %q has unknown role %q", entry, op.Role)
		}
		out = append(out, op)
	}
	return out, nil
}
