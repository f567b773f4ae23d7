// Package config loads application configuration from environment
// variables.  A .env file is applied first when present, so local
// development does not need exported variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field
// corresponds to an environment variable; durations accept Go
// duration syntax ("3s", "30m").
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port for the ops endpoints

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	RabbitURL string // AMQP broker URL; empty disables queue integration

	LockTimeout   time.Duration // age after which an event lock may be stolen
	CartTTL       time.Duration // lifetime of a cart reservation
	SweepInterval time.Duration // period of the background expiry sweep
	HintTTL       time.Duration // TTL of cached availability hints

	PaymentTermDays         int  // days a pending order may await payment
	PaymentTermGracePending bool // keep overdue pending orders consuming quota
}

// Load reads configuration from the environment.  Required variables
// are enforced by must() and missing values cause the program to exit
// with a fatal log message; tunables fall back to sensible defaults.
func Load() Config {
	_ = godotenv.Load() // best effort; absent .env is fine

	return Config{
		Env:  getenv("APP_ENV", "dev"),
		Port: getenv("APP_PORT", "8080"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		RabbitURL: os.Getenv("RABBITMQ_URL"),

		LockTimeout:   parseDur(getenv("LOCK_TIMEOUT", "3s")),
		CartTTL:       parseDur(getenv("CART_TTL", "30m")),
		SweepInterval: parseDur(getenv("SWEEP_INTERVAL", "1m")),
		HintTTL:       parseDur(getenv("HINT_TTL", "5s")),

		PaymentTermDays:         atoi(getenv("PAYMENT_TERM_DAYS", "14")),
		PaymentTermGracePending: getenv("PAYMENT_TERM_GRACE_PENDING", "false") == "true",
	}
}

// must retrieves the value of a required environment variable.  If
// the variable is unset or empty, the application logs a fatal error
// and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Second
	}
	return d
}
