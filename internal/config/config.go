// internal/config/config.go
//
// Process configuration from the environment.
// Responsibilities:
//   - Load .env (best effort) and read every setting with a default.
//   - Parse numbers and durations; bad values fall back to the default with
//     a warning.
//
// Notes:
//   - JWT_SECRET defaults to a development value; serve warns when it is used.
//   - ORACLE_CALLBACK_URL empty means the oracle calls the machine in-process.

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// DevJWTSecret is the fallback signing secret for local runs.
const DevJWTSecret = "dev_secret_change_me"

type Config struct {
	Port     string
	LogLevel string

	Store  string // sqlite | memory
	DBPath string

	JWTSecret     string
	JWTTTL        time.Duration
	CookieName    string
	CookieSecure  bool
	ClientOrigin  string
	AdminUsername string
	AdminPassword string

	FHEBackend string // mock | bgv
	KeysDir    string

	OracleWorkers      int
	OracleDelay        time.Duration
	OracleRetryTimeout time.Duration
	OracleRequeueDelay time.Duration
	OracleCallbackURL  string
}

// FromEnv loads .env if present and reads the environment.
func FromEnv() Config {
	_ = godotenv.Load()
	return Config{
		Port:     getEnv("PORT", "5175"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Store:  getEnv("STORE", "sqlite"),
		DBPath: getEnv("DB_PATH", "./data/game.db"),

		JWTSecret:     getEnv("JWT_SECRET", DevJWTSecret),
		JWTTTL:        time.Duration(envInt("JWT_EXPIRES_DAYS", 14)) * 24 * time.Hour,
		CookieName:    getEnv("COOKIE_NAME", "fheguess_token"),
		CookieSecure:  os.Getenv("NODE_ENV") == "production",
		ClientOrigin:  getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		FHEBackend: getEnv("FHE_BACKEND", "mock"),
		KeysDir:    getEnv("KEYS_DIR", "./data/keys"),

		OracleWorkers:      envInt("ORACLE_WORKERS", 2),
		OracleDelay:        envDuration("ORACLE_DELAY", 0),
		OracleRetryTimeout: envDuration("ORACLE_RETRY_TIMEOUT", 30*time.Second),
		OracleRequeueDelay: envDuration("ORACLE_REQUEUE_DELAY", time.Minute),
		OracleCallbackURL:  os.Getenv("ORACLE_CALLBACK_URL"),
	}
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Warn().Str("key", k).Str("value", v).Int("default", def).Msg("bad integer, using default")
		return def
	}
	return n
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		log.Warn().Str("key", k).Str("value", v).Dur("default", def).Msg("bad duration, using default")
		return def
	}
	return d
}
