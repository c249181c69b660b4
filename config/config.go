package config

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	neturl "net/url"
	"os"
	"strconv"
	"strings"

	"leadwise-backend/envx"
)

type Config struct {
	Environment string
	ServiceName string

	Port   string
	DBURL  string
	DBHost string
	DBPort int
	DBName string
	DBUser string
	DBPass string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret        string
	TokenExpiryHours int

	AdminEmail          string
	EnableAutoMigration bool

	InferenceAPIURL string
	InferenceAPIKey string
	InferenceModel  string

	ApolloAPIURL string

	EmailHost     string
	EmailPort     int
	EmailUser     string
	EmailPassword string
	EmailFrom     string

	FollowUpDelayMinutes    int
	FollowUpPollIntervalSec int
	MaintenanceIntervalHrs  int

	LogLevel     string
	LogFormat    string
	LogAddSource bool
	LogColor     bool

	CORSAllowedOrigins []string
	PublicRatePerMin   int
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return strings.Trim(v, "\"")
}

func getEnvInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.ToLower(getEnv(key, ""))
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func getEnvList(key string, fallback []string) []string {
	v := strings.TrimSpace(getEnv(key, ""))
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "dev-secret"
	}
	return hex.EncodeToString(b)
}

func requireSecret(key string) string {
	v := getEnv(key, "")
	if v != "" {
		return v
	}
	env := strings.ToLower(getEnv("GO_ENV", "development"))
	if env == "production" {
		panic("missing required env: " + key)
	}
	return randomSecret()
}

func Load() Config {
	_ = envx.LoadDotEnvIfPresent(".env")

	dbPort := getEnvInt("DB_PORT", 5432)
	dbHost := getEnv("DB_HOST", "localhost")
	dbUser := getEnv("DB_USER", "postgres")
	dbPass := getEnv("DB_PASSWORD", "postgres")
	dbName := getEnv("DB_NAME", "leadwise")
	dbURL := getEnv("DATABASE_URL", "")
	if hasExplicitDBParts() {
		dbURL = buildDatabaseURL(dbHost, dbPort, dbName, dbUser, dbPass)
	} else if dbURL != "" {
		dbURL = applyDefaultSSLMode(dbURL)
	} else {
		dbURL = buildDatabaseURL(dbHost, dbPort, dbName, dbUser, dbPass)
	}

	redisHost := getEnv("REDIS_HOST", "localhost")
	redisPort := getEnvInt("REDIS_PORT", 6379)
	environment := strings.ToLower(getEnv("GO_ENV", "development"))

	return Config{
		Environment: environment,
		ServiceName: getEnv("SERVICE_NAME", "leadwise-backend"),

		Port:   getEnv("PORT", "8080"),
		DBURL:  dbURL,
		DBHost: dbHost,
		DBPort: dbPort,
		DBName: dbName,
		DBUser: dbUser,
		DBPass: dbPass,

		RedisAddr:     redisHost + ":" + strconv.Itoa(redisPort),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:        requireSecret("JWT_SECRET"),
		TokenExpiryHours: getEnvInt("TOKEN_EXPIRY_HOURS", 72),

		AdminEmail:          getEnv("ADMIN_EMAIL", "admin@leadwise.local"),
		EnableAutoMigration: getEnvBool("AUTO_MIGRATE", false),

		InferenceAPIURL: getEnv("INFERENCE_API_URL", "https://api.openai.com/v1"),
		InferenceAPIKey: getEnv("INFERENCE_API_KEY", ""),
		InferenceModel:  getEnv("INFERENCE_MODEL", "gpt-4o-mini"),

		ApolloAPIURL: getEnv("APOLLO_API_URL", "https://api.apollo.io/api/v1"),

		EmailHost:     getEnv("EMAIL_HOST", ""),
		EmailPort:     getEnvInt("EMAIL_PORT", 587),
		EmailUser:     getEnv("EMAIL_USER", ""),
		EmailPassword: getEnv("EMAIL_PASSWORD", ""),
		EmailFrom:     getEnv("EMAIL_FROM", "noreply@leadwise.app"),

		FollowUpDelayMinutes:    getEnvInt("FOLLOWUP_DELAY_MINUTES", 5),
		FollowUpPollIntervalSec: getEnvInt("FOLLOWUP_POLL_INTERVAL_SEC", 30),
		MaintenanceIntervalHrs:  getEnvInt("MAINTENANCE_INTERVAL_HOURS", 24),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		LogAddSource: getEnvBool("LOG_ADD_SOURCE", false),
		LogColor:     getEnvBool("LOG_COLOR", true),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		PublicRatePerMin:   getEnvInt("PUBLIC_RATE_LIMIT_PER_MINUTE", 60),
	}
}

func buildDatabaseURL(host string, port int, dbName, user, pass string) string {
	u := &neturl.URL{
		Scheme: "postgres",
		User:   neturl.UserPassword(user, pass),
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + dbName,
	}
	q := u.Query()
	if isLocalHost(host) {
		q.Set("sslmode", "disable")
	} else {
		q.Set("sslmode", "require")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func applyDefaultSSLMode(dbURL string) string {
	u, err := neturl.Parse(strings.TrimSpace(dbURL))
	if err != nil {
		return dbURL
	}
	q := u.Query()
	if q.Get("sslmode") != "" {
		return u.String()
	}
	if isLocalHost(u.Hostname()) {
		q.Set("sslmode", "disable")
	} else {
		q.Set("sslmode", "require")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func isLocalHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	return h == "" || h == "localhost" || h == "127.0.0.1" || h == "::1"
}

func hasExplicitDBParts() bool {
	return strings.TrimSpace(os.Getenv("DB_HOST")) != "" ||
		strings.TrimSpace(os.Getenv("DB_PORT")) != "" ||
		strings.TrimSpace(os.Getenv("DB_NAME")) != "" ||
		strings.TrimSpace(os.Getenv("DB_USER")) != "" ||
		strings.TrimSpace(os.Getenv("DB_PASSWORD")) != ""
}
