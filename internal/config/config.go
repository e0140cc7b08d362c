package config

import (
	"os"
	"strconv"
	"time"

	"botvac-bridge/internal/vendor"

	"github.com/joho/godotenv"
)

type Config struct {
	// Vendor / account
	Vendor          string
	AccountEmail    string
	AccountPassword string
	AccountToken    string
	CertPath        string
	RelayTimeout    time.Duration

	// Robots
	RobotsFile  string
	SessionTTL  time.Duration
	SyncAccount bool
	WatchRobots bool
	// MapRefresh is how often the account's floor plans are re-read; zero
	// disables the refresh.
	MapRefresh time.Duration

	// Database
	DBEnabled  bool
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MQTT
	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	// Listeners
	APIAddr   string
	AdminAddr string

	// Application
	LogLevel string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	relayTimeout, _ := strconv.Atoi(getEnv("RELAY_TIMEOUT_SECONDS", "10"))
	sessionTTL, _ := strconv.Atoi(getEnv("SESSION_TTL_MINUTES", "30"))
	mapRefresh, _ := strconv.Atoi(getEnv("MAP_REFRESH_MINUTES", "60"))

	return &Config{
		Vendor:          getEnv("BOTVAC_VENDOR", "neato"),
		AccountEmail:    getEnv("BOTVAC_EMAIL", ""),
		AccountPassword: getEnv("BOTVAC_PASSWORD", ""),
		AccountToken:    getEnv("BOTVAC_TOKEN", ""),
		CertPath:        getEnv("BOTVAC_CERT_PATH", ""),
		RelayTimeout:    time.Duration(relayTimeout) * time.Second,

		RobotsFile:  getEnv("ROBOTS_FILE", ""),
		SessionTTL:  time.Duration(sessionTTL) * time.Minute,
		SyncAccount: getBool("SYNC_ACCOUNT", true),
		WatchRobots: getBool("WATCH_ROBOTS_FILE", true),
		MapRefresh:  time.Duration(mapRefresh) * time.Minute,

		DBEnabled:  getBool("DB_ENABLED", true),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "botvac_bridge"),

		RedisEnabled:  getBool("REDIS_ENABLED", true),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		MQTTBroker:      getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "botvac-bridge"),
		MQTTUsername:    getEnv("MQTT_USERNAME", ""),
		MQTTPassword:    getEnv("MQTT_PASSWORD", ""),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "botvac"),

		APIAddr:   getEnv("API_ADDR", ":8080"),
		AdminAddr: getEnv("ADMIN_ADDR", ":9090"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}, nil
}

// HasCredentials reports whether an account login is configured.
func (c *Config) HasCredentials() bool {
	return c.AccountToken != "" || (c.AccountEmail != "" && c.AccountPassword != "")
}

// RelayVendor resolves the configured vendor with the certificate bundle.
func (c *Config) RelayVendor() (vendor.Vendor, error) {
	v, err := vendor.ByName(c.Vendor)
	if err != nil {
		return vendor.Vendor{}, err
	}
	v.CertPath = c.CertPath
	return v, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
