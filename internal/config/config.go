package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Auth      AuthConfig
	S3        S3Config
	Redis     RedisConfig
	Sync      SyncConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WebSocketConfig holds WebSocket transport settings.
type WebSocketConfig struct {
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	AllowGuests       bool
}

// S3Config holds thumbnail storage settings. Optional: when no bucket is
// configured, thumbnails are stored inline on the board row.
type S3Config struct {
	Region          string
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
}

// RedisConfig holds the canvas snapshot cache settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// SyncConfig tunes the real-time sync layer.
type SyncConfig struct {
	// SaveDebounce coalesces local mutations into one persistence write.
	SaveDebounce time.Duration
	// FullSyncDebounce delays the full-document drift-correction broadcast.
	FullSyncDebounce time.Duration
	// CursorInterval is the minimum gap between cursor emits (~12/s).
	CursorInterval time.Duration
	// HistoryLimit caps the undo snapshot stack.
	HistoryLimit int
	// EnforceRelayPermissions makes the relay drop mutating events from
	// read-only sessions. Off by default: permission is historically
	// enforced only at the persistence boundary.
	EnforceRelayPermissions bool
}

// Load reads configuration from the environment.
func Load() *Config {
	// .env is optional
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	jwtSecret := getRequiredEnv("JWT_SECRET")
	if jwtSecret == "change-this-secret-in-production" {
		log.Fatal("🚨 CRITICAL: JWT_SECRET must be changed from default value in production!")
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:   getInt("WS_READ_BUFFER_SIZE", 16*1024),
			WriteBufferSize:  getInt("WS_WRITE_BUFFER_SIZE", 16*1024),
			HandshakeTimeout: getDuration("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
			WriteTimeout:     getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
			AllowGuests:       getBool("ALLOW_GUESTS", true),
		},
		S3: S3Config{
			Region:          getEnv("AWS_REGION", "ap-northeast-2"),
			BucketName:      getEnv("AWS_S3_BUCKET", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			CacheTTL: getDuration("CANVAS_CACHE_TTL", 24*time.Hour),
		},
		Sync: SyncConfig{
			SaveDebounce:            getDuration("SYNC_SAVE_DEBOUNCE", time.Second),
			FullSyncDebounce:        getDuration("SYNC_FULL_SYNC_DEBOUNCE", 1500*time.Millisecond),
			CursorInterval:          getDuration("SYNC_CURSOR_INTERVAL", 80*time.Millisecond),
			HistoryLimit:            getInt("SYNC_HISTORY_LIMIT", 50),
			EnforceRelayPermissions: getBool("SYNC_ENFORCE_RELAY_PERMISSIONS", false),
		},
	}
}

// getRequiredEnv fetches a mandatory variable or exits.
func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("🚨 CRITICAL: Required environment variable %s is not set!", key)
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// bare numbers are seconds
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
