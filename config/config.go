package config

import (
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Dosada05/pong-server/models"
	"github.com/Dosada05/pong-server/utils"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	ServerPort     int
	LogLevel       slog.Level
	JWTSecretKey   string
	AllowedOrigins []string

	TickRate       int
	TargetScore    int
	ServeSpeed     float64
	ReadyTimeout   time.Duration
	TournamentSize int

	StatsServiceURL    string
	StatsTimeout       time.Duration
	PublishMaxAttempts int

	DatabaseURL        string
	RedeliveryInterval time.Duration

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// ArchiveEnabled reports whether every R2 setting is present.
func (c *Config) ArchiveEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

// TickInterval is the period of one simulation step.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(utils.GetEnvOrDefault("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL environment variable: %w", err)
	}

	tickRate, err := intEnv("GAME_TICK_RATE", models.DefaultTickRate)
	if err != nil {
		return nil, err
	}
	if tickRate < 1 || tickRate > 240 {
		return nil, fmt.Errorf("GAME_TICK_RATE must be between 1 and 240, got %d", tickRate)
	}

	targetScore, err := intEnv("GAME_TARGET_SCORE", models.DefaultTargetScore)
	if err != nil {
		return nil, err
	}
	if targetScore < 1 {
		return nil, fmt.Errorf("GAME_TARGET_SCORE must be positive, got %d", targetScore)
	}

	serveSpeed, err := floatEnv("GAME_SERVE_SPEED", models.DefaultServeSpeed)
	if err != nil {
		return nil, err
	}
	if serveSpeed <= 0 {
		return nil, fmt.Errorf("GAME_SERVE_SPEED must be positive, got %v", serveSpeed)
	}

	readyTimeout, err := durationEnv("READY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	tournamentSize, err := intEnv("TOURNAMENT_SIZE", models.DefaultTournamentSize)
	if err != nil {
		return nil, err
	}
	if tournamentSize < 2 || bits.OnesCount(uint(tournamentSize)) != 1 {
		return nil, fmt.Errorf("TOURNAMENT_SIZE must be a power of two >= 2, got %d", tournamentSize)
	}

	statsTimeout, err := durationEnv("STATS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	maxAttempts, err := intEnv("PUBLISH_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("PUBLISH_MAX_ATTEMPTS must be at least 1, got %d", maxAttempts)
	}

	redelivery, err := durationEnv("REDELIVERY_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:     port,
		LogLevel:       level,
		JWTSecretKey:   os.Getenv("JWT_SECRET_KEY"),
		AllowedOrigins: splitList(utils.GetEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),

		TickRate:       tickRate,
		TargetScore:    targetScore,
		ServeSpeed:     serveSpeed,
		ReadyTimeout:   readyTimeout,
		TournamentSize: tournamentSize,

		StatsServiceURL:    strings.TrimRight(os.Getenv("STATS_SERVICE_URL"), "/"),
		StatsTimeout:       statsTimeout,
		PublishMaxAttempts: maxAttempts,

		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedeliveryInterval: redelivery,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func floatEnv(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, v)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
