package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                     string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	NATSURL                  string
	AvgConsultMinutes        int
	StoreTimeout             time.Duration
	RateLimitPerMinute       int
	RateLimitBurst           int
	DoctorRateLimitPerMinute int
	DoctorRateLimitBurst     int
}

func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                     port,
		DatabaseURL:              os.Getenv("DB_DSN"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		NATSURL:                  os.Getenv("NATS_URL"),
		AvgConsultMinutes:        readInt("AVG_CONSULTATION_MINUTES", 15),
		StoreTimeout:             readDurationSeconds("STORE_TIMEOUT_SECONDS", 2),
		RateLimitPerMinute:       readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("RATE_LIMIT_BURST", 30),
		DoctorRateLimitPerMinute: readInt("DOCTOR_RATE_LIMIT_PER_MIN", 600),
		DoctorRateLimitBurst:     readInt("DOCTOR_RATE_LIMIT_BURST", 120),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
