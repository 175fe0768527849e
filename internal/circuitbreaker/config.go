package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// Settings is the env-tunable subset of Config
type Settings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// GetBackendConfig returns settings for strategy backend breakers (CB_BACKEND_*)
func GetBackendConfig() Settings {
	return fromEnv("CB_BACKEND", Settings{
		MaxRequests:      2,
		Interval:         30 * time.Second,
		Timeout:          20 * time.Second,
		FailureThreshold: 4,
		SuccessThreshold: 1,
	})
}

// GetRedisConfig returns settings for the performance snapshot store (CB_REDIS_*)
func GetRedisConfig() Settings {
	return fromEnv("CB_REDIS", Settings{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	})
}

// GetDatabaseConfig returns settings for the persistence client (CB_DB_*)
func GetDatabaseConfig() Settings {
	return fromEnv("CB_DB", Settings{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	})
}

// GetHTTPConfig returns settings for outbound HTTP collaborators (CB_HTTP_*)
func GetHTTPConfig() Settings {
	return fromEnv("CB_HTTP", Settings{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	})
}

// ToConfig converts Settings to a breaker Config
func (s Settings) ToConfig() Config {
	return Config{
		MaxRequests:      s.MaxRequests,
		Interval:         s.Interval,
		Timeout:          s.Timeout,
		FailureThreshold: s.FailureThreshold,
		SuccessThreshold: s.SuccessThreshold,
	}
}

func fromEnv(prefix string, def Settings) Settings {
	return Settings{
		MaxRequests:      getEnvUint32(prefix+"_MAX_REQUESTS", def.MaxRequests),
		Interval:         getEnvDuration(prefix+"_INTERVAL", def.Interval),
		Timeout:          getEnvDuration(prefix+"_TIMEOUT", def.Timeout),
		FailureThreshold: getEnvUint32(prefix+"_FAILURE_THRESHOLD", def.FailureThreshold),
		SuccessThreshold: getEnvUint32(prefix+"_SUCCESS_THRESHOLD", def.SuccessThreshold),
	}
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
