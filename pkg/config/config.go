package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"skill-routing-engine/pkg/constants"
)

type Config struct {
	RedisURL            string
	PodID               string
	Port                string
	LogLevel            string
	CataloguePath       string
	HolidayTimeoutMS    int64
	ToolTimeoutMS       int64
	ClassifierURL       string
	ClassifierTimeoutMS int64
	ConnectorBaseURL    string
	DatabaseURL         string
	KafkaBrokers        []string
	KafkaOutcomesTopic  string
	OutcomeSinks        []string
	ConversationTTL     int
	LockTTLMS           int64
	LeaderElectionTTL   int
	CleanupIntervalSecs int
	ConsumerGroupName   string
	ActivityConsumer    bool
}

func Load() *Config {
	config := &Config{
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379"),
		PodID:               getEnv("POD_ID", generatePodID()),
		Port:                getEnv("PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		CataloguePath:       getEnv("CATALOGUE_PATH", "catalogue.yaml"),
		HolidayTimeoutMS:    getEnvInt64("HOLIDAY_TIMEOUT_MS", constants.DefaultHolidayTimeoutMS),
		ToolTimeoutMS:       getEnvInt64("TOOL_TIMEOUT_MS", constants.DefaultToolTimeoutMS),
		ClassifierURL:       getEnv("CLASSIFIER_URL", ""),
		ClassifierTimeoutMS: getEnvInt64("CLASSIFIER_TIMEOUT_MS", constants.DefaultClassifierTimeoutMS),
		ConnectorBaseURL:    getEnv("CONNECTOR_BASE_URL", ""),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		KafkaBrokers:        getEnvList("KAFKA_BROKERS", nil),
		KafkaOutcomesTopic:  getEnv("KAFKA_OUTCOMES_TOPIC", "routing-outcomes"),
		OutcomeSinks:        getEnvList("OUTCOME_SINKS", []string{"redis"}),
		ConversationTTL:     getEnvInt("CONVERSATION_TTL_SECONDS", constants.DefaultConversationTTLSeconds),
		LockTTLMS:           getEnvInt64("LOCK_TTL_MS", constants.DefaultLockTTLMS),
		LeaderElectionTTL:   getEnvInt("LEADER_ELECTION_TTL", constants.DefaultLeaderElectionTTLSeconds),
		CleanupIntervalSecs: getEnvInt("CLEANUP_INTERVAL_SECONDS", constants.DefaultCleanupIntervalSeconds),
		ConsumerGroupName:   getEnv("CONSUMER_GROUP_NAME", "activity-aggregators"),
		ActivityConsumer:    getEnvBool("ACTIVITY_CONSUMER", true),
	}

	return config
}

func (c *Config) HolidayTimeout() time.Duration {
	return constants.MillisecondsToDuration(c.HolidayTimeoutMS)
}

func (c *Config) ToolTimeout() time.Duration {
	return constants.MillisecondsToDuration(c.ToolTimeoutMS)
}

func (c *Config) ClassifierTimeout() time.Duration {
	return constants.MillisecondsToDuration(c.ClassifierTimeoutMS)
}

func (c *Config) ConversationTTLDuration() time.Duration {
	return constants.SecondsToDuration(c.ConversationTTL)
}

func (c *Config) LockTTL() time.Duration {
	return constants.MillisecondsToDuration(c.LockTTLMS)
}

func (c *Config) LeaderElectionTTLDuration() time.Duration {
	return constants.SecondsToDuration(c.LeaderElectionTTL)
}

func (c *Config) CleanupInterval() time.Duration {
	return constants.SecondsToDuration(c.CleanupIntervalSecs)
}

// SinkEnabled reports whether the named outcome sink is configured
func (c *Config) SinkEnabled(name string) bool {
	for _, s := range c.OutcomeSinks {
		if s == name {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func generatePodID() string {
	hostname, err := os.Hostname()
	if err != nil {
		return uuid.New().String()
	}
	return hostname + "-" + uuid.New().String()[:8]
}
