package config

import (
	"time"
)

type ModerationConfig struct {
	APIKey         string        `yaml:"api_key"`
	APIURL         string        `yaml:"api_url"`
	Model          string        `yaml:"model"`
	Timeout        time.Duration `yaml:"timeout"`
	QueueName      string        `yaml:"queue_name"`
	Attempts       int           `yaml:"attempts"`
	BackoffDelay   time.Duration `yaml:"backoff_delay"`
	Concurrency    int           `yaml:"concurrency"`
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
}

func loadModerationConfig() *ModerationConfig {
	return &ModerationConfig{
		APIKey:         getEnv("OPENAI_API_KEY", ""),
		APIURL:         getEnv("MODERATION_API_URL", "https://api.openai.com/v1/moderations"),
		Model:          getEnv("MODERATION_MODEL", "omni-moderation-latest"),
		Timeout:        getEnvAsDuration("MODERATION_TIMEOUT", 5*time.Second),
		QueueName:      getEnv("MODERATION_QUEUE", "message-moderation"),
		Attempts:       getEnvAsInt("MODERATION_ATTEMPTS", 3),
		BackoffDelay:   getEnvAsDuration("MODERATION_BACKOFF_DELAY", 2*time.Second),
		Concurrency:    getEnvAsInt("MODERATION_CONCURRENCY", 4),
		EnqueueTimeout: getEnvAsDuration("MODERATION_ENQUEUE_TIMEOUT", 2*time.Second),
	}
}
