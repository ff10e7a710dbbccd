package config

type AlertsConfig struct {
	AWSRegion string `yaml:"aws_region"`
	TopicARN  string `yaml:"topic_arn"`
}

func loadAlertsConfig() *AlertsConfig {
	return &AlertsConfig{
		AWSRegion: getEnv("AWS_REGION", "us-east-1"),
		TopicARN:  getEnv("MODERATION_ALERT_TOPIC_ARN", ""),
	}
}
