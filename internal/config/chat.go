package config

type ChatConfig struct {
	MaxContentLength int  `yaml:"max_content_length"`
	HistoryLimit     int  `yaml:"history_limit"`
	RequireAuth      bool `yaml:"require_auth"`
}

func loadChatConfig() *ChatConfig {
	return &ChatConfig{
		MaxContentLength: getEnvAsInt("CHAT_MAX_CONTENT_LENGTH", 500),
		HistoryLimit:     getEnvAsInt("CHAT_HISTORY_LIMIT", 50),
		RequireAuth:      getEnvAsBool("CHAT_REQUIRE_AUTH", false),
	}
}
