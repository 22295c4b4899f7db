package config

import "path/filepath"

// Defaults returns a config with sane defaults. Secrets default to env
// expansion placeholders so a freshly generated file works once the
// variables are exported.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Server: ServerConfig{
			Port:             8080,
			EventsPath:       "/slack/events",
			InteractionsPath: "/slack/interactions",
		},
		Slack: SlackConfig{
			BotToken:        "${SLACK_BOT_TOKEN}",
			SigningSecret:   "${SLACK_SIGNING_SECRET}",
			TriggerReaction: "+1",
			FailureReaction: "x",
		},
		Gemini: GeminiConfig{
			APIKey: "${GEMINI_API_KEY}",
			Model:  "gemini-2.5-flash",
		},
		Store: StoreConfig{
			DBPath:                  filepath.Join(DefaultConfigDir(), "briefbot.db"),
			Ledger:                  "sqlite",
			MemoryRetentionMinutes:  10,
			DurableRetentionMinutes: 30,
		},
		Dispatch: DispatchConfig{
			TimeoutSeconds: 55,
		},
	}
}
