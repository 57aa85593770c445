package config

import "path/filepath"

const DefaultSystemPrompt = `你是一个友好、专业的旅行助手。你可以查询天气、交通、路线、附近设施和景点信息，帮助用户规划行程、准备行李、识别旅行照片并撰写社交媒体文案。
当对话中出现工具返回的结果时，请基于这些结果用自然、简洁的中文回答；如果工具返回了错误，请向用户说明情况并给出建议。`

func Defaults() *Config {
	dir := DefaultConfigDir()
	return &Config{
		General: GeneralConfig{
			LogLevel:      "info",
			LogFormat:     "text",
			DisplayName:   "旅行助手",
			SystemPrompt:  DefaultSystemPrompt,
			DefaultUserID: "default_user",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Temperature:    0.7,
			MaxTokens:      1024,
			TimeoutSeconds: 120,
			MaxRetries:     2,
		},
		AMap: AMapConfig{
			TimeoutSeconds: 10,
			MaxRetries:     2,
		},
		Baidu: BaiduConfig{
			TimeoutSeconds: 15,
		},
		Profiles: ProfilesConfig{
			Backend: "memory",
			DBPath:  filepath.Join(dir, "tripbot.db"),
		},
		History: HistoryConfig{
			Archive: false,
			DBPath:  filepath.Join(dir, "tripbot.db"),
		},
		Channels: ChannelsConfig{
			CLI: CLIConfig{Enabled: true},
			WebSocket: WebSocketConfig{
				Enabled: false,
				Host:    "127.0.0.1",
				Port:    12393,
				Path:    "/client-ws",
			},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9464,
			Path:    "/metrics",
		},
		Agent: AgentConfig{
			MaxConcurrent:      8,
			TurnTimeoutSeconds: 180,
		},
	}
}
