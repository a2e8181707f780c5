package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Vault:     "~/oden-vault",
			LogLevel:  "info",
			LogFormat: "text",
			Timezone:  "Europe/Stockholm",
		},
		Signal: SignalConfig{
			Host:                "127.0.0.1",
			Port:                7583,
			StartupMessage:      "self",
			RPCTimeoutSeconds:   10,
			ReconnectMaxSeconds: 60,
		},
		Processing: ProcessingConfig{
			AppendWindowMinutes: 30,
			AppendMarker:        "++",
			IgnoreMarker:        "--",
			CommandPrefix:       "#",
			FilenameFormat:      "classic",
			IgnoredGroups:       []string{},
			WhitelistGroups:     []string{},
			RegexPatterns:       defaultRegexPatterns(),
		},
		Store: StoreConfig{
			DBPath: "~/.oden/oden.db",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Listen:   "127.0.0.1:9464",
			Endpoint: "/metrics",
		},
	}
}

func defaultRegexPatterns() []RegexPattern {
	return []RegexPattern{
		{Name: "registration_number", Pattern: `[A-Za-z]{3}[0-9]{2}[A-Za-z0-9]`},
		{Name: "phone_number", Pattern: `(\+46|0)[1-9][0-9]{7,8}`},
		{Name: "personal_number", Pattern: `[0-9]{6}-?[0-9]{4}`},
	}
}
