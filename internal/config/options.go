package config

// Options applied from CLI flags after the file and environment layers.

func WithOriginalVolume(v float64) Option {
	return func(c *Config) { c.Mix.OriginalVolume = v }
}

func WithTranslatedVolume(v float64) Option {
	return func(c *Config) { c.Mix.TranslatedVolume = v }
}

func WithSkipSynthesis(skip bool) Option {
	return func(c *Config) { c.Synth.Skip = skip }
}

func WithTargetLanguage(lang string) Option {
	return func(c *Config) {
		if lang != "" {
			c.Translate.TargetLanguage = lang
		}
	}
}

func WithVoice(voice string) Option {
	return func(c *Config) {
		if voice != "" {
			c.Synth.Voice = voice
		}
	}
}

func WithAnalyzeStyle(on bool) Option {
	return func(c *Config) { c.Synth.AnalyzeStyle = on }
}

func WithBurnSubtitles(on bool) Option {
	return func(c *Config) { c.Video.BurnSubtitles = on }
}

func WithKeepWorkspace(on bool) Option {
	return func(c *Config) { c.Jobs.KeepWorkspace = on }
}

func WithOutputDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.Paths.OutputDir = dir
		}
	}
}

func WithLogLevel(level string) Option {
	return func(c *Config) {
		if level != "" {
			c.Log.Level = level
		}
	}
}
