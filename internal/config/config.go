package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	lang "github.com/noricha-vr/twitter-video-translator/internal/language"
	"github.com/noricha-vr/twitter-video-translator/internal/mix"
)

// Config holds all application configuration.
//
// Values are layered: defaults, then an optional TOML file, then
// environment variables (a .env file in the working directory is loaded
// first), then options set from CLI flags.
//
// Environment Variables:
// API keys:
// - GROQ_API_KEY: transcription (Whisper on Groq)
// - GEMINI_API_KEY: speech synthesis and style analysis
// - LLM_API_KEY: translation endpoint key (default: GEMINI_API_KEY)
//
// Paths:
// - OUTPUT_DIR (default: output), TEMP_DIR (default: temp), LOG_DIR (default: logs), DATA_DIR (default: data)
//
// Pipeline:
// - TARGET_LANGUAGE (default: ja), WHISPER_MODEL, TRANSCRIBE_LANGUAGE, MAX_UPLOAD_MB
// - LLM_API_URL, LLM_MODEL, TRANSLATE_BATCH_SIZE
// - TTS_MODEL, TTS_VOICE, TTS_SAMPLE_RATE, TTS_WORKERS, TTS_TIMEOUT, TTS_RETRY_ATTEMPTS, TTS_RETRY_BASE_MS, SKIP_TTS, ANALYZE_STYLE
// - ORIGINAL_VOLUME (default: 0.15), TRANSLATED_VOLUME (default: 1.8), MIX_COMPRESSOR, LOUDNESS_TARGET
// - VIDEO_CODEC, AUDIO_CODEC, VIDEO_CRF, BURN_SUBTITLES, SUBTITLE_FONT
//
// Batch and service:
// - JOB_WORKERS, SWEEP_CRON, SWEEP_AFTER_HOURS, KEEP_WORKSPACE
// - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_QUEUE, REDIS_SEEN_SET
// - LOG_LEVEL (default: info), LOG_TO_FILE
type Config struct {
	API        APIConfig        `toml:"api"`
	Paths      PathsConfig      `toml:"paths"`
	Transcribe TranscribeConfig `toml:"transcribe"`
	Translate  TranslateConfig  `toml:"translate"`
	Synth      SynthConfig      `toml:"synth"`
	Mix        MixConfig        `toml:"mix"`
	Video      VideoConfig      `toml:"video"`
	Jobs       JobsConfig       `toml:"jobs"`
	Redis      RedisConfig      `toml:"redis"`
	Log        LogConfig        `toml:"log"`

	// Source is the config file that was read, empty when none was found.
	Source string `toml:"-"`
}

type APIConfig struct {
	GroqAPIKey   string `toml:"groq_api_key"`
	GeminiAPIKey string `toml:"gemini_api_key"`
}

type PathsConfig struct {
	OutputDir string `toml:"output_dir"`
	TempDir   string `toml:"temp_dir"`
	LogDir    string `toml:"log_dir"`
	DataDir   string `toml:"data_dir"`
}

type TranscribeConfig struct {
	APIURL         string `toml:"api_url"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	MaxUploadMB    int    `toml:"max_upload_mb"`
	ChunkSeconds   int    `toml:"chunk_seconds"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type TranslateConfig struct {
	APIURL         string  `toml:"api_url"`
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	BatchSize      int     `toml:"batch_size"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	TargetLanguage string  `toml:"target_language"`
}

type SynthConfig struct {
	APIURL           string `toml:"api_url"`
	Model            string `toml:"model"`
	Voice            string `toml:"voice"`
	SampleRate       int    `toml:"sample_rate"`
	Workers          int    `toml:"workers"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	RetryAttempts    int    `toml:"retry_attempts"`
	RetryBaseDelayMS int    `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS  int    `toml:"retry_max_delay_ms"`
	Skip             bool   `toml:"skip"`
	AnalyzeStyle     bool   `toml:"analyze_style"`
	StyleModel       string `toml:"style_model"`
}

type MixConfig struct {
	OriginalVolume   float64 `toml:"original_volume"`
	TranslatedVolume float64 `toml:"translated_volume"`
	Compressor       bool    `toml:"compressor"`
	// LoudnessTarget is the RMS target in dBFS; 0 disables normalization.
	LoudnessTarget float64 `toml:"loudness_target"`
}

type VideoConfig struct {
	Codec            string `toml:"codec"`
	AudioCodec       string `toml:"audio_codec"`
	CRF              int    `toml:"crf"`
	AudioBitrate     string `toml:"audio_bitrate"`
	BurnSubtitles    bool   `toml:"burn_subtitles"`
	SubtitleFont     string `toml:"subtitle_font"`
	SubtitleFontSize int    `toml:"subtitle_font_size"`
}

type JobsConfig struct {
	Workers         int    `toml:"workers"`
	SweepCron       string `toml:"sweep_cron"`
	SweepAfterHours int    `toml:"sweep_after_hours"`
	KeepWorkspace   bool   `toml:"keep_workspace"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Queue    string `toml:"queue"`
	SeenSet  string `toml:"seen_set"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	ToFile bool   `toml:"to_file"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			OutputDir: "output",
			TempDir:   "temp",
			LogDir:    "logs",
			DataDir:   "data",
		},
		Transcribe: TranscribeConfig{
			APIURL:         "https://api.groq.com/openai/v1",
			Model:          "whisper-large-v3-turbo",
			MaxUploadMB:    25,
			ChunkSeconds:   600,
			TimeoutSeconds: 300,
		},
		Translate: TranslateConfig{
			APIURL:         "https://generativelanguage.googleapis.com/v1beta/openai",
			Model:          "gemini-2.5-flash",
			Temperature:    0.3,
			MaxTokens:      8000,
			BatchSize:      10,
			TimeoutSeconds: 120,
			TargetLanguage: "ja",
		},
		Synth: SynthConfig{
			APIURL:           "https://generativelanguage.googleapis.com/v1beta",
			Model:            "gemini-2.5-flash-preview-tts",
			Voice:            "Aoede",
			SampleRate:       24000,
			Workers:          4,
			TimeoutSeconds:   60,
			RetryAttempts:    3,
			RetryBaseDelayMS: 1000,
			RetryMaxDelayMS:  16000,
			StyleModel:       "gemini-2.5-flash",
		},
		Mix: MixConfig{
			OriginalVolume:   mix.DefaultOriginalVolume,
			TranslatedVolume: mix.DefaultTranslatedVolume,
		},
		Video: VideoConfig{
			Codec:            "libx264",
			AudioCodec:       "aac",
			CRF:              23,
			AudioBitrate:     "192k",
			BurnSubtitles:    true,
			SubtitleFont:     "Noto Sans CJK JP",
			SubtitleFontSize: 24,
		},
		Jobs: JobsConfig{
			Workers:         1,
			SweepCron:       "0 * * * *",
			SweepAfterHours: 24,
		},
		Redis: RedisConfig{
			Queue:   "video-translator:urls",
			SeenSet: "video-translator:seen",
		},
		Log: LogConfig{Level: "info"},
	}
}

// New loads configuration. path may be empty, in which case VT_CONFIG and
// then ./video-translator.toml are tried.
func New(path string, opts ...Option) (*Config, error) {
	// a missing .env is normal
	_ = godotenv.Load()

	cfg := Default()

	resolved, exists, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := cfg.decodeFile(resolved); err != nil {
			return nil, err
		}
		cfg.Source = resolved
	}

	cfg.applyEnv()

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolvePath(path string) (string, bool, error) {
	if path == "" {
		path = os.Getenv("VT_CONFIG")
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, errs.Newf(errs.Config, "config file %s does not exist", path)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return path, true, nil
	}
	if info, err := os.Stat("video-translator.toml"); err == nil && !info.IsDir() {
		return "video-translator.toml", true, nil
	}
	return "", false, nil
}

func (c *Config) decodeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(c); err != nil {
		return errs.Wrap(err, errs.Config, "parse config file").With("path", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.API.GroqAPIKey = getEnvString("GROQ_API_KEY", c.API.GroqAPIKey)
	c.API.GeminiAPIKey = getEnvString("GEMINI_API_KEY", c.API.GeminiAPIKey)

	c.Paths.OutputDir = getEnvString("OUTPUT_DIR", c.Paths.OutputDir)
	c.Paths.TempDir = getEnvString("TEMP_DIR", c.Paths.TempDir)
	c.Paths.LogDir = getEnvString("LOG_DIR", c.Paths.LogDir)
	c.Paths.DataDir = getEnvString("DATA_DIR", c.Paths.DataDir)

	c.Transcribe.Model = getEnvString("WHISPER_MODEL", c.Transcribe.Model)
	c.Transcribe.Language = getEnvString("TRANSCRIBE_LANGUAGE", c.Transcribe.Language)
	c.Transcribe.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", c.Transcribe.MaxUploadMB)

	c.Translate.APIURL = getEnvString("LLM_API_URL", c.Translate.APIURL)
	c.Translate.APIKey = getEnvString("LLM_API_KEY", c.Translate.APIKey)
	c.Translate.Model = getEnvString("LLM_MODEL", c.Translate.Model)
	c.Translate.BatchSize = getEnvInt("TRANSLATE_BATCH_SIZE", c.Translate.BatchSize)
	c.Translate.TargetLanguage = getEnvString("TARGET_LANGUAGE", c.Translate.TargetLanguage)

	c.Synth.Model = getEnvString("TTS_MODEL", c.Synth.Model)
	c.Synth.Voice = getEnvString("TTS_VOICE", c.Synth.Voice)
	c.Synth.SampleRate = getEnvInt("TTS_SAMPLE_RATE", c.Synth.SampleRate)
	c.Synth.Workers = getEnvInt("TTS_WORKERS", c.Synth.Workers)
	c.Synth.TimeoutSeconds = getEnvInt("TTS_TIMEOUT", c.Synth.TimeoutSeconds)
	c.Synth.RetryAttempts = getEnvInt("TTS_RETRY_ATTEMPTS", c.Synth.RetryAttempts)
	c.Synth.RetryBaseDelayMS = getEnvInt("TTS_RETRY_BASE_MS", c.Synth.RetryBaseDelayMS)
	c.Synth.Skip = getEnvBool("SKIP_TTS", c.Synth.Skip)
	c.Synth.AnalyzeStyle = getEnvBool("ANALYZE_STYLE", c.Synth.AnalyzeStyle)

	c.Mix.OriginalVolume = getEnvFloat("ORIGINAL_VOLUME", c.Mix.OriginalVolume)
	c.Mix.TranslatedVolume = getEnvFloat("TRANSLATED_VOLUME", c.Mix.TranslatedVolume)
	c.Mix.Compressor = getEnvBool("MIX_COMPRESSOR", c.Mix.Compressor)
	c.Mix.LoudnessTarget = getEnvFloat("LOUDNESS_TARGET", c.Mix.LoudnessTarget)

	c.Video.Codec = getEnvString("VIDEO_CODEC", c.Video.Codec)
	c.Video.AudioCodec = getEnvString("AUDIO_CODEC", c.Video.AudioCodec)
	c.Video.CRF = getEnvInt("VIDEO_CRF", c.Video.CRF)
	c.Video.BurnSubtitles = getEnvBool("BURN_SUBTITLES", c.Video.BurnSubtitles)
	c.Video.SubtitleFont = getEnvString("SUBTITLE_FONT", c.Video.SubtitleFont)

	c.Jobs.Workers = getEnvInt("JOB_WORKERS", c.Jobs.Workers)
	c.Jobs.SweepCron = getEnvString("SWEEP_CRON", c.Jobs.SweepCron)
	c.Jobs.SweepAfterHours = getEnvInt("SWEEP_AFTER_HOURS", c.Jobs.SweepAfterHours)
	c.Jobs.KeepWorkspace = getEnvBool("KEEP_WORKSPACE", c.Jobs.KeepWorkspace)

	c.Redis.Addr = getEnvString("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvString("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.Queue = getEnvString("REDIS_QUEUE", c.Redis.Queue)
	c.Redis.SeenSet = getEnvString("REDIS_SEEN_SET", c.Redis.SeenSet)

	c.Log.Level = getEnvString("LOG_LEVEL", c.Log.Level)
	c.Log.ToFile = getEnvBool("LOG_TO_FILE", c.Log.ToFile)
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.Translate.APIKey) == "" {
		c.Translate.APIKey = c.API.GeminiAPIKey
	}
	for _, p := range []*string{&c.Paths.OutputDir, &c.Paths.TempDir, &c.Paths.LogDir, &c.Paths.DataDir} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// Validate checks ranges. API keys are checked per command by RequireKeys.
func (c *Config) Validate() error {
	levels := mix.Levels{Original: c.Mix.OriginalVolume, Translated: c.Mix.TranslatedVolume}
	if err := levels.Validate(); err != nil {
		return err
	}
	if _, err := c.TargetLanguage(); err != nil {
		return err
	}
	if c.Synth.SampleRate <= 0 {
		return errs.Newf(errs.Config, "synth sample rate must be positive, got %d", c.Synth.SampleRate)
	}
	if c.Synth.Workers < 1 {
		return errs.Newf(errs.Config, "synth workers must be at least 1, got %d", c.Synth.Workers)
	}
	if c.Synth.RetryAttempts < 1 {
		return errs.Newf(errs.Config, "synth retry attempts must be at least 1, got %d", c.Synth.RetryAttempts)
	}
	if c.Translate.BatchSize < 1 {
		return errs.Newf(errs.Config, "translate batch size must be at least 1, got %d", c.Translate.BatchSize)
	}
	if c.Transcribe.MaxUploadMB < 1 {
		return errs.Newf(errs.Config, "max upload must be at least 1 MB, got %d", c.Transcribe.MaxUploadMB)
	}
	if c.Jobs.Workers < 1 {
		return errs.Newf(errs.Config, "job workers must be at least 1, got %d", c.Jobs.Workers)
	}
	if _, err := cron.ParseStandard(c.Jobs.SweepCron); err != nil {
		return errs.Wrap(err, errs.Config, "invalid sweep cron expression")
	}
	return nil
}

// RequireKeys checks the API keys a translation job needs. Jobs that reuse
// an existing transcript skip the Groq key.
func (c *Config) RequireKeys(transcription, synthesis bool) error {
	if transcription && c.API.GroqAPIKey == "" {
		return errs.New(errs.Config, "GROQ_API_KEY is required for transcription")
	}
	if c.Translate.APIKey == "" {
		return errs.New(errs.Config, "LLM_API_KEY or GEMINI_API_KEY is required for translation")
	}
	if synthesis && c.API.GeminiAPIKey == "" {
		return errs.New(errs.Config, "GEMINI_API_KEY is required for speech synthesis")
	}
	return nil
}

// TargetLanguage resolves the configured target by name, code or tag.
func (c *Config) TargetLanguage() (lang.Language, error) {
	l, err := lang.Lookup(c.Translate.TargetLanguage)
	if err != nil {
		return lang.Language{}, errs.Wrap(err, errs.Config, "invalid target language").
			With("value", c.Translate.TargetLanguage)
	}
	return l, nil
}

func (c *Config) DBPath() string {
	return filepath.Join(c.Paths.DataDir, "history.db")
}

// EnsureDirectories creates the output, temp and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.TempDir, c.Paths.LogDir, c.Paths.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ExpandPath resolves ~ and makes the path absolute.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
