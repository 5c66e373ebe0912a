package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/noricha-vr/twitter-video-translator/internal/config"
	"github.com/noricha-vr/twitter-video-translator/internal/persistence"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logFile *log.FileLogger
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevelFlag: logLevelFlag}
}

// ensureConfig loads the configuration once. Options come from the flags
// of the command being run, so only its first call passes them.
func (c *commandContext) ensureConfig(opts ...config.Option) (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if c.logLevelFlag != nil {
			opts = append(opts, config.WithLogLevel(*c.logLevelFlag))
		}
		cfg, err := config.New(path, opts...)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configErr = c.setupLogging(cfg)
	})
	return c.config, c.configErr
}

// setupLogging sends console logs to stderr, keeping stdout for tables.
// With log.to_file, every run also writes a DEBUG log under the log dir.
func (c *commandContext) setupLogging(cfg *config.Config) error {
	level := log.ParseLevel(cfg.Log.Level)
	if !cfg.Log.ToFile {
		log.SetLogger(log.NewLoggerTo(os.Stderr, level))
		return nil
	}

	name := fmt.Sprintf("video_translator_%s.log", time.Now().Format("20060102_150405"))
	fileLogger, err := log.NewFileLogger(filepath.Join(cfg.Paths.LogDir, name), log.LevelDebug)
	if err != nil {
		return err
	}
	fileLogger.Tee(os.Stderr, level)
	log.SetLogger(fileLogger.Logger)
	c.logFile = fileLogger
	log.Debug("Logging to %s", fileLogger.Path())
	return nil
}

func (c *commandContext) openStore() (*persistence.SQLiteStore, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return persistence.NewSQLiteStore(cfg.DBPath())
}

func (c *commandContext) close() {
	if c.logFile != nil {
		_ = c.logFile.Close()
		c.logFile = nil
	}
}
