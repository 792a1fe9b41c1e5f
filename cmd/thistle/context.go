package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/thistle/config"
)

type commandContext struct {
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     ectologger.Logger
	zap        *zap.Logger
	loggerErr  error
}

func newCommandContext(logLevelFlag *string) *commandContext {
	return &commandContext{logLevelFlag: logLevelFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.LogLevel = strings.TrimSpace(*c.logLevelFlag)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureLogger builds the zap-backed logger once per process.
func (c *commandContext) ensureLogger() (ectologger.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}

		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			c.loggerErr = fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
			return
		}

		zcfg := zap.NewProductionConfig()
		if cfg.PrettyLogs {
			zcfg = zap.NewDevelopmentConfig()
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)

		zl, err := zcfg.Build(zap.Fields(zap.String("service", cfg.AppName), zap.String("version", version)))
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.zap = zl
		c.logger = zapadapter.NewZapEctoLogger(zl, nil)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) syncLogger() {
	if c.zap != nil {
		_ = c.zap.Sync()
	}
}
