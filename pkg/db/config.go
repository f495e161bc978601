package db

import (
	"time"

	"github.com/smallbiznis/cabletrack/internal/config"
)

type Config struct {
	Type             string
	Host             string
	Port             string
	Name             string
	User             string
	Password         string
	SSLMode          string
	Path             string
	MaxIdleConn      int
	MaxOpenConn      int
	ConnMaxLifetime  int
	ConnMaxIdleTime  int
	StatementTimeout time.Duration
	LogQueries       bool
}

func NewConfig(cfg config.Config) Config {
	return Config{
		Type:             cfg.DBType,
		Host:             cfg.DBHost,
		Port:             cfg.DBPort,
		Name:             cfg.DBName,
		User:             cfg.DBUser,
		Password:         cfg.DBPassword,
		SSLMode:          cfg.DBSSLMode,
		Path:             cfg.DBPath,
		MaxIdleConn:      cfg.DBMaxIdleConn,
		MaxOpenConn:      cfg.DBMaxOpenConn,
		ConnMaxLifetime:  cfg.DBConnMaxLifetime,
		ConnMaxIdleTime:  cfg.DBConnMaxIdleTime,
		StatementTimeout: cfg.DBStatementTimeout,
		LogQueries:       cfg.Telemetry.LogLevel == "debug",
	}
}
