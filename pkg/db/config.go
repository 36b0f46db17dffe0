package db

import (
	"strings"
	"time"

	"github.com/smallbiznis/rigmarket/internal/config"
)

type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ConfigFrom maps application config onto pool settings and rejects
// database types the repositories do not support.
func ConfigFrom(cfg config.Config) (Config, error) {
	dbType := strings.ToLower(strings.TrimSpace(cfg.DBType))
	if err := validateType(dbType); err != nil {
		return Config{}, err
	}
	return Config{
		Type:            dbType,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Second,
	}, nil
}
