package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config hearttrack-data（遥测接入 + 聚合 API）配置
type Config struct {
	HTTP struct {
		Addr string
	}

	DBEnabled bool
	Database  DatabaseConfig

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// 遥测接入
	Telemetry struct {
		// APIKey 为空时 HTTP 遥测通道不做鉴权
		APIKey string
	}

	// 保留策略：读数超过 RetentionDays 天后不可达并被清理；0 表示关闭保留清理
	Retention struct {
		Days         int
		SweepMinutes int
	}

	MQTT MQTTConfig

	Log struct {
		Level  string
		Format string
	}
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN 数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// MQTTConfig MQTT 遥测通道配置（默认禁用）
type MQTTConfig struct {
	Enabled  bool
	Broker   string // 如 "tcp://localhost:1883"
	ClientID string
	Username string
	Password string
	Topic    string // 设备固件发布遥测的主题
	QoS      byte
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// Default to true for local dev: if DB is unavailable, hearttrack-data falls
	// back to in-memory repos so the API still answers.
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "hearttrack")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.Telemetry.APIKey = getEnv("TELEMETRY_API_KEY", "")

	// 8 天对齐设备端"只看最近一周"的使用方式；留一天余量
	cfg.Retention.Days = parseInt(getEnv("RETENTION_DAYS", "8"), 8)
	cfg.Retention.SweepMinutes = parseInt(getEnv("RETENTION_SWEEP_MINUTES", "60"), 60)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "hearttrack-data")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "hearttrack/telemetry")
	cfg.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
