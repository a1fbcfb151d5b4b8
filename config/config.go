package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is read-only once loaded.
type Config struct {
	Database   DatabaseConfig      `yaml:"database"`
	Redis      RedisConfig         `yaml:"redis"`
	Web        WebConfig           `yaml:"web"`
	Messaging  MessagingConfig     `yaml:"messaging"`
	Layout     LayoutConfig        `yaml:"layout"`
	Orders     OrdersConfig        `yaml:"orders"`
	Charging   ChargingConfig      `yaml:"charging"`
	Production map[string][]string `yaml:"production"`
	Stock      StockConfig         `yaml:"stock"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // "mqtt" or "kafka"
	MQTT                MQTTConfig    `yaml:"mqtt"`
	Kafka               KafkaConfig   `yaml:"kafka"`
	PublishTimeout      time.Duration `yaml:"publish_timeout"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
	Topic   string   `yaml:"topic"` // bus topic; the logical topic travels as the message key
}

type LayoutConfig struct {
	Path string `yaml:"path"`
}

type OrdersConfig struct {
	MaxActive         int           `yaml:"max_active"`
	RetriggerInterval time.Duration `yaml:"retrigger_interval"`
}

type ChargingConfig struct {
	Enabled          bool    `yaml:"enabled"`
	ThresholdPercent float64 `yaml:"threshold_percent"`
}

type StockConfig struct {
	Locations []string `yaml:"locations"`
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "ffcentral.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "ffcentral",
				User:     "ffcentral",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8085,
			SessionSecret: "change-me-in-production",
		},
		Messaging: MessagingConfig{
			Backend: "mqtt",
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "ffcentral",
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "ffcentral",
				Topic:   "ffcentral.bus",
			},
			PublishTimeout:      5 * time.Second,
			OutboxDrainInterval: 5 * time.Second,
		},
		Layout: LayoutConfig{Path: "layout.yaml"},
		Orders: OrdersConfig{
			MaxActive:         3,
			RetriggerInterval: 5 * time.Second,
		},
		Charging: ChargingConfig{
			Enabled:          true,
			ThresholdPercent: 15,
		},
		Production: map[string][]string{
			"BLUE":  {"DRILL", "MILL", "AIQS"},
			"WHITE": {"DRILL", "AIQS"},
			"RED":   {"MILL", "AIQS"},
		},
		Stock: StockConfig{
			Locations: []string{"A1", "A2", "A3", "B1", "B2", "B3", "C1", "C2", "C3"},
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Orders.MaxActive <= 0 {
		cfg.Orders.MaxActive = 3
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
