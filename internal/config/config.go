package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	StorageS3    = "s3"
	StorageLocal = "local"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Storage  StorageConfig  `mapstructure:"Storage"`
	Sweep    SweepConfig    `mapstructure:"Sweep"`
}

type ServerConfig struct {
	Port           string `mapstructure:"Port"`
	GRPCPort       string `mapstructure:"GRPCPort"`
	MaxUploadBytes int64  `mapstructure:"MaxUploadBytes"`
}

type DatabaseConfig struct {
	Driver         string `mapstructure:"Driver"`
	Host           string `mapstructure:"Host"`
	Port           string `mapstructure:"Port"`
	User           string `mapstructure:"User"`
	Password       string `mapstructure:"Password"`
	Name           string `mapstructure:"Name"`
	SSLMode        string `mapstructure:"SSLMode"`
	MigrationsPath string `mapstructure:"MigrationsPath"`
}

type StorageConfig struct {
	Driver   string `mapstructure:"Driver"`
	LocalDir string `mapstructure:"LocalDir"`
}

type SweepConfig struct {
	Interval    time.Duration `mapstructure:"Interval"`
	GracePeriod time.Duration `mapstructure:"GracePeriod"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	// Устанавливаем файл конфигурации
	v.SetConfigFile(path)

	// Привязываем переменные окружения
	v.BindEnv("Server.Port", "HTTP_PORT")
	v.BindEnv("Server.GRPCPort", "GRPC_PORT")
	v.BindEnv("Server.MaxUploadBytes", "MAX_UPLOAD_BYTES")
	v.BindEnv("Database.Driver", "DATABASE_DRIVER")
	v.BindEnv("Database.Host", "DATABASE_HOST")
	v.BindEnv("Database.Port", "DATABASE_PORT")
	v.BindEnv("Database.User", "DATABASE_USER")
	v.BindEnv("Database.Password", "DATABASE_PASSWORD")
	v.BindEnv("Database.Name", "DATABASE_NAME")
	v.BindEnv("Database.SSLMode", "DATABASE_SSLMODE")
	v.BindEnv("Database.MigrationsPath", "DATABASE_MIGRATIONS")
	v.BindEnv("Storage.Driver", "STORAGE_DRIVER")
	v.BindEnv("Storage.LocalDir", "STORAGE_LOCAL_DIR")
	v.BindEnv("Sweep.Interval", "SWEEP_INTERVAL")
	v.BindEnv("Sweep.GracePeriod", "SWEEP_GRACE_PERIOD")

	// Установка значений по умолчанию
	v.SetDefault("Server.Port", "8000")
	v.SetDefault("Server.GRPCPort", "50051")
	v.SetDefault("Server.MaxUploadBytes", 100<<20)
	v.SetDefault("Database.Driver", DriverPostgres)
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Database.MigrationsPath", "migrations")
	v.SetDefault("Storage.Driver", StorageLocal)
	v.SetDefault("Storage.LocalDir", "uploads")
	v.SetDefault("Sweep.Interval", time.Hour)
	v.SetDefault("Sweep.GracePeriod", time.Hour)

	// Читаем конфигурацию из файла
	if err := v.ReadInConfig(); err != nil {
		log.Printf("Warning: using only environment variables: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		// Проверяем, что все необходимые поля заполнены
		if c.Database.Host == "" ||
			c.Database.Port == "" ||
			c.Database.User == "" ||
			c.Database.Password == "" ||
			c.Database.Name == "" {
			return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
				c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
		}
	default:
		return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
	}

	switch c.Storage.Driver {
	case StorageS3:
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage local dir is required")
		}
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}

	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.dsn(c.Name)
}

// GetMaintenanceDSN возвращает DSN системной базы postgres
func (c *DatabaseConfig) GetMaintenanceDSN() string {
	return c.dsn("postgres")
}

func (c *DatabaseConfig) GetMigrateURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

func (c *DatabaseConfig) dsn(dbName string) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		dbName,
		c.SSLMode,
	)
}
