package config

import (
	"fmt"
	"strings"
	"time"

	"eegility/internal/service/s3"

	"github.com/spf13/viper"
)

type Config struct {
	Env      string         `mapstructure:"Env"`
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Auth     AuthConfig     `mapstructure:"Auth"`
	Redis    RedisConfig    `mapstructure:"Redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"RabbitMQ"`
	S3       s3.Config      `mapstructure:"S3"`
	Sharing  SharingConfig  `mapstructure:"Sharing"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"Port"`
	AllowedOrigins  []string      `mapstructure:"AllowedOrigins"`
	ShutdownTimeout time.Duration `mapstructure:"ShutdownTimeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
	MaxConns int    `mapstructure:"MaxConns"`
}

const (
	AuthModeJWT  = "jwt"
	AuthModeGRPC = "grpc"
)

type AuthConfig struct {
	Mode      string `mapstructure:"Mode"`
	JWTSecret string `mapstructure:"JWTSecret"`
	JWTIssuer string `mapstructure:"JWTIssuer"`
	GRPCAddr  string `mapstructure:"GRPCAddr"`
}

// RedisConfig включает кэш записей; пустой адрес отключает кэш.
type RedisConfig struct {
	Addr     string        `mapstructure:"Addr"`
	Password string        `mapstructure:"Password"`
	DB       int           `mapstructure:"DB"`
	TTL      time.Duration `mapstructure:"TTL"`
}

// RabbitMQConfig описывает брокер событий; пустой URI отключает публикацию.
type RabbitMQConfig struct {
	URI      string `mapstructure:"URI"`
	Exchange string `mapstructure:"Exchange"`
}

type SharingConfig struct {
	SweepInterval  time.Duration `mapstructure:"SweepInterval"`
	DownloadURLTTL time.Duration `mapstructure:"DownloadURLTTL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Env", "production")
	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.AllowedOrigins", []string{"*"})
	v.SetDefault("Server.ShutdownTimeout", 10*time.Second)
	v.SetDefault("Database.Host", "")
	v.SetDefault("Database.Port", "5432")
	v.SetDefault("Database.User", "")
	v.SetDefault("Database.Password", "")
	v.SetDefault("Database.Name", "")
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Database.MaxConns", 25)
	v.SetDefault("Auth.Mode", AuthModeJWT)
	v.SetDefault("Auth.JWTSecret", "")
	v.SetDefault("Auth.JWTIssuer", "")
	v.SetDefault("Auth.GRPCAddr", "")
	v.SetDefault("Redis.Addr", "")
	v.SetDefault("Redis.Password", "")
	v.SetDefault("Redis.DB", 0)
	v.SetDefault("Redis.TTL", 5*time.Minute)
	v.SetDefault("RabbitMQ.URI", "")
	v.SetDefault("RabbitMQ.Exchange", "eegility.events")
	v.SetDefault("S3.AccessKeyID", "")
	v.SetDefault("S3.SecretAccessKey", "")
	v.SetDefault("S3.Bucket", "")
	v.SetDefault("S3.Endpoint", "https://storage.yandexcloud.net")
	v.SetDefault("S3.Region", "ru-central1")
	v.SetDefault("Sharing.SweepInterval", 15*time.Minute)
	v.SetDefault("Sharing.DownloadURLTTL", 15*time.Minute)
}

// NewConfig читает YAML-файл и переменные окружения. Любой ключ можно
// переопределить переменной EEG_<SECTION>_<KEY>, например EEG_DATABASE_HOST.
// Отсутствие файла не ошибка: конфигурация может целиком прийти из окружения.
func NewConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EEG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Старые имена переменных, которые уже прописаны в деплое
	v.BindEnv("Database.Host", "EEG_DATABASE_HOST", "DATABASE_HOST")
	v.BindEnv("Database.Port", "EEG_DATABASE_PORT", "DATABASE_PORT")
	v.BindEnv("Database.User", "EEG_DATABASE_USER", "DATABASE_USER")
	v.BindEnv("Database.Password", "EEG_DATABASE_PASSWORD", "DATABASE_PASSWORD")
	v.BindEnv("Database.Name", "EEG_DATABASE_NAME", "DATABASE_NAME")
	v.BindEnv("Database.SSLMode", "EEG_DATABASE_SSLMODE", "DATABASE_SSLMODE")
	v.BindEnv("Server.Port", "EEG_SERVER_PORT", "HTTP_PORT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			fmt.Printf("Warning: using only environment variables: %v\n", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Host == "" ||
		c.Database.Port == "" ||
		c.Database.User == "" ||
		c.Database.Password == "" ||
		c.Database.Name == "" {
		return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
	}

	switch c.Auth.Mode {
	case AuthModeJWT:
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("Auth.JWTSecret is required in jwt mode")
		}
	case AuthModeGRPC:
		if c.Auth.GRPCAddr == "" {
			return fmt.Errorf("Auth.GRPCAddr is required in grpc mode")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}

	if c.Sharing.SweepInterval <= 0 {
		return fmt.Errorf("Sharing.SweepInterval must be positive")
	}
	if c.Sharing.DownloadURLTTL <= 0 {
		return fmt.Errorf("Sharing.DownloadURLTTL must be positive")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// GetURL returns the same connection in URL form for golang-migrate.
func (c *DatabaseConfig) GetURL() string {
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
