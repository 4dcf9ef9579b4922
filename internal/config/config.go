// Package config предоставялет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitConnection        `yaml:"rabbit_connection"`
	HTTPServer              `yaml:"http_server"`
	Session                 `yaml:"session"`
	Admin                   `yaml:"admin"`
	PaymentProvider         `yaml:"payment_provider"`
	RateLimit               `yaml:"rate_limit"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:"localhost:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RabbitConnection структура для настройки подключения к RabbitMQ
type RabbitConnection struct {
	AddressRabbit string        `yaml:"addressrabbit"`
	RetriesRabbit int           `yaml:"retries_rabbit" env-default:"5"`
	DelayRabbit   time.Duration `yaml:"delay_rabbit" env-default:"3s"`
}

// Session структура для работы с сессионным jwt-токеном
type Session struct {
	SessionSecretKey string        `yaml:"session_secret_key" env:"SESSION_SECRET_KEY"`
	SessionTTL       time.Duration `yaml:"session_ttl" env-default:"24h"`
	BcryptCost       int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
}

// Admin структура с секретом для административных конечных точек
type Admin struct {
	AdminToken string `yaml:"admin_token" env:"ADMIN_TOKEN"`
}

// PaymentProvider структура для настройки клиента платёжного провайдера
type PaymentProvider struct {
	ProviderAPIURL    string `yaml:"provider_api_url" env-default:"https://api.payments.example.com/v1"`
	ProviderAccountID string `yaml:"provider_account_id" env:"PROVIDER_ACCOUNT_ID"`
	ProviderSecretKey string `yaml:"provider_secret_key" env:"PROVIDER_SECRET_KEY"`
	WebhookSecret     string `yaml:"webhook_secret" env:"PROVIDER_WEBHOOK_SECRET"`
	DefaultSuccessURL string `yaml:"default_success_url" env-default:"https://app.example.com/billing/success"`
	DefaultCancelURL  string `yaml:"default_cancel_url" env-default:"https://app.example.com/billing/cancel"`
}

// RateLimit структура с настройками окна допуска и лимитами по маршрутам
type RateLimit struct {
	WindowMS      int `yaml:"window_ms" env-default:"60000"`
	SignupLimit   int `yaml:"signup_limit" env-default:"5"`
	CheckoutLimit int `yaml:"checkout_limit" env-default:"5"`
	VerifyLimit   int `yaml:"verify_limit" env-default:"30"`
	AdminLimit    int `yaml:"admin_limit" env-default:"10"`
}

// MustLoad функция для загрузки конфига, возвращает конфиг, сгенерированный из config/config.go
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
