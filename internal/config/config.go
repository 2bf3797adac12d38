// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	// distrolessイメージにはタイムゾーンDBがないため埋め込む
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// カーソルストアの種類
const (
	CursorStorePostgres = "postgres"
	CursorStoreSQLite   = "sqlite"
	CursorStoreDynamoDB = "dynamodb"
	CursorStoreMemory   = "memory"
)

// 詳細取得に使うGitHub API
const (
	DetailAPIREST    = "rest"
	DetailAPIGraphQL = "graphql"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// env タグは検証エラーのメッセージに使う環境変数名。
type Config struct {
	// GitHub
	GitHubToken      string `env:"GITHUB_TOKEN" validate:"required"`
	GitHubAPIURL     string `env:"GITHUB_API_URL" validate:"required,url"`
	GitHubGraphQLURL string `env:"GITHUB_GRAPHQL_URL" validate:"required,url"`
	GitHubDetailAPI  string `env:"GITHUB_DETAIL_API" validate:"oneof=rest graphql"`

	// Notifications
	IncludeRead         bool          `env:"NOTIFY_INCLUDE_READ"`
	MaxPages            int           `env:"NOTIFY_MAX_PAGES" validate:"min=0"`
	DefaultPollInterval time.Duration `env:"DEFAULT_POLL_INTERVAL" validate:"gt=0"`

	// Gate
	Timezone        string         `env:"TIMEZONE" validate:"required"`
	Location        *time.Location `env:"-" validate:"-"`
	GatePolicy      string         `env:"GATE_POLICY" validate:"oneof=interval quiet-hours"`
	QuietHoursStart int            `env:"QUIET_HOURS_START" validate:"min=0,max=23"`
	QuietHoursEnd   int            `env:"QUIET_HOURS_END" validate:"min=1,max=24,gtfield=QuietHoursStart"`

	// Slack
	SlackWebhookURL     string        `env:"SLACK_WEBHOOK_URL" validate:"required,url"`
	DispatchInterval    time.Duration `env:"DISPATCH_INTERVAL" validate:"min=0"`
	WebhookAllowPrivate bool          `env:"WEBHOOK_ALLOW_PRIVATE"`

	// Timeouts
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT" validate:"gt=0"`
	CycleTimeout time.Duration `env:"CYCLE_TIMEOUT" validate:"gt=0"`

	// Schedule
	Schedule string `env:"SCHEDULE" validate:"required"`

	// Cursor store
	CursorStore        string `env:"CURSOR_STORE" validate:"oneof=postgres sqlite dynamodb memory"`
	DatabaseURL        string `env:"DATABASE_URL"`
	DynamoDBTable      string `env:"DYNAMODB_TABLE" validate:"required_if=CursorStore dynamodb"`
	AWSRegion          string `env:"AWS_REGION" validate:"required_if=CursorStore dynamodb"`
	AWSEndpointURL     string `env:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`

	// Server
	ServerPort string `env:"SERVER_PORT" validate:"required,numeric"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// エラーメッセージにフィールド名ではなく環境変数名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := f.Tag.Get("env")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既に設定済みの環境変数は上書きしない）。
// 必須環境変数が未設定の場合、または値の形式が不正な場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	if cfg.GitHubToken == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}

	cfg.SlackWebhookURL = os.Getenv("SLACK_WEBHOOK_URL")
	if cfg.SlackWebhookURL == "" {
		missing = append(missing, "SLACK_WEBHOOK_URL")
	}

	cfg.CursorStore = getEnvString("CURSOR_STORE", CursorStorePostgres)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.usesSQL() {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.GitHubAPIURL = getEnvString("GITHUB_API_URL", "https://api.github.com")
	cfg.GitHubGraphQLURL = getEnvString("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql")
	cfg.GitHubDetailAPI = getEnvString("GITHUB_DETAIL_API", DetailAPIREST)
	cfg.IncludeRead = getEnvBool("NOTIFY_INCLUDE_READ", false)
	cfg.MaxPages = getEnvInt("NOTIFY_MAX_PAGES", 10)
	cfg.DefaultPollInterval = getEnvDuration("DEFAULT_POLL_INTERVAL", 60*time.Second)
	cfg.Timezone = getEnvString("TIMEZONE", "Asia/Tokyo")
	cfg.GatePolicy = getEnvString("GATE_POLICY", "interval")
	cfg.QuietHoursStart = getEnvInt("QUIET_HOURS_START", 1)
	cfg.QuietHoursEnd = getEnvInt("QUIET_HOURS_END", 8)
	cfg.DispatchInterval = getEnvDuration("DISPATCH_INTERVAL", 1*time.Second)
	cfg.WebhookAllowPrivate = getEnvBool("WEBHOOK_ALLOW_PRIVATE", false)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 10*time.Second)
	cfg.CycleTimeout = getEnvDuration("CYCLE_TIMEOUT", 4*time.Minute)
	cfg.Schedule = getEnvString("SCHEDULE", "*/5 * * * *")
	cfg.DynamoDBTable = getEnvString("DYNAMODB_TABLE", "ghnotify_cursors")
	cfg.AWSRegion = os.Getenv("AWS_REGION")
	cfg.AWSEndpointURL = os.Getenv("AWS_ENDPOINT_URL")
	cfg.AWSAccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.AWSSecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if err := validateStruct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: TIMEZONE: %w", err)
	}
	cfg.Location = loc

	return cfg, nil
}

// usesSQL はカーソルストアがDATABASE_URLを必要とするかを返す。
func (c *Config) usesSQL() bool {
	return c.CursorStore == CursorStorePostgres || c.CursorStore == CursorStoreSQLite
}

// validateStruct はvalidateタグで検証し、環境変数名を含むエラーにまとめる。
func validateStruct(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			if fe.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s=%s'", fe.Field(), fe.Tag(), fe.Param()))
				continue
			}
			msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Field(), fe.Tag()))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
