// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// 認証情報の保存方式
const (
	CredentialsPlaintext = "plaintext"
	CredentialsBcrypt    = "bcrypt"
)

// /secrets の公開範囲
const (
	VisibilityMembers = "members"
	VisibilityPublic  = "public"
)

// ユーザーストアの種別
const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// DefaultBcryptCost は BCRYPT_COST 未設定時の bcrypt コストです。
const DefaultBcryptCost = 10

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // HTTPサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// セッション設定
	SessionSecret string // セッションクッキー署名用の秘密鍵

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// 認証設定
	Credentials       string // パスワードの保存方式 (plaintext, bcrypt)
	BcryptCost        int    // bcrypt のコスト
	SecretsVisibility string // /secrets の公開範囲 (members, public)

	// ユーザーストア設定
	StoreDriver   string // memory, mongo, sqlite, postgres
	MongoURI      string // MongoDB 接続URI
	MongoDatabase string // MongoDB データベース名
	DatabaseDSN   string // sqlite のファイルパス、または postgres の DSN

	// ログイン試行回数制限
	RedisURL string // 指定時は Redis で試行回数を共有する

	// 外部IdP設定
	PublicBaseURL      string // OAuth コールバックURLの組み立てに使うベースURL
	GoogleClientID     string
	GoogleClientSecret string
	FacebookAppID      string
	FacebookAppSecret  string
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "3000"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// セッション設定
		SessionSecret: getEnv("SESSION_SECRET", ""),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		// 認証設定
		Credentials:       strings.ToLower(getEnv("AUTH_CREDENTIALS", CredentialsBcrypt)),
		BcryptCost:        getEnvAsInt("BCRYPT_COST", DefaultBcryptCost),
		SecretsVisibility: strings.ToLower(getEnv("SECRETS_VISIBILITY", VisibilityMembers)),

		// ユーザーストア設定
		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "userDB"),
		DatabaseDSN:   getEnv("DATABASE_DSN", "secrets.db"),

		RedisURL: getEnv("REDIS_URL", ""),

		// 外部IdP設定
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		FacebookAppID:      getEnv("FACEBOOK_APP_ID", ""),
		FacebookAppSecret:  getEnv("FACEBOOK_APP_SECRET", ""),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// BcryptCost は BCRYPT_COST を読み込みます。検証は行いません。
func BcryptCost() int {
	loadEnvFile()
	return getEnvAsInt("BCRYPT_COST", DefaultBcryptCost)
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.Credentials {
	case CredentialsPlaintext, CredentialsBcrypt:
	default:
		return fmt.Errorf("AUTH_CREDENTIALS must be %q or %q, got %q", CredentialsPlaintext, CredentialsBcrypt, c.Credentials)
	}

	switch c.SecretsVisibility {
	case VisibilityMembers, VisibilityPublic:
	default:
		return fmt.Errorf("SECRETS_VISIBILITY must be %q or %q, got %q", VisibilityMembers, VisibilityPublic, c.SecretsVisibility)
	}

	switch c.StoreDriver {
	case StoreMemory, StoreMongo, StoreSQLite, StorePostgres:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}

	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}
	if (c.FacebookAppID == "") != (c.FacebookAppSecret == "") {
		return fmt.Errorf("FACEBOOK_APP_ID and FACEBOOK_APP_SECRET must be set together")
	}

	// 本番環境では厳格にチェックする
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.Credentials == CredentialsPlaintext {
			return fmt.Errorf("AUTH_CREDENTIALS=plaintext is not allowed in release mode")
		}
		if c.StoreDriver == StoreMemory {
			return fmt.Errorf("STORE_DRIVER=memory is not allowed in release mode")
		}
	}

	return nil
}

// GoogleEnabled は Google ログインが設定されているかを返します。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// FacebookEnabled は Facebook ログインが設定されているかを返します。
func (c *Config) FacebookEnabled() bool {
	return c.FacebookAppID != "" && c.FacebookAppSecret != ""
}

// AllowedOrigins はカンマ区切りの CORS_ALLOWED_ORIGINS を配列にして返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
