package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// HS256 の鍵は 256bit 以上
const minJWTSecretLen = 32

// Configはアプリ全体の設定
type Config struct {
	Port  string // サーバーポート（8080）
	GoEnv string // dev/prod

	DatabaseURL      string // あれば最優先
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）
	PostgresSSLMode  string
	DBMaxOpenConns   int

	JWTSecret       string        // JWT署名シークレット
	JWTIssuer       string        // iss クレーム
	AccessTokenTTL  time.Duration // アクセストークン有効期限
	RefreshTokenTTL time.Duration // リフレッシュトークン有効期限

	LockoutThreshold int           // 連続失敗の上限
	LockoutCooldown  time.Duration // ロック時間
	BcryptCost       int

	TokenSweepInterval time.Duration // 期限切れトークン掃除の間隔

	RedisAddr       string // 空ならログイン回数制限なし
	RedisPassword   string
	RedisDB         int
	LoginRateLimit  int           // IPごとの上限
	LoginRateWindow time.Duration // 集計窓

	CookieSecure bool // refresh cookie の Secure 属性

	SentryDSN string
}

// Loadは環境変数
func Load() (Config, error) {
	var err error
	cfg := Config{
		Port:  getenv("PORT", "8080"),
		GoEnv: getenv("GO_ENV", "dev"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTIssuer: getenv("JWT_ISSUER", "authservice"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		SentryDSN: os.Getenv("SENTRY_DSN"),
	}

	if cfg.PostgresPort, err = intEnv("POSTGRES_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxOpenConns, err = intEnv("DB_MAX_OPEN_CONNS", 20); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = durationEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.LockoutThreshold, err = intEnv("LOCKOUT_THRESHOLD", 5); err != nil {
		return Config{}, err
	}
	if cfg.LockoutCooldown, err = durationEnv("LOCKOUT_COOLDOWN", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = intEnv("BCRYPT_COST", 12); err != nil {
		return Config{}, err
	}
	if cfg.TokenSweepInterval, err = durationEnv("TOKEN_SWEEP_INTERVAL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.LoginRateLimit, err = intEnv("LOGIN_RATE_LIMIT", 20); err != nil {
		return Config{}, err
	}
	if cfg.LoginRateWindow, err = durationEnv("LOGIN_RATE_WINDOW", time.Minute); err != nil {
		return Config{}, err
	}

	if cfg.CookieSecure, err = boolEnv("COOKIE_SECURE", true); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

//必須チェック
func (c Config) validate() error {
	if c.DatabaseURL == "" {
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
		if c.PostgresPassword == "" {
			return fmt.Errorf("POSTGRES_PASSWORD is required")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL must be longer than ACCESS_TOKEN_TTL")
	}
	if c.LockoutThreshold <= 0 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be positive")
	}
	if c.LockoutCooldown <= 0 {
		return fmt.Errorf("LOCKOUT_COOLDOWN must be positive")
	}
	if c.TokenSweepInterval <= 0 {
		return fmt.Errorf("TOKEN_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// postgres の接続文字列
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func (c Config) IsProduction() bool {
	return c.GoEnv == "prod" || c.GoEnv == "production"
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be bool: %w", key, err)
	}
	return b, nil
}
