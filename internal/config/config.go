package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// defaultKeywords は関連度フィルタの既定の語彙。
// タイトルまたはサマリーに大文字小文字を無視した部分一致で照合される。
var defaultKeywords = []string{
	"health", "medical", "pharma", "biotech", "life science", "hospital",
	"digital health", "ai", "data", "medtech", "research", "policy",
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 各コンポーネントには参照渡しされ、環境変数を直接読むコンポーネントは存在しない。
type Config struct {
	// Database
	DatabaseURL string

	// Feed
	FeedURL      string
	SiteName     string
	Keywords     []string
	MaxArticles  int
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Digest
	WindowDays int
	OutDir     string

	// Summarizer
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIBaseURL    string
	OpenAIMaxTokens  int
	SummarizeTimeout time.Duration

	// SMTP
	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	EmailFrom string

	// Subscribers
	UnsubscribeSecret  string
	AdminToken         string
	DefaultSubscribers []string

	// Timezone
	// レポートタイムゾーンの固定UTCオフセット（時間）。日付境界の判定に使用する。
	TZOffsetHours int

	// Server
	ServerPort string
	BaseURL    string

	// Rate Limit（req/min）
	RateLimitGeneral   int
	RateLimitSubscribe int

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.UnsubscribeSecret = os.Getenv("UNSUBSCRIBE_SECRET")
	if cfg.UnsubscribeSecret == "" {
		missing = append(missing, "UNSUBSCRIBE_SECRET")
	}

	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	if cfg.AdminToken == "" {
		missing = append(missing, "ADMIN_TOKEN")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.FeedURL = getEnvString("RSS_URL", "https://www.fiercehealthcare.com/rss/xml")
	cfg.SiteName = getEnvString("SITE_NAME", "Healthcare & Life Sciences")
	cfg.Keywords = getEnvList("KEYWORDS", defaultKeywords)
	cfg.MaxArticles = getEnvInt("MAX_ARTICLES", 10)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.WindowDays = getEnvInt("WINDOW_DAYS", 7)
	cfg.OutDir = getEnvString("OUT_DIR", "./out")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4.1-mini")
	cfg.OpenAIBaseURL = getEnvString("OPENAI_BASE_URL", "https://api.openai.com/v1")
	cfg.OpenAIMaxTokens = getEnvInt("OPENAI_MAX_TOKENS", 4000)
	cfg.SummarizeTimeout = getEnvDuration("SUMMARIZE_TIMEOUT", 120*time.Second)
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPass = os.Getenv("SMTP_PASS")
	cfg.EmailFrom = getEnvString("EMAIL_FROM", cfg.SMTPUser)
	cfg.DefaultSubscribers = getEnvList("DEFAULT_SUBSCRIBERS", nil)
	cfg.TZOffsetHours = getEnvInt("TZ_OFFSET_HOURS", -6)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSubscribe = getEnvInt("RATE_LIMIT_SUBSCRIBE", 10)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// Location はレポートタイムゾーンのtime.Locationを返す。
// 夏時間のない固定オフセットとして扱う（既定はUTC-6）。
func (c *Config) Location() *time.Location {
	name := fmt.Sprintf("UTC%+d", c.TZOffsetHours)
	return time.FixedZone(name, c.TZOffsetHours*3600)
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
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

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
