package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	WhatsApp  WhatsAppConfig
	Meli      MeliConfig
	Retrieval RetrievalConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
}

type OpenAIConfig struct {
	APIKey       string
	Model        string
	SummaryModel string
	Timeout      time.Duration
}

type WhatsAppConfig struct {
	VerifyToken   string
	APIKey        string
	PhoneNumberID string
	APIURL        string
}

type MeliConfig struct {
	APIHost     string
	SiteID      string
	AccessToken string
	UserAgent   string
}

type RetrievalConfig struct {
	// Tiers is the ordered cascade policy, e.g. "live" or "live,api"
	Tiers             []string
	SyntheticFallback bool
	NavTimeout        time.Duration
	SettleDelay       time.Duration
	APITimeout        time.Duration
	CacheTTL          time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	PerMinute int
}

func Load() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("OPENAI_MODEL", "gpt-4o")
	viper.SetDefault("OPENAI_SUMMARY_MODEL", "gpt-4o-mini")
	viper.SetDefault("OPENAI_TIMEOUT_SECONDS", 20)
	viper.SetDefault("WHATSAPP_VERIFY_TOKEN", "default-verify-token")
	viper.SetDefault("MELI_SITE_ID", "MCO")
	viper.SetDefault("RETRIEVAL_TIERS", "live")
	viper.SetDefault("SYNTHETIC_FALLBACK", true)
	viper.SetDefault("NAV_TIMEOUT_SECONDS", 30)
	viper.SetDefault("SETTLE_DELAY_MS", 2000)
	viper.SetDefault("API_TIMEOUT_SECONDS", 30)
	viper.SetDefault("CACHE_TTL_SECONDS", 300)
	viper.SetDefault("REDIS_ENABLED", false)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 20)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			AllowedOrigins: splitCSV(viper.GetString("ALLOWED_ORIGINS")),
		},
		OpenAI: OpenAIConfig{
			APIKey:       viper.GetString("OPENAI_API_KEY"),
			Model:        viper.GetString("OPENAI_MODEL"),
			SummaryModel: viper.GetString("OPENAI_SUMMARY_MODEL"),
			Timeout:      time.Duration(viper.GetInt("OPENAI_TIMEOUT_SECONDS")) * time.Second,
		},
		WhatsApp: WhatsAppConfig{
			VerifyToken:   viper.GetString("WHATSAPP_VERIFY_TOKEN"),
			APIKey:        viper.GetString("WHATSAPP_API_KEY"),
			PhoneNumberID: viper.GetString("WHATSAPP_PHONE_NUMBER_ID"),
			APIURL:        viper.GetString("WHATSAPP_API_URL"),
		},
		Meli: MeliConfig{
			APIHost:     viper.GetString("MELI_API_HOST"),
			SiteID:      viper.GetString("MELI_SITE_ID"),
			AccessToken: viper.GetString("MELI_ACCESS_TOKEN"),
			UserAgent:   viper.GetString("MELI_USER_AGENT"),
		},
		Retrieval: RetrievalConfig{
			Tiers:             splitCSV(viper.GetString("RETRIEVAL_TIERS")),
			SyntheticFallback: viper.GetBool("SYNTHETIC_FALLBACK"),
			NavTimeout:        time.Duration(viper.GetInt("NAV_TIMEOUT_SECONDS")) * time.Second,
			SettleDelay:       time.Duration(viper.GetInt("SETTLE_DELAY_MS")) * time.Millisecond,
			APITimeout:        time.Duration(viper.GetInt("API_TIMEOUT_SECONDS")) * time.Second,
			CacheTTL:          time.Duration(viper.GetInt("CACHE_TTL_SECONDS")) * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("REDIS_ENABLED"),
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: viper.GetInt("RATE_LIMIT_PER_MINUTE"),
		},
	}
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
