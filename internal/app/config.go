package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete storefront configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for admin API key hashing" flag:"api-key-pepper"`
	SecureCookie bool   `default:"false" usage:"Mark the cart session cookie Secure" flag:"secure-cookie"`
	Merchant     MerchantConfig
	Razorpay     RazorpayConfig
	GCS          GCSConfig
	Cart         CartConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// MerchantConfig is how the store presents itself at checkout.
type MerchantConfig struct {
	Name           string `default:"Stelin Global Kitchenware" usage:"Merchant name shown in the payment widget"`
	ThemeColor     string `default:"#C8902E" usage:"Payment widget theme colour"`
	Currency       string `default:"INR" usage:"Checkout currency"`
	WhatsAppNumber string `default:"919793541467" usage:"Number receiving manual orders"`
}

// RazorpayConfig holds gateway credentials. Without them the gateway path is
// unavailable and only manual checkout works.
type RazorpayConfig struct {
	KeyID     string        `usage:"Razorpay key id (or RAZORPAY_KEY_ID)"`
	KeySecret string        `usage:"Razorpay key secret (or RAZORPAY_KEY_SECRET)"`
	BaseURL   string        `default:"https://api.razorpay.com/v1" usage:"Orders API base URL"`
	Timeout   time.Duration `default:"15s" usage:"Orders API request timeout"`
}

// GCSConfig selects the product image bucket. Uploads are disabled when
// Bucket is empty.
type GCSConfig struct {
	Bucket          string `usage:"Product image bucket"`
	CredentialsFile string `usage:"Service account JSON; application default credentials when empty"`
	PublicBaseURL   string `usage:"Base URL for image links (defaults to storage.googleapis.com)"`
	CacheControl    string `default:"public, max-age=31536000" usage:"Cache-Control set on uploaded images"`
}

// CartConfig controls in-memory cart eviction and stored cart retention.
type CartConfig struct {
	SweepInterval time.Duration `default:"5m" usage:"How often idle carts are evicted from memory"`
	MaxIdle       time.Duration `default:"30m" usage:"Idle time before a cart is evicted from memory"`
	PurgeInterval time.Duration `default:"1h" usage:"How often stale stored carts are deleted"`
	Retention     string        `default:"30 days" usage:"Postgres interval after which untouched stored carts are deleted"`
}

// RateLimitConfig controls the per-client token bucket limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML files,
// then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/stelin/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if cfg.APIKeyPepper == "" {
		return nil, errors.New("API key pepper is required: set STORE_API_KEY_PEPPER")
	}
	return &cfg, nil
}

// applyPlatformDefaults fills settings from the unprefixed variables hosting
// platforms and the payment provider's docs use.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	fallback := func(dst *string, name string) {
		if *dst == "" {
			*dst = getenv(name)
		}
	}
	fallback(&c.DatabaseURL, "DATABASE_URL")
	fallback(&c.Razorpay.KeyID, "RAZORPAY_KEY_ID")
	fallback(&c.Razorpay.KeySecret, "RAZORPAY_KEY_SECRET")

	if port := getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
