/**
 * @description
 * This package handles the configuration management for the planner API. It uses the
 * Viper library to read configuration from environment variables (and an optional
 * .env file), so the HTTP server, the Lambda handler and the operator scripts all
 * agree on the same settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the planner API.
type Config struct {
	NodeEnv  string `mapstructure:"NODE_ENV"`
	DemoMode bool   `mapstructure:"DEMO_MODE"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	ServerPort string `mapstructure:"SERVER_PORT"`
	AWSRegion  string `mapstructure:"AWS_REGION"`
	TableName  string `mapstructure:"TABLE_NAME"`
	BucketName string `mapstructure:"BUCKET_NAME"`

	CognitoUserPoolID string `mapstructure:"COGNITO_USER_POOL_ID"`
	CognitoClientID   string `mapstructure:"COGNITO_CLIENT_ID"`

	AllowedOriginsRaw      string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedEmailDomainsRaw string `mapstructure:"ALLOWED_EMAIL_DOMAINS"`
	SESFromAddress         string `mapstructure:"SES_FROM_ADDRESS"`

	PlaidClientID string `mapstructure:"PLAID_CLIENT_ID"`
	PlaidSecret   string `mapstructure:"PLAID_SECRET"`
	PlaidEnv      string `mapstructure:"PLAID_ENV"`

	CookieSecure     bool   `mapstructure:"COOKIE_SECURE"`
	CookieSameSite   string `mapstructure:"COOKIE_SAMESITE"`
	CookieMaxAgeDays int    `mapstructure:"COOKIE_MAX_AGE_DAYS"`

	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	SignInRateLimitPerMinute int    `mapstructure:"SIGNIN_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	BalanceRefreshSchedule   string `mapstructure:"BALANCE_REFRESH_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("DEMO_MODE", false)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("SERVER_PORT", "3001")
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	viper.SetDefault("PLAID_ENV", "sandbox")
	viper.SetDefault("COOKIE_SAMESITE", "lax")
	viper.SetDefault("COOKIE_MAX_AGE_DAYS", 7)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "planner:rate_limit")
	viper.SetDefault("SIGNIN_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("BALANCE_REFRESH_SCHEDULE", "0 */6 * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("NODE_ENV")
	_ = viper.BindEnv("DEMO_MODE")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("AWS_REGION", "AWS_REGION", "REGION")
	_ = viper.BindEnv("TABLE_NAME", "TABLE_NAME", "DYNAMODB_TABLE")
	_ = viper.BindEnv("BUCKET_NAME")
	_ = viper.BindEnv("COGNITO_USER_POOL_ID")
	_ = viper.BindEnv("COGNITO_CLIENT_ID")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("ALLOWED_EMAIL_DOMAINS")
	_ = viper.BindEnv("SES_FROM_ADDRESS")
	_ = viper.BindEnv("PLAID_CLIENT_ID")
	_ = viper.BindEnv("PLAID_SECRET")
	_ = viper.BindEnv("PLAID_ENV")
	_ = viper.BindEnv("COOKIE_SECURE")
	_ = viper.BindEnv("COOKIE_SAMESITE")
	_ = viper.BindEnv("COOKIE_MAX_AGE_DAYS")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("SIGNIN_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("BALANCE_REFRESH_SCHEDULE")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	// Production cookies are Secure unless explicitly disabled. NODE_ENV may
	// come from the .env file, so this is decided after reading it.
	viper.SetDefault("COOKIE_SECURE", strings.EqualFold(strings.TrimSpace(viper.GetString("NODE_ENV")), "production"))

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.NodeEnv = strings.ToLower(strings.TrimSpace(config.NodeEnv))
	config.CookieSameSite = strings.ToLower(strings.TrimSpace(config.CookieSameSite))
	if config.CookieMaxAgeDays <= 0 {
		config.CookieMaxAgeDays = 7
	}
	if config.SignInRateLimitPerMinute < 0 {
		config.SignInRateLimitPerMinute = 0
	}
	config.PlaidEnv = strings.ToLower(strings.TrimSpace(config.PlaidEnv))

	err = config.Validate()
	return
}

// IsProduction reports whether NODE_ENV selects the production stage.
func (c Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

// DemoEnabled reports whether the demo data source and demo-token bypass are
// requested at runtime. It is never true in production, and an unset NODE_ENV
// does not count as development. The build may still refuse it, see
// auth.DemoBuildEnabled.
func (c Config) DemoEnabled() bool {
	if c.IsProduction() {
		return false
	}
	return c.DemoMode || c.NodeEnv == "development"
}

// AllowedOrigins returns the CORS allow-list.
func (c Config) AllowedOrigins() []string {
	return splitList(c.AllowedOriginsRaw)
}

// AllowedEmailDomains returns the optional sign-in/sign-up domain allow-list.
func (c Config) AllowedEmailDomains() []string {
	domains := splitList(c.AllowedEmailDomainsRaw)
	for i, d := range domains {
		domains[i] = strings.ToLower(strings.TrimPrefix(d, "@"))
	}
	return domains
}

// SameSite converts the configured SameSite attribute.
func (c Config) SameSite() http.SameSite {
	switch c.CookieSameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// CognitoIssuer is the issuer claim Cognito stamps into pool tokens.
func (c Config) CognitoIssuer() string {
	if c.CognitoUserPoolID == "" {
		return ""
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.AWSRegion, c.CognitoUserPoolID)
}

// CognitoJWKSURL is where the pool publishes its signing keys.
func (c Config) CognitoJWKSURL() string {
	if issuer := c.CognitoIssuer(); issuer != "" {
		return issuer + "/.well-known/jwks.json"
	}
	return ""
}

// Validate rejects combinations that cannot serve traffic.
func (c Config) Validate() error {
	if c.DemoEnabled() {
		return nil
	}
	var missing []string
	if strings.TrimSpace(c.TableName) == "" {
		missing = append(missing, "TABLE_NAME")
	}
	if strings.TrimSpace(c.CognitoUserPoolID) == "" {
		missing = append(missing, "COGNITO_USER_POOL_ID")
	}
	if strings.TrimSpace(c.CognitoClientID) == "" {
		missing = append(missing, "COGNITO_CLIENT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.SameSite() == http.SameSiteNoneMode && !c.CookieSecure {
		return fmt.Errorf("COOKIE_SAMESITE=none requires COOKIE_SECURE=true")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
