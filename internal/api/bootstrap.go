/**
 * @description
 * Bootstrap wires configuration into concrete backends and returns the HTTP
 * handler shared by the long-running server and the Lambda entry point.
 *
 * Demo mode swaps Cognito and Plaid for in-process providers and, when no
 * table is configured, the DynamoDB store for the in-memory one.
 */
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/goalpath/planner-api/internal/app"
	"github.com/goalpath/planner-api/internal/auth"
	"github.com/goalpath/planner-api/internal/config"
	"github.com/goalpath/planner-api/internal/logging"
	"github.com/goalpath/planner-api/internal/rpc"
	"github.com/goalpath/planner-api/internal/store"
	"github.com/goalpath/planner-api/pkg/cognitoclient"
	"github.com/goalpath/planner-api/pkg/mailer"
	"github.com/goalpath/planner-api/pkg/objectstore"
	"github.com/goalpath/planner-api/pkg/plaidclient"
	"github.com/goalpath/planner-api/pkg/rabbitmq"
)

// Application is a fully wired instance of the API.
type Application struct {
	Handler    http.Handler
	Procedures *rpc.Router
	Store      store.Store
	Banking    *app.BankingService
	Mode       app.Mode

	closers []func()
}

// Close releases broker and cache connections.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Build constructs the application from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	demo := cfg.DemoEnabled() && auth.DemoBuildEnabled
	application := &Application{}

	var awsCfg aws.Config
	needsAWS := cfg.TableName != "" || cfg.BucketName != "" || cfg.SESFromAddress != "" || !demo
	if needsAWS {
		loaded, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = loaded
	}

	var st store.Store
	switch {
	case cfg.TableName != "":
		st = store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.TableName, logging.Component(logger, "store"))
	case demo:
		logger.Warn("TABLE_NAME not set; using in-memory store")
		st = store.NewMemoryStore()
	default:
		return nil, errors.New("TABLE_NAME is required outside demo mode")
	}
	application.Store = st

	cookieTTL := time.Duration(cfg.CookieMaxAgeDays) * 24 * time.Hour

	var source *app.DataSource
	var demoCodec *auth.DemoCodec
	if demo {
		demoCodec = auth.NewDemoCodec()
		identity, err := app.NewDemoIdentityProvider(demoCodec, bcrypt.DefaultCost, cookieTTL)
		if err != nil {
			return nil, err
		}
		source = app.NewDemoDataSource(st, identity)
		logger.Warn("demo mode enabled; unsigned demo tokens are accepted")
	} else {
		if cfg.CognitoClientID == "" {
			return nil, errors.New("COGNITO_CLIENT_ID is required outside demo mode")
		}
		cognito := cognitoclient.NewClient(cognitoidentityprovider.NewFromConfig(awsCfg), cfg.CognitoClientID)
		plaid := plaidclient.NewClient(plaidclient.Config{
			ClientID: cfg.PlaidClientID,
			Secret:   cfg.PlaidSecret,
			Env:      cfg.PlaidEnv,
		})
		source = app.NewLiveDataSource(st, cognito, plaid)
	}
	application.Mode = source.Mode

	var verifier auth.TokenValidator
	if cfg.CognitoUserPoolID != "" {
		verifier = auth.NewJWKSVerifier(auth.JWKSConfig{
			JWKSURL:          cfg.CognitoJWKSURL(),
			ExpectedIssuer:   cfg.CognitoIssuer(),
			ExpectedAudience: cfg.CognitoClientID,
		})
	}
	resolverCfg := auth.ResolverConfig{
		Verifier: verifier,
		Logger:   logging.Component(logger, "auth"),
	}
	if demoCodec != nil {
		resolverCfg.Demo = demoCodec
	}
	resolver := auth.NewResolver(resolverCfg)

	limiter := buildLimiter(ctx, cfg, logger, application)

	publisher := rabbitmq.NewPublisher(cfg.RabbitMQURL, logging.Component(logger, "events"))
	application.closers = append(application.closers, publisher.Close)

	var mail mailer.Mailer = mailer.LogMailer{Logger: logging.Component(logger, "mailer")}
	if cfg.SESFromAddress != "" {
		mail = mailer.NewSESMailer(sesv2.NewFromConfig(awsCfg), cfg.SESFromAddress)
	}

	var presigner app.AvatarPresigner
	if cfg.BucketName != "" {
		presigner = objectstore.NewPresignerFromClient(s3.NewFromConfig(awsCfg), cfg.BucketName)
	}

	services := Services{
		Auth: app.NewAuthService(app.AuthConfig{
			Identity:          source.Identity,
			Profiles:          st,
			Limiter:           limiter,
			SignInLimitPerMin: cfg.SignInRateLimitPerMinute,
			Mailer:            mail,
			Cookies: app.CookieOptions{
				Secure:   cfg.CookieSecure,
				SameSite: cfg.SameSite(),
				MaxAge:   cookieTTL,
			},
			AllowedEmailDomains: cfg.AllowedEmailDomains(),
			Logger:              logging.Component(logger, "auth"),
		}),
		Profile: app.NewProfileService(st, presigner, logging.Component(logger, "profile")),
		Planner: app.NewPlannerService(st, publisher, logging.Component(logger, "planner")),
		Banking: app.NewBankingService(st, source.Banking, publisher, logging.Component(logger, "banking")),
	}
	application.Banking = services.Banking

	procedures := rpc.NewRouter(logging.Component(logger, "rpc"))
	RegisterProcedures(procedures, services, resolver)
	application.Procedures = procedures
	application.Handler = NewRouter(procedures, cfg.AllowedOrigins(), logging.Component(logger, "http"))

	logger.Info("application wired",
		zap.String("mode", string(source.Mode)),
		zap.Int("procedures", len(procedures.Procedures())),
	)
	return application, nil
}

// buildLimiter prefers Redis so limits hold across instances, and falls back
// to a per-process window when Redis is absent or unreachable.
func buildLimiter(ctx context.Context, cfg config.Config, logger *zap.Logger, application *Application) app.RateLimiter {
	if cfg.RedisURL == "" {
		return app.NewMemoryRateLimiter()
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL; using in-memory rate limiter", zap.Error(err))
		return app.NewMemoryRateLimiter()
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable; using in-memory rate limiter", zap.Error(err))
		_ = client.Close()
		return app.NewMemoryRateLimiter()
	}

	application.closers = append(application.closers, func() { _ = client.Close() })
	return app.NewRedisRateLimiter(client, cfg.RedisRateLimitPrefix)
}
