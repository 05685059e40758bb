// Command lambda serves the same router behind API Gateway HTTP APIs.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/goalpath/planner-api/internal/api"
	"github.com/goalpath/planner-api/internal/config"
	"github.com/goalpath/planner-api/internal/lambdahttp"
	"github.com/goalpath/planner-api/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=error component=bootstrap msg=\"failed to load configuration\" err=%v", err)
	}

	logger, err := logging.New(cfg.NodeEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("level=error component=bootstrap msg=\"failed to build logger\" err=%v", err)
	}

	// Built once per container and reused across warm invocations.
	application, err := api.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}

	lambda.Start(lambdahttp.Handler(application.Handler))
}
