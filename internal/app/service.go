/**
 * @description
 * Shared plumbing for the procedure services: caller identity lookup, event
 * publishing and translation of provider failures into client errors.
 *
 * @dependencies
 * - go.uber.org/zap: structured logging.
 * - pkg/rabbitmq: domain event publisher.
 */
package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/goalpath/planner-api/internal/apperr"
	"github.com/goalpath/planner-api/internal/domain"
	"github.com/goalpath/planner-api/internal/rpc"
	"github.com/goalpath/planner-api/internal/store"
	"github.com/goalpath/planner-api/pkg/cognitoclient"
	"github.com/goalpath/planner-api/pkg/plaidclient"
	"github.com/goalpath/planner-api/pkg/rabbitmq"
)

// SuccessResponse is returned by mutations with nothing else to report.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// caller returns the authenticated identity. Procedures using it are always
// registered behind auth.Protected.
func caller(rc *rpc.Context) (*domain.Identity, error) {
	if rc == nil || rc.User == nil || rc.User.UserID == "" {
		return nil, apperr.Unauthorized("Not authenticated")
	}
	return rc.User, nil
}

// publish sends a domain event. Failures are logged and never reach the
// caller.
func publish(ctx context.Context, publisher rabbitmq.Publisher, logger *zap.Logger, routingKey string, payload any) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, domain.EventsExchange, routingKey, payload); err != nil {
		logger.Warn("event publish failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

// storeError maps repository failures, keeping NOT_FOUND distinct.
func storeError(err error, notFound string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, notFound, err)
	}
	return apperr.Internal("Internal server error", err)
}

// identityError maps identity provider failures. Wrong credentials are
// UNAUTHORIZED and throttling is TOO_MANY_REQUESTS; everything else carries the provider message as BAD_REQUEST.
func identityError(err error) error {
	var idErr *cognitoclient.Error
	if !errors.As(err, &idErr) {
		return apperr.Internal("Authentication service unavailable", err)
	}
	switch idErr.Kind {
	case cognitoclient.KindInvalidCredentials:
		return apperr.New(apperr.CodeUnauthorized, idErr.Message, err)
	case cognitoclient.KindRateLimited:
		return apperr.New(apperr.CodeTooManyRequests, idErr.Message, err)
	default:
		return apperr.New(apperr.CodeBadRequest, idErr.Message, err)
	}
}

// bankingError maps banking provider failures to BAD_REQUEST with the
// provider's display message.
func bankingError(err error) error {
	var pErr *plaidclient.Error
	if errors.As(err, &pErr) {
		return apperr.New(apperr.CodeBadRequest, pErr.Message, err)
	}
	return apperr.Internal("Banking provider unavailable", err)
}
