package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goalpath/planner-api/internal/apperr"
	"github.com/goalpath/planner-api/internal/domain"
	"github.com/goalpath/planner-api/internal/rpc"
)

type transportStub struct {
	headers map[string]string
	cookies map[string]string
}

func (t transportStub) Header(name string) string { return t.headers[name] }

func (t transportStub) Cookie(name string) (string, bool) {
	v, ok := t.cookies[name]
	return v, ok
}

type publisherSpy struct {
	mu     sync.Mutex
	events []string
}

func (p *publisherSpy) Publish(_ context.Context, _ string, routingKey string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

func (p *publisherSpy) Close() {}

func (p *publisherSpy) count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == routingKey {
			n++
		}
	}
	return n
}

func userContext(userID string) *rpc.Context {
	rc := rpc.NewContext(transportStub{})
	rc.User = &domain.Identity{
		UserID:      userID,
		Email:       userID + "@example.com",
		Username:    userID,
		Role:        "user",
		Permissions: []string{"plans:read", "plans:write"},
	}
	return rc
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testLogger() *zap.Logger { return zap.NewNop() }

func codeOf(err error) apperr.Code {
	if appErr := apperr.As(err); appErr != nil {
		return appErr.Code
	}
	return ""
}
