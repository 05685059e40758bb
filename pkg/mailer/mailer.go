package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"
)

// Mailer sends transactional email.
type Mailer interface {
	SendWelcome(ctx context.Context, to, username string) error
}

// SendAPI is the subset of the SES v2 client used here.
type SendAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends mail through Amazon SES.
type SESMailer struct {
	api  SendAPI
	from string
}

// NewSESMailer returns a mailer sending from the verified address from.
func NewSESMailer(api SendAPI, from string) *SESMailer {
	return &SESMailer{api: api, from: from}
}

func (m *SESMailer) SendWelcome(ctx context.Context, to, username string) error {
	name := strings.TrimSpace(username)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("Hi %s,\n\nYour GoalPath account is confirmed. Create your first plan to start tracking your savings.\n\nThe GoalPath team", name)

	_, err := m.api.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String("Welcome to GoalPath"), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send welcome email: %w", err)
	}
	return nil
}

// LogMailer is used when no sender address is configured.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) SendWelcome(_ context.Context, to, _ string) error {
	if m.Logger != nil {
		m.Logger.Info("welcome email skipped: no sender configured", zap.String("to", to))
	}
	return nil
}
