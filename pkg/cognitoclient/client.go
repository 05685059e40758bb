/**
 * @description
 * This package provides a client for the Cognito user pool that backs sign-in.
 * It wraps the identity provider API calls the auth procedures need and turns
 * Cognito exceptions into a small set of error kinds the app layer can map.
 *
 * @dependencies
 * - github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider: Cognito API client.
 * - github.com/aws/smithy-go: Generic API error inspection.
 *
 * @notes
 * - The pool is expected to use the e-mail address as the username and to have
 *   USER_PASSWORD_AUTH and REFRESH_TOKEN_AUTH enabled on the app client.
 */
package cognitoclient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
)

// API is the subset of the Cognito client used here.
type API interface {
	InitiateAuth(ctx context.Context, params *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	SignUp(ctx context.Context, params *cip.SignUpInput, optFns ...func(*cip.Options)) (*cip.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, params *cip.ConfirmSignUpInput, optFns ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, params *cip.ResendConfirmationCodeInput, optFns ...func(*cip.Options)) (*cip.ResendConfirmationCodeOutput, error)
	ForgotPassword(ctx context.Context, params *cip.ForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ForgotPasswordOutput, error)
	ConfirmForgotPassword(ctx context.Context, params *cip.ConfirmForgotPasswordInput, optFns ...func(*cip.Options)) (*cip.ConfirmForgotPasswordOutput, error)
	RevokeToken(ctx context.Context, params *cip.RevokeTokenInput, optFns ...func(*cip.Options)) (*cip.RevokeTokenOutput, error)
}

// Kind classifies identity provider failures.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindNotConfirmed       Kind = "not_confirmed"
	KindUserExists         Kind = "user_exists"
	KindInvalidCode        Kind = "invalid_code"
	KindInvalidPassword    Kind = "invalid_password"
	KindRateLimited        Kind = "rate_limited"
	KindChallenge          Kind = "challenge_required"
	KindOther              Kind = "other"
)

// Error is a classified Cognito failure. Message is safe to show to users.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cognito %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Tokens is the result of a successful authentication.
type Tokens struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    int32
}

// SignUpResult describes a newly registered user.
type SignUpResult struct {
	UserSub   string
	Confirmed bool
}

// Client calls one user pool app client.
type Client struct {
	api      API
	clientID string
}

// NewClient creates a Cognito client for the given app client id.
func NewClient(api API, clientID string) *Client {
	return &Client{api: api, clientID: clientID}
}

// SignIn authenticates with USER_PASSWORD_AUTH.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Tokens, error) {
	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(c.clientID),
		AuthParameters: map[string]string{
			"USERNAME": email,
			"PASSWORD": password,
		},
	})
	if err != nil {
		return nil, classify(err)
	}
	if out.AuthenticationResult == nil {
		return nil, &Error{Kind: KindChallenge, Message: fmt.Sprintf("Additional sign-in step required: %s", out.ChallengeName)}
	}
	return tokensFrom(out.AuthenticationResult), nil
}

// Refresh exchanges a refresh token for new access and ID tokens. Cognito
// does not rotate the refresh token, so the caller keeps the one it sent.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeRefreshTokenAuth,
		ClientId:       aws.String(c.clientID),
		AuthParameters: map[string]string{"REFRESH_TOKEN": refreshToken},
	})
	if err != nil {
		return nil, classify(err)
	}
	if out.AuthenticationResult == nil {
		return nil, &Error{Kind: KindInvalidCredentials, Message: "Refresh token rejected"}
	}
	tokens := tokensFrom(out.AuthenticationResult)
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

// SignUp registers email with an optional preferred username.
func (c *Client) SignUp(ctx context.Context, email, password, username string) (*SignUpResult, error) {
	attrs := []types.AttributeType{{Name: aws.String("email"), Value: aws.String(email)}}
	if username != "" {
		attrs = append(attrs, types.AttributeType{Name: aws.String("preferred_username"), Value: aws.String(username)})
	}
	out, err := c.api.SignUp(ctx, &cip.SignUpInput{
		ClientId:       aws.String(c.clientID),
		Username:       aws.String(email),
		Password:       aws.String(password),
		UserAttributes: attrs,
	})
	if err != nil {
		return nil, classify(err)
	}
	return &SignUpResult{UserSub: aws.ToString(out.UserSub), Confirmed: out.UserConfirmed}, nil
}

// ConfirmSignUp submits the e-mailed verification code.
func (c *Client) ConfirmSignUp(ctx context.Context, email, code string) error {
	_, err := c.api.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
		ClientId:         aws.String(c.clientID),
		Username:         aws.String(email),
		ConfirmationCode: aws.String(code),
	})
	return classify(err)
}

// ResendConfirmationCode sends a new verification code.
func (c *Client) ResendConfirmationCode(ctx context.Context, email string) error {
	_, err := c.api.ResendConfirmationCode(ctx, &cip.ResendConfirmationCodeInput{
		ClientId: aws.String(c.clientID),
		Username: aws.String(email),
	})
	return classify(err)
}

// ForgotPassword starts a reset and returns the masked delivery destination.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	out, err := c.api.ForgotPassword(ctx, &cip.ForgotPasswordInput{
		ClientId: aws.String(c.clientID),
		Username: aws.String(email),
	})
	if err != nil {
		return "", classify(err)
	}
	if out.CodeDeliveryDetails != nil {
		return aws.ToString(out.CodeDeliveryDetails.Destination), nil
	}
	return "", nil
}

// ConfirmForgotPassword completes a reset.
func (c *Client) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) error {
	_, err := c.api.ConfirmForgotPassword(ctx, &cip.ConfirmForgotPasswordInput{
		ClientId:         aws.String(c.clientID),
		Username:         aws.String(email),
		ConfirmationCode: aws.String(code),
		Password:         aws.String(newPassword),
	})
	return classify(err)
}

// RevokeToken invalidates a refresh token and the tokens minted from it.
func (c *Client) RevokeToken(ctx context.Context, refreshToken string) error {
	_, err := c.api.RevokeToken(ctx, &cip.RevokeTokenInput{
		ClientId: aws.String(c.clientID),
		Token:    aws.String(refreshToken),
	})
	return classify(err)
}

func tokensFrom(r *types.AuthenticationResultType) *Tokens {
	return &Tokens{
		AccessToken:  aws.ToString(r.AccessToken),
		IDToken:      aws.ToString(r.IdToken),
		RefreshToken: aws.ToString(r.RefreshToken),
		ExpiresIn:    r.ExpiresIn,
	}
}

func classify(err error) error {
	if err == nil {
		return nil
	}

	var (
		notAuthorized   *types.NotAuthorizedException
		userNotFound    *types.UserNotFoundException
		notConfirmed    *types.UserNotConfirmedException
		usernameExists  *types.UsernameExistsException
		codeMismatch    *types.CodeMismatchException
		expiredCode     *types.ExpiredCodeException
		invalidPassword *types.InvalidPasswordException
		tooMany         *types.TooManyRequestsException
		limitExceeded   *types.LimitExceededException
	)
	switch {
	case errors.As(err, &notAuthorized), errors.As(err, &userNotFound):
		return &Error{Kind: KindInvalidCredentials, Message: "Incorrect email or password", Cause: err}
	case errors.As(err, &notConfirmed):
		return &Error{Kind: KindNotConfirmed, Message: "User is not confirmed", Cause: err}
	case errors.As(err, &usernameExists):
		return &Error{Kind: KindUserExists, Message: "An account with this email already exists", Cause: err}
	case errors.As(err, &codeMismatch), errors.As(err, &expiredCode):
		return &Error{Kind: KindInvalidCode, Message: providerMessage(err, "Invalid verification code"), Cause: err}
	case errors.As(err, &invalidPassword):
		return &Error{Kind: KindInvalidPassword, Message: providerMessage(err, "Password does not meet requirements"), Cause: err}
	case errors.As(err, &tooMany), errors.As(err, &limitExceeded):
		return &Error{Kind: KindRateLimited, Message: "Too many attempts, try again later", Cause: err}
	}
	return &Error{Kind: KindOther, Message: providerMessage(err, "Identity provider request failed"), Cause: err}
}

func providerMessage(err error, fallback string) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if msg := strings.TrimSpace(apiErr.ErrorMessage()); msg != "" {
			return msg
		}
	}
	return fallback
}
