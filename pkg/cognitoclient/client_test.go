package cognitoclient

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

type apiStub struct {
	API

	authInput  *cip.InitiateAuthInput
	authOutput *cip.InitiateAuthOutput
	authErr    error
	signUpErr  error
}

func (s *apiStub) InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, _ ...func(*cip.Options)) (*cip.InitiateAuthOutput, error) {
	s.authInput = in
	return s.authOutput, s.authErr
}

func (s *apiStub) SignUp(ctx context.Context, in *cip.SignUpInput, _ ...func(*cip.Options)) (*cip.SignUpOutput, error) {
	if s.signUpErr != nil {
		return nil, s.signUpErr
	}
	return &cip.SignUpOutput{UserSub: aws.String("sub-1"), UserConfirmed: false}, nil
}

func TestSignInReturnsTokens(t *testing.T) {
	stub := &apiStub{authOutput: &cip.InitiateAuthOutput{AuthenticationResult: &types.AuthenticationResultType{
		AccessToken:  aws.String("access"),
		IdToken:      aws.String("id"),
		RefreshToken: aws.String("refresh"),
		ExpiresIn:    3600,
	}}}
	c := NewClient(stub, "client-1")

	tokens, err := c.SignIn(context.Background(), "a@example.com", "pw")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if tokens.IDToken != "id" || tokens.ExpiresIn != 3600 {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
	if stub.authInput.AuthFlow != types.AuthFlowTypeUserPasswordAuth || stub.authInput.AuthParameters["USERNAME"] != "a@example.com" {
		t.Fatalf("unexpected auth input %+v", stub.authInput)
	}
}

func TestRefreshKeepsRefreshToken(t *testing.T) {
	stub := &apiStub{authOutput: &cip.InitiateAuthOutput{AuthenticationResult: &types.AuthenticationResultType{
		AccessToken: aws.String("access2"),
		IdToken:     aws.String("id2"),
		ExpiresIn:   3600,
	}}}
	tokens, err := NewClient(stub, "client-1").Refresh(context.Background(), "refresh-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tokens.RefreshToken != "refresh-1" {
		t.Fatalf("expected original refresh token, got %q", tokens.RefreshToken)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "not authorized", err: &types.NotAuthorizedException{Message: aws.String("Incorrect username or password.")}, want: KindInvalidCredentials},
		{name: "user missing", err: &types.UserNotFoundException{}, want: KindInvalidCredentials},
		{name: "not confirmed", err: &types.UserNotConfirmedException{}, want: KindNotConfirmed},
		{name: "exists", err: &types.UsernameExistsException{}, want: KindUserExists},
		{name: "code", err: &types.CodeMismatchException{Message: aws.String("Invalid code provided")}, want: KindInvalidCode},
		{name: "password", err: &types.InvalidPasswordException{Message: aws.String("Password not long enough")}, want: KindInvalidPassword},
		{name: "throttled", err: &types.TooManyRequestsException{}, want: KindRateLimited},
		{name: "other", err: errors.New("boom"), want: KindOther},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cerr *Error
			if !errors.As(classify(tc.err), &cerr) {
				t.Fatalf("expected *Error")
			}
			if cerr.Kind != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, cerr.Kind)
			}
			if cerr.Message == "" {
				t.Fatal("expected user-facing message")
			}
		})
	}

	var cerr *Error
	errors.As(classify(&types.InvalidPasswordException{Message: aws.String("Password not long enough")}), &cerr)
	if cerr.Message != "Password not long enough" {
		t.Fatalf("expected provider message, got %q", cerr.Message)
	}
}

func TestSignInChallenge(t *testing.T) {
	stub := &apiStub{authOutput: &cip.InitiateAuthOutput{ChallengeName: types.ChallengeNameTypeNewPasswordRequired}}
	_, err := NewClient(stub, "client-1").SignIn(context.Background(), "a@example.com", "pw")
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Kind != KindChallenge {
		t.Fatalf("expected challenge error, got %v", err)
	}
}
