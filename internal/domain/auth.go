package domain

import (
	"regexp"
	"unicode"
)

// SignInInput is the payload of auth.signIn.
type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in SignInInput) Validate() error {
	var v violations
	v.email("email", in.Email)
	v.required("password", in.Password)
	return v.err()
}

// SignUpInput is the payload of auth.signUp.
type SignUpInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,30}$`)

func (in SignUpInput) Validate() error {
	var v violations
	v.email("email", in.Email)
	checkPassword(&v, "password", in.Password)
	if in.Username != "" && !usernamePattern.MatchString(in.Username) {
		v.add("username must be 3-30 letters, digits, '.', '_' or '-'")
	}
	return v.err()
}

// ConfirmSignUpInput confirms a registration with the mailed code.
type ConfirmSignUpInput struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (in ConfirmSignUpInput) Validate() error {
	var v violations
	v.email("email", in.Email)
	v.required("code", in.Code)
	return v.err()
}

// EmailInput is used by the procedures keyed only by address.
type EmailInput struct {
	Email string `json:"email"`
}

func (in EmailInput) Validate() error {
	var v violations
	v.email("email", in.Email)
	return v.err()
}

// ConfirmForgotPasswordInput sets a new password with a reset code.
type ConfirmForgotPasswordInput struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

func (in ConfirmForgotPasswordInput) Validate() error {
	var v violations
	v.email("email", in.Email)
	v.required("code", in.Code)
	checkPassword(&v, "newPassword", in.NewPassword)
	return v.err()
}

// RefreshTokenInput optionally carries the refresh token; the cookie is used
// when it is empty.
type RefreshTokenInput struct {
	RefreshToken string `json:"refreshToken"`
}

// checkPassword mirrors the user pool policy: 8+ characters with upper, lower
// and digit.
func checkPassword(v *violations, field, password string) {
	if len(password) < 8 {
		v.add(field + " must be at least 8 characters")
		return
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		v.add(field + " must contain upper case, lower case and a digit")
	}
}
