package core

import (
	"crypto/subtle"
	"errors"
	"strings"
)

// ErrUnauthorized is returned when a request does not carry the expected credentials
var ErrUnauthorized = errors.New("unauthorized")

const minTokenLength = 16

var weakTokenParts = []string{
	"password", "secret", "token", "admin", "test", "default", "12345",
}

// ValidateAuthToken reports tokens that are empty, short or guessable
func ValidateAuthToken(token string) error {
	if token == "" {
		return NewError(ErrInvalidInput, "authentication token cannot be empty")
	}
	if len(token) < minTokenLength {
		return NewError(ErrInvalidInput, "authentication token is too short").
			WithGuidance("Use a token with at least 16 characters")
	}
	lower := strings.ToLower(token)
	for _, weak := range weakTokenParts {
		if strings.Contains(lower, weak) {
			return NewError(ErrInvalidInput, "authentication token appears to be weak").
				WithGuidance("Use a randomly generated token")
		}
	}
	return nil
}

// AuthenticateBearer checks an Authorization header against the expected
// token in constant time
func AuthenticateBearer(authHeader, expectedToken string) error {
	if authHeader == "" {
		return errors.Join(ErrUnauthorized, errors.New("missing Authorization header"))
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return errors.Join(ErrUnauthorized, errors.New("invalid Authorization header format"))
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
		return errors.Join(ErrUnauthorized, errors.New("invalid bearer token"))
	}
	return nil
}
