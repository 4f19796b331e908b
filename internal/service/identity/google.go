package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"

	"github.com/nkiryanov/weddingplanner/internal/apperrors"
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// Verified person behind an external credential
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

type payloadValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// Verifies Google Sign-In ID tokens issued for clientID
type GoogleVerifier struct {
	clientID  string
	validator payloadValidator
}

// Empty clientID is allowed: every Verify then fails with configuration error
func NewGoogleVerifier(ctx context.Context, clientID string, opts ...option.ClientOption) (*GoogleVerifier, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(&http.Client{Timeout: 10 * time.Second})}, opts...)

	v, err := idtoken.NewValidator(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google verifier error: %w", err)
	}

	return &GoogleVerifier{clientID: clientID, validator: v}, nil
}

func (g *GoogleVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if g.clientID == "" {
		return Identity{}, apperrors.ErrGoogleClientIDMissing
	}
	if credential == "" {
		return Identity{}, fmt.Errorf("%w: empty credential", apperrors.ErrExternalIdentity)
	}

	payload, err := g.validator.Validate(ctx, credential, g.clientID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", apperrors.ErrExternalIdentity, err)
	}

	id, err := fromPayload(payload)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", apperrors.ErrExternalIdentity, err)
	}
	return id, nil
}

func fromPayload(p *idtoken.Payload) (Identity, error) {
	if p == nil {
		return Identity{}, errors.New("no payload")
	}
	if !isGoogleIssuer(p.Issuer) {
		return Identity{}, fmt.Errorf("unexpected issuer %q", p.Issuer)
	}

	id := Identity{
		Subject:       p.Subject,
		Email:         strings.ToLower(strings.TrimSpace(claimString(p.Claims, "email"))),
		EmailVerified: claimBool(p.Claims, "email_verified"),
		Name:          strings.TrimSpace(claimString(p.Claims, "name")),
		Picture:       claimString(p.Claims, "picture"),
	}

	switch {
	case id.Email == "":
		return Identity{}, errors.New("token has no email")
	case !id.EmailVerified:
		return Identity{}, errors.New("email is not verified")
	}
	return id, nil
}

func isGoogleIssuer(iss string) bool {
	for _, known := range googleIssuers {
		if iss == known {
			return true
		}
	}
	return false
}

func claimString(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}

// Google sends email_verified as bool, some older tokens as "true"
func claimBool(claims map[string]any, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}
