// Package middleware provides the HTTP middleware chain: request
// correlation, panic recovery, deadlines, load shedding, and caller
// authentication.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	sharedcontext "libris-backend/internal/context"
	apperrors "libris-backend/internal/errors"
	"libris-backend/internal/interfaces/http/response"
)

// TokenVerifier resolves a bearer token to the user it was issued for.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type supabaseVerifier struct {
	client *supabase.Client
}

// NewSupabaseVerifier verifies tokens against a Supabase project using
// the project API key.
func NewSupabaseVerifier(projectURL, apiKey string) (TokenVerifier, error) {
	client, err := supabase.NewClient(projectURL, apiKey, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, "NewSupabaseVerifier")
	}
	return &supabaseVerifier{client: client}, nil
}

// Verify asks Supabase for the user behind the token. The chained GetUser
// call carries the context inside its own HTTP request.
func (v *supabaseVerifier) Verify(_ context.Context, token string) (string, error) {
	user, err := v.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return "", apperrors.NewError(apperrors.CodeUnauthorized, "invalid or expired token").
			WithCause(err).
			Build()
	}
	return user.ID.String(), nil
}

// Auth resolves the caller's identity and stores it in the request
// context. Behind API Gateway the Lambda authorizer has already verified
// the token, so its subject claim is trusted; everywhere else the bearer
// token is checked against the verifier.
func Auth(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, ok := authorizerSubject(r.Context()); ok {
				next.ServeHTTP(w, r.WithContext(sharedcontext.WithUserID(r.Context(), userID)))
				return
			}

			token := bearerToken(r)
			if token == "" {
				response.Error(w, r, apperrors.NewError(
					apperrors.CodeUnauthorized, "authentication required",
				).Build())
				return
			}
			if verifier == nil {
				response.Error(w, r, apperrors.NewError(
					apperrors.CodeUnauthorized, "no token verifier configured",
				).Build())
				return
			}

			userID, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Debug("token verification failed", zap.Error(err))
				if !apperrors.HasCode(err, apperrors.CodeUnauthorized) {
					err = apperrors.NewError(apperrors.CodeUnauthorized, "invalid or expired token").
						WithCause(err).
						Build()
				}
				response.Error(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(sharedcontext.WithUserID(r.Context(), userID)))
		})
	}
}

// authorizerSubject pulls the subject claim the API Gateway Lambda
// authorizer attached to the proxied request, when one is present.
func authorizerSubject(ctx context.Context) (string, bool) {
	proxyCtx, ok := core.GetAPIGatewayV2ContextFromContext(ctx)
	if !ok || proxyCtx.Authorizer == nil || proxyCtx.Authorizer.Lambda == nil {
		return "", false
	}
	sub, ok := proxyCtx.Authorizer.Lambda["sub"].(string)
	return sub, ok && sub != ""
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
