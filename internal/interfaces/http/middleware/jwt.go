package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appposting "github.com/hera/autojournal/internal/application/posting"
	"github.com/hera/autojournal/internal/infrastructure/auth"
	"github.com/hera/autojournal/internal/infrastructure/logger"
	"github.com/hera/autojournal/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Authorization header parts
const (
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates access tokens
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// JWTAuth authenticates the caller from a bearer token and scopes the rest
// of the request to the organization named in its claims
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			AbortWithError(c, dto.ErrCodeMissingAuthorization, "Authorization header is required")
			return
		}
		if !strings.HasPrefix(header, BearerPrefix) || strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix)) == "" {
			AbortWithError(c, dto.ErrCodeMissingAuthorization, "Authorization header must be a bearer token")
			return
		}

		claims, err := validator.Validate(strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix)))
		if err != nil {
			logger.L(c.Request.Context()).Warn("JWT authentication failed",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			AbortWithError(c, dto.ErrCodeInvalidToken, tokenErrorMessage(err))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(OrganizationIDKey, claims.OrganizationID)
		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)

		ctx := c.Request.Context()
		log := logger.FromContext(ctx)
		ctx, log = logger.WithOrganizationID(ctx, log, claims.OrganizationID)
		ctx, _ = logger.WithUserID(ctx, log, claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		return "Token is not yet valid"
	case errors.Is(err, auth.ErrMissingOrganizationID), errors.Is(err, auth.ErrInvalidClaims):
		return "Token does not carry a valid organization"
	default:
		return "Invalid token"
	}
}

// GetClaims returns the validated claims of the request
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// AuthContext returns the authenticated caller as the application sees it
func AuthContext(c *gin.Context) (appposting.AuthContext, bool) {
	claims := GetClaims(c)
	if claims == nil {
		return appposting.AuthContext{}, false
	}
	orgID, err := claims.OrganizationUUID()
	if err != nil {
		return appposting.AuthContext{}, false
	}
	userID, err := claims.UserUUID()
	if err != nil {
		userID = uuid.Nil
	}
	return appposting.AuthContext{
		OrganizationID: orgID,
		UserID:         userID,
		Username:       claims.Username,
	}, true
}
