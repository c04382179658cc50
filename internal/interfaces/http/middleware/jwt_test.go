package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/infrastructure/auth"
	"github.com/hera/autojournal/internal/infrastructure/config"
	"github.com/hera/autojournal/internal/infrastructure/logger"
	"github.com/hera/autojournal/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newJWTService(expiration time.Duration) *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-that-is-long-enough-for-hs256",
		AccessTokenExpiration: expiration,
		Issuer:                "hera-test",
	})
}

func TestJWTAuth(t *testing.T) {
	svc := newJWTService(time.Hour)
	orgID, userID := uuid.New(), uuid.New()
	token, err := svc.Generate(auth.GenerateTokenInput{OrganizationID: orgID, UserID: userID, Username: "cashier"})
	require.NoError(t, err)

	r := gin.New()
	r.Use(RequestID(), JWTAuth(svc))
	r.GET("/me", func(c *gin.Context) {
		ac, ok := AuthContext(c)
		require.True(t, ok)
		assert.Equal(t, orgID, ac.OrganizationID)
		assert.Equal(t, userID, ac.UserID)
		assert.Equal(t, "cashier", ac.Username)
		assert.Equal(t, orgID.String(), logger.GetOrganizationID(c.Request.Context()))
		assert.Equal(t, userID.String(), logger.GetUserID(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuth_Rejects(t *testing.T) {
	svc := newJWTService(time.Hour)
	expired := newJWTService(-time.Minute)
	stale, err := expired.Generate(auth.GenerateTokenInput{OrganizationID: uuid.New(), UserID: uuid.New()})
	require.NoError(t, err)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(logger.WithContext(context.Background(), zap.NewNop()))
		c.Next()
	}, RequestID(), JWTAuth(svc))
	r.GET("/me", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name    string
		header  string
		code    string
		message string
	}{
		{name: "missing header", header: "", code: dto.ErrCodeMissingAuthorization},
		{name: "not bearer", header: "Basic abc", code: dto.ErrCodeMissingAuthorization},
		{name: "empty bearer", header: "Bearer  ", code: dto.ErrCodeMissingAuthorization},
		{name: "garbage", header: "Bearer not-a-jwt", code: dto.ErrCodeInvalidToken, message: "Invalid token"},
		{name: "expired", header: "Bearer " + stale.AccessToken, code: dto.ErrCodeInvalidToken, message: "Token has expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Error.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Error.Message)
			}
		})
	}
}

func TestAuthContext_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := AuthContext(c)
	assert.False(t, ok)
	assert.Nil(t, GetClaims(c))
}
