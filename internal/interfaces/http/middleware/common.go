// Package middleware provides the gin middleware of the posting API.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hera/autojournal/internal/interfaces/http/dto"
)

// Context keys shared by middleware and handlers
const (
	RequestIDKey      = "request_id"
	RequestStartKey   = "request_start"
	OrganizationIDKey = "organization_id"
	UserIDKey         = "user_id"
	UsernameKey       = "username"
	ClaimsKey         = "jwt_claims"

	RequestIDHeader = "X-Request-ID"
)

// MaxRequestIDLength bounds caller supplied request ids
const MaxRequestIDLength = 128

// RequestID assigns every request an id, reusing a sane caller supplied
// X-Request-ID, and records when processing started
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(RequestStartKey, time.Now())

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > MaxRequestIDLength {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Next()
	}
}

// StartTime returns when RequestID first saw the request
func StartTime(c *gin.Context) time.Time {
	if v, ok := c.Get(RequestStartKey); ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

// Metadata builds the response metadata for the current request
func Metadata(c *gin.Context, smartCode string) dto.Metadata {
	return dto.NewMetadata(StartTime(c), c.GetString(RequestIDKey), c.GetString(OrganizationIDKey), smartCode)
}

// AbortWithError stops the chain with a structured error response
func AbortWithError(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(
		dto.ErrorInfo{Code: code, Message: message},
		Metadata(c, ""),
	))
}
