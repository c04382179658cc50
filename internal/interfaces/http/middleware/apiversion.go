package middleware

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hera/autojournal/internal/interfaces/http/dto"
)

// APIVersionHeader carries the contract version the caller was built for
const APIVersionHeader = "X-API-Version"

// DefaultAPIVersion is accepted when no list is configured
const DefaultAPIVersion = "2024-12-01"

// APIVersion rejects requests whose X-API-Version is missing or not one of
// accepted
func APIVersion(accepted []string) gin.HandlerFunc {
	if len(accepted) == 0 {
		accepted = []string{DefaultAPIVersion}
	}
	list := strings.Join(accepted, ", ")
	return func(c *gin.Context) {
		version := strings.TrimSpace(c.GetHeader(APIVersionHeader))
		if version == "" {
			AbortWithError(c, dto.ErrCodeInvalidAPIVersion,
				fmt.Sprintf("%s header is required (supported: %s)", APIVersionHeader, list))
			return
		}
		if !slices.Contains(accepted, version) {
			AbortWithError(c, dto.ErrCodeInvalidAPIVersion,
				fmt.Sprintf("API version %q is not supported (supported: %s)", version, list))
			return
		}
		c.Next()
	}
}
