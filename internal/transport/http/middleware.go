package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/utils"
)

// ContextKeyClientID is the context key for storing the authenticated client identity.
const ContextKeyClientID = "client_id"

// AuthMiddleware creates a middleware that validates mailbox tokens.
// The token comes from "Authorization: Bearer <token>" or the "token" query parameter.
func AuthMiddleware(tokens *auth.TokenConfig, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Debug().Msg("invalid authorization header format")
				c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
				c.Abort()
				return
			}
			token = parts[1]
		}

		if token == "" {
			logger.Debug().Msg("missing mailbox token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(tokens, token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		if !utils.IsClientID(claims.ClientID) {
			logger.Debug().Str("client_id", claims.ClientID).Msg("token names a malformed client id")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid client id"})
			c.Abort()
			return
		}

		c.Set(ContextKeyClientID, claims.ClientID)
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("client_id", c.GetString(ContextKeyClientID)).
			Msg("http request")
	}
}
