package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/models"
	"github.com/hectorgon/coderwall/internal/services"
	apperrors "github.com/hectorgon/coderwall/pkg/errors"
	"github.com/hectorgon/coderwall/pkg/response"
)

const (
	// CallerKey is the gin context key holding the resolved caller.
	CallerKey = "caller"

	userIDHeader    = "X-User-ID"
	sessionIDHeader = "X-Session-ID"
	sessionCookie   = "visitor_session"

	sessionCookieMaxAge = 30 * 24 * 60 * 60
)

// Identity resolves the request principal. Authentication happens upstream;
// this trusts the gateway's user header and loads the account to pick up
// capability flags. Anonymous visitors get a durable session cookie so
// analytics can follow them across requests.
func Identity(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := services.Caller{SessionID: resolveSession(c)}

		if userID := strings.TrimSpace(c.GetHeader(userIDHeader)); userID != "" {
			var user models.User
			err := db.WithContext(c.Request.Context()).Take(&user, "id = ?", userID).Error
			switch {
			case err == nil:
				caller.UserID = user.ID
				caller.Email = user.Email
				caller.Operator = user.IsOperator
			case errors.Is(err, gorm.ErrRecordNotFound):
				// Stale upstream identity: fall through as anonymous.
			default:
				response.Error(c, apperrors.FromError(err))
				c.Abort()
				return
			}
		}

		c.Set(CallerKey, caller)
		c.Next()
	}
}

// RequireSignIn aborts anonymous requests with 401.
func RequireSignIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CallerFrom(c).SignedIn() {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CallerFrom extracts the resolved caller, zero-valued when Identity did not
// run.
func CallerFrom(c *gin.Context) services.Caller {
	if value, exists := c.Get(CallerKey); exists {
		if caller, ok := value.(services.Caller); ok {
			return caller
		}
	}
	return services.Caller{}
}

func resolveSession(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(sessionIDHeader)); id != "" {
		return id
	}
	if id, err := c.Cookie(sessionCookie); err == nil && strings.TrimSpace(id) != "" {
		return id
	}

	id := uuid.NewString()
	c.SetCookie(sessionCookie, id, sessionCookieMaxAge, "/", "", false, true)
	return id
}
