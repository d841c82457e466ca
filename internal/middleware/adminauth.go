package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/phuhao00/conflux-demo/internal/models"
	"github.com/phuhao00/conflux-demo/pkg/logger"
)

// AdminAuthMiddleware guards the administrative surface with HTTP Basic
// credentials from configuration. When no credentials are configured the
// whole admin surface is disabled rather than left open.
func AdminAuthMiddleware(user, pass string) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.GetLogger().WithContext(c.Request.Context())

		if user == "" || pass == "" {
			log.Warn("Admin request rejected: no admin credentials configured",
				zap.String("client_ip", c.ClientIP()),
			)
			models.RespondError(c, models.NewAppError(
				models.ErrorCodeAdminNotSet,
				"Admin access is not configured",
			))
			c.Abort()
			return
		}

		gotUser, gotPass, ok := c.Request.BasicAuth()
		userMatch := subtle.ConstantTimeCompare([]byte(gotUser), []byte(user)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(gotPass), []byte(pass)) == 1
		if !ok || !userMatch || !passMatch {
			log.Warn("Admin authentication failed",
				zap.String("client_ip", c.ClientIP()),
			)
			c.Header("WWW-Authenticate", `Basic realm="admin"`)
			models.RespondError(c, models.NewAppError(
				models.ErrorCodeUnauthorized,
				"Invalid admin credentials",
			))
			c.Abort()
			return
		}

		c.Next()
	}
}
