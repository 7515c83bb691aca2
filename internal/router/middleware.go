package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xsuryanshx/cognitive-load/internal/config"
	"github.com/xsuryanshx/cognitive-load/internal/repository"
)

// AuthRequired validates the Bearer token and loads the account it names
// into the request context. Requests with a missing, malformed, or expired
// token, or a token for a deleted user, are rejected with 401.
func AuthRequired(log *zap.Logger, users *repository.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			unauthorized(c)
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			return []byte(config.Conf.Server.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.Subject == "" {
			unauthorized(c)
			return
		}

		user, err := users.GetByID(claims.Subject)
		if err != nil {
			// Token is syntactically valid but names a user that no
			// longer exists.
			log.Debug("Token subject not found", zap.String("user_id", claims.Subject))
			unauthorized(c)
			return
		}

		c.Set("user", user)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
}
