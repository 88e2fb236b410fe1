package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the JWT claims for a paired desktop shell. The token
// is bound to the machine it was issued on: a copied token is useless on
// another machine.
type SessionClaims struct {
	MachineID string `json:"mid"`
	jwt.RegisteredClaims
}

func currentMachineID() string {
	id, err := machineid.ProtectedID("sitebooks")
	if err != nil {
		return ""
	}
	return id
}

func generateToken(secret string, expiresAt time.Time) (string, error) {
	claims := SessionClaims{
		MachineID: currentMachineID(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "sitebooks-shell",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseToken(tokenStr, secret string) error {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return errors.New("invalid token claims")
	}
	if claims.MachineID != currentMachineID() {
		return errors.New("token issued for another machine")
	}
	return nil
}

// AuthMiddleware enforces the session token for protected routes.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "MISSING_TOKEN",
				"error": "missing Authorization header",
			})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_AUTH_HEADER",
				"error": "invalid Authorization header",
			})
			return
		}
		if err := parseToken(parts[1], secret); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_TOKEN",
				"error": "invalid or expired token",
			})
			return
		}
		c.Next()
	}
}

// createSession exchanges the app key for a machine-bound session token.
func (s *Server) createSession(c *gin.Context) {
	var req struct {
		AppKey string `json:"app_key"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	if req.AppKey == "" || req.AppKey != s.AppKey {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":  "INVALID_APP_KEY",
			"error": "invalid app key",
		})
		return
	}

	expiresAt := time.Now().Add(12 * time.Hour)
	token, err := generateToken(s.JWTSecret, expiresAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": "failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}
