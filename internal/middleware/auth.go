package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const SubjectKey = "subject"

const adminRole = "admin"

// AdminClaims is the payload of an admin bearer token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ValidateToken checks an HS256 token and returns its subject.
func ValidateToken(token string, secret []byte) (string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := AdminClaims{}
	parsed, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.New("token expired")
		}
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("token is not valid")
	}
	if claims.Role != adminRole {
		return "", errors.New("token lacks the admin role")
	}
	return claims.Subject, nil
}

// AdminRequired guards the admin routes with a bearer token. An empty secret
// leaves the routes open, which is how local runs work.
func AdminRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.String(http.StatusUnauthorized, "Authorization Header Required")
			c.Abort()
			return
		}
		subject, err := ValidateToken(token, []byte(secret))
		if err != nil {
			slog.Warn("rejected admin token", "path", c.Request.URL.Path, "err", err)
			c.String(http.StatusUnauthorized, "Invalid/Expired Authorization Token")
			c.Abort()
			return
		}
		c.Set(SubjectKey, subject)
		c.Next()
	}
}

// SignAdminToken issues a token accepted by AdminRequired. It backs the CLI
// and tests.
func SignAdminToken(secret, subject string) (string, error) {
	claims := AdminClaims{
		Role:             adminRole,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
