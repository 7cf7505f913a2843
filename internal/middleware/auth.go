package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/lightquark/maptracker/pkg/response"
)

// DefaultLeeway is the clock skew tolerated when validating tokens
const DefaultLeeway = 30 * time.Second

// SubjectKey is the gin context key holding the authenticated token subject
const SubjectKey = "auth.subject"

// AccessTokenParam carries the token on websocket handshakes
const AccessTokenParam = "access_token"

// ErrInvalidToken is returned when token validation fails
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier validates HS256 bearer tokens
type TokenVerifier struct {
	secret []byte
	leeway time.Duration
}

// NewTokenVerifier creates a verifier for tokens signed with secret
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), leeway: DefaultLeeway}
}

// Verify parses tokenString and returns its registered claims
func (v *TokenVerifier) Verify(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithLeeway(v.leeway))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Auth rejects requests without a valid bearer token. Websocket handshakes
// may pass the token in the access_token query parameter instead. A nil
// verifier disables authentication.
func Auth(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok && websocket.IsWebSocketUpgrade(c.Request) {
			// browsers cannot set headers on websocket handshakes
			tokenString, ok = c.Query(AccessTokenParam), true
		}
		if !ok || tokenString == "" {
			response.AbortWithError(c, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			response.AbortWithError(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}
