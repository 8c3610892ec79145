package middleware

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errNoLearner = errors.New("token has no learner_id")

// Claims is the learner token payload issued by the platform's auth service.
type Claims struct {
	LearnerID string `json:"learner_id"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 learner token. The engine never issues
// tokens itself; this is for tooling and tests.
func GenerateToken(learnerID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		LearnerID: learnerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.LearnerID == "" {
		return nil, errNoLearner
	}
	return claims, nil
}
