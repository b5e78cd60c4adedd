// Package auth issues and verifies submission-scoped tokens. A token grants
// access to one submission directory and nothing else.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/chunkstore/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the standard claims plus the submission the token is bound to.
type Claims struct {
	jwt.RegisteredClaims
	SubmissionID string
}

func GenerateToken(submissionID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		SubmissionID: submissionID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetSubmissionIDFromToken verifies tokenString and returns its submission.
// Expired tokens yield common.ErrTokenExpired, anything else that fails
// verification common.ErrInvalidToken.
func GetSubmissionIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", common.ErrTokenExpired
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.SubmissionID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.SubmissionID, nil
}
