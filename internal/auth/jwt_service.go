// Package auth issues and verifies access credentials.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/galerly/galerly/utils"
)

// TokenPair holds a signed access token and its opaque refresh token.
type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID   uint
	Username string
}

// JWTService signs and parses HS256 access tokens.
type JWTService struct {
	secret           []byte
	expiresIn        time.Duration
	refreshExpiresIn time.Duration
}

// NewJWTService creates a JWT service. expiresIn and refreshExpiresIn
// fall back to 15 minutes and 7 days.
func NewJWTService(secret []byte, expiresIn, refreshExpiresIn time.Duration) *JWTService {
	if expiresIn == 0 {
		expiresIn = 15 * time.Minute
	}
	if refreshExpiresIn == 0 {
		refreshExpiresIn = 7 * 24 * time.Hour
	}
	return &JWTService{
		secret:           secret,
		expiresIn:        expiresIn,
		refreshExpiresIn: refreshExpiresIn,
	}
}

// RefreshExpiresIn returns the refresh token lifetime.
func (s *JWTService) RefreshExpiresIn() time.Duration {
	return s.refreshExpiresIn
}

// GenerateTokens issues an access/refresh token pair for the user.
func (s *JWTService) GenerateTokens(username string, userID uint) (*TokenPair, error) {
	accessToken, accessExpiry, err := s.GenerateAccessToken(username, userID)
	if err != nil {
		return nil, err
	}

	refreshToken, err := utils.GenerateRandomToken(64)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:        accessToken,
		AccessTokenExpiry:  accessExpiry,
		RefreshToken:       refreshToken,
		RefreshTokenExpiry: time.Now().Add(s.refreshExpiresIn),
	}, nil
}

// GenerateAccessToken issues only the signed access token.
func (s *JWTService) GenerateAccessToken(username string, userID uint) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("JWT secret is not initialized")
	}

	expiry := time.Now().Add(s.expiresIn)
	claims := jwt.MapClaims{
		"username": username,
		"user_id":  userID,
		"type":     "access",
		"exp":      expiry.Unix(),
		"iat":      time.Now().Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, expiry, nil
}

// ParseToken verifies a token string and extracts its claims.
func (s *JWTService) ParseToken(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, errors.New("JWT secret is not initialized")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	userIDValue, ok := mapClaims["user_id"].(float64)
	if !ok {
		return nil, errors.New("user_id missing from token claims")
	}
	username, ok := mapClaims["username"].(string)
	if !ok {
		return nil, errors.New("username missing from token claims")
	}
	if tokenType, _ := mapClaims["type"].(string); tokenType != "access" {
		return nil, errors.New("not an access token")
	}

	return &Claims{UserID: uint(userIDValue), Username: username}, nil
}
