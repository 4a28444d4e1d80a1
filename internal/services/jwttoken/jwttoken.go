package jwttoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidToken = errors.New("token is not valid")

type claims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
}

// Manager signs and checks web-app session tokens.
type Manager struct {
	secretKey []byte
	tokenExp  time.Duration
	now       func() time.Time
}

func NewManager(secretKey string, tokenExp time.Duration) *Manager {
	return &Manager{
		secretKey: []byte(secretKey),
		tokenExp:  tokenExp,
		now:       time.Now,
	}
}

func (m *Manager) Parse(accessToken string) (int64, error) {
	claims := &claims{}

	token, err := jwt.ParseWithClaims(
		accessToken,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.secretKey, nil
		},
	)

	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == 0 {
		return 0, ErrInvalidToken
	}

	return claims.UserID, nil
}

func (m *Manager) Generate(userID int64) (string, error) {
	now := m.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenExp)),
		},
		UserID: userID,
	})

	accessToken, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", err
	}

	return accessToken, nil
}
