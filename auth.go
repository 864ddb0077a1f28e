package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidTicket = errors.New("invalid join ticket")

// TicketVerifier checks join tickets minted by the external account
// backend. The arena never issues tickets itself.
type TicketVerifier struct {
	secret []byte
}

// NewTicketVerifier returns nil when secret is empty, which disables tickets
func NewTicketVerifier(secret string) *TicketVerifier {
	if secret == "" {
		return nil
	}
	return &TicketVerifier{secret: []byte(secret)}
}

// Verify validates an HS256 ticket and returns the display name it carries
func (v *TicketVerifier) Verify(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidTicket
	}
	username, ok := claims["usr"].(string)
	if !ok || strings.TrimSpace(username) == "" {
		return "", fmt.Errorf("%w: missing usr claim", ErrInvalidTicket)
	}
	return username, nil
}
