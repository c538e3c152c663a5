package services

import (
	"crypto/subtle"
	"strings"
)

// BearerAuth guards the write endpoints. With an empty secret any bearer
// token passes; the header itself is always required.
type BearerAuth struct {
	secret string
}

func NewBearerAuth(secret string) *BearerAuth {
	return &BearerAuth{secret: secret}
}

func (a *BearerAuth) Check(authorization string) error {
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return ErrUnauthorized
	}
	if a.secret != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.secret)) != 1 {
		return ErrUnauthorized
	}
	return nil
}
