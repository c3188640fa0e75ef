// Package token issues and redeems signed, expiring, purpose-tagged tokens for
// the confirmation, password-reset and email-change flows. A token is
// base64url(json payload) + "." + base64url(HMAC-SHA256). Redemption failures
// all collapse into ErrInvalid: an expired or tampered token is routine, not
// something callers branch on.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalid = errors.New("invalid token")

type Purpose string

const (
	PurposeConfirm     Purpose = "confirm"
	PurposeReset       Purpose = "reset"
	PurposeChangeEmail Purpose = "change-email"
)

type Payload struct {
	Purpose Purpose `json:"purpose"`
	UserID  int64   `json:"uid"`
	Email   string  `json:"email,omitempty"`
	ID      string  `json:"jti"`
	Expires int64   `json:"exp"`
}

type Service struct {
	secret []byte
}

func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// Issue signs p with the given lifetime. The jti and expiry are filled in here.
func (s *Service) Issue(p Payload, ttl time.Duration) (string, error) {
	p.ID = uuid.New().String()
	p.Expires = time.Now().Add(ttl).Unix()
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding.EncodeToString(body)
	return enc + "." + s.sign(enc), nil
}

// Redeem verifies signature, purpose and expiry, in that order. Any failure is
// ErrInvalid; the payload is only returned on full success.
func (s *Service) Redeem(tok string, want Purpose) (Payload, error) {
	enc, sig, ok := strings.Cut(tok, ".")
	if !ok {
		return Payload{}, ErrInvalid
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(enc))) {
		return Payload{}, ErrInvalid
	}
	body, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return Payload{}, ErrInvalid
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Payload{}, ErrInvalid
	}
	if p.Purpose != want {
		return Payload{}, ErrInvalid
	}
	if time.Now().Unix() >= p.Expires {
		return Payload{}, ErrInvalid
	}
	return p, nil
}

func (s *Service) sign(enc string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(enc))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
