package postgrest

import (
	"errors"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

type serviceClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// tokenSource signs short-lived service tokens and reuses each one until it
// is close to expiry.
type tokenSource struct {
	secret []byte
	role   string
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(secret string, role string, ttl time.Duration) *tokenSource {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &tokenSource{secret: []byte(secret), role: role, ttl: ttl, now: time.Now}
}

func (s *tokenSource) Token() (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("remote/postgrest: jwt secret is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if s.token != "" && now.Add(s.ttl/5).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(s.ttl)
	claims := serviceClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "inventory-syncd",
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expires),
		},
		Role: s.role,
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	s.token = signed
	s.expires = expires
	return signed, nil
}
