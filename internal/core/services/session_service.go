package services

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/pkg/utils"
	"huddle/pkg/validation"
)

const sessionIssuer = "huddle"

// SessionClaims carries the presence key and display nick of a chat user.
// The subject is the user id.
type SessionClaims struct {
	Nick string `json:"nick"`
	jwt.RegisteredClaims
}

type sessionService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionService issues HMAC-signed session tokens. They disambiguate users
// who pick the same nick; they do not authenticate anyone.
func NewSessionService(secret string, ttl time.Duration, opts ...Option) ports.SessionService {
	o := buildOptions(opts)
	return &sessionService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    o.now,
	}
}

func (s *sessionService) Issue(nick string) (*domain.Session, error) {
	nick = strings.TrimSpace(nick)
	if err := validation.ValidateNick(nick); err != nil {
		return nil, errors.Join(domain.ErrInvalidNick, err)
	}

	now := s.now()
	userID := domain.UserID(utils.NewUserID())
	expires := now.Add(s.ttl)

	claims := &SessionClaims{
		Nick: nick,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(userID),
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		Token:     token,
		UserID:    userID,
		Nick:      nick,
		ExpiresAt: expires,
	}, nil
}

func (s *sessionService) Resolve(token string) (domain.Participant, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return domain.Participant{}, domain.ErrInvalidSession
	}
	if claims.Subject == "" || claims.Nick == "" {
		return domain.Participant{}, domain.ErrInvalidSession
	}

	return domain.Participant{ID: domain.UserID(claims.Subject), Nick: claims.Nick}, nil
}
