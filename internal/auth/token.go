package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/alphabot-ai/blogapi/internal/model"
)

// Identity is the caller decoded from a verified token.
type Identity struct {
	UserID string     `json:"id"`
	Role   model.Role `json:"role"`
}

// Claims is the token payload: {"user": {"id", "role"}, "exp", "iat"}.
type Claims struct {
	User Identity `json:"user"`
	jwt.RegisteredClaims
}

func (s *Service) IssueToken(user model.User) (string, error) {
	now := s.now()
	claims := Claims{
		User: Identity{UserID: user.ID, Role: user.Role},
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Authenticate verifies signature and expiry. Every failure wraps
// ErrTokenInvalid.
func (s *Service) Authenticate(token string) (Identity, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, errors.Wrap(ErrTokenInvalid, err.Error())
	}
	if !parsed.Valid || claims.User.UserID == "" {
		return Identity{}, ErrTokenInvalid
	}
	return claims.User, nil
}
