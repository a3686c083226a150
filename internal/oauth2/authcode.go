package oauth2

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openbusio/backplane/params"
)

type codeClaims struct {
	GrantID  string `json:"grant"`
	ClientID string `json:"cid"`
	jwt.RegisteredClaims
}

// NewAuthorizationCode issues a short-lived signed code binding a grant
// to the client it was approved for.
func (s *TokenService) NewAuthorizationCode(grantID, clientID string) (string, error) {
	claims := codeClaims{
		GrantID:  grantID,
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(params.AuthCodeExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.masterKey))
}

func (s *TokenService) parseAuthorizationCode(code string) (*codeClaims, error) {
	var claims codeClaims
	token, err := jwt.ParseWithClaims(code, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.masterKey), nil
	})
	if err != nil || !token.Valid {
		return nil, NewError(CodeInvalidGrant, "invalid or expired authorization code")
	}
	return &claims, nil
}
