package oauth2

import (
	"errors"
	"testing"
)

func TestAuthorizationCodeRoundTrip(t *testing.T) {
	svc := &TokenService{masterKey: "test-master-key"}
	code, err := svc.NewAuthorizationCode("grant-1", "client-1")
	if err != nil {
		t.Fatalf("NewAuthorizationCode failed: %v", err)
	}
	claims, err := svc.parseAuthorizationCode(code)
	if err != nil {
		t.Fatalf("parseAuthorizationCode failed: %v", err)
	}
	if claims.GrantID != "grant-1" || claims.ClientID != "client-1" {
		t.Fatalf("claims = %+v, want grant-1/client-1", claims)
	}
}

// TestAuthorizationCodeWrongKey verifies a code signed under a different
// key is rejected as an invalid grant.
func TestAuthorizationCodeWrongKey(t *testing.T) {
	issuer := &TokenService{masterKey: "key-one"}
	verifier := &TokenService{masterKey: "key-two"}
	code, err := issuer.NewAuthorizationCode("grant-1", "client-1")
	if err != nil {
		t.Fatalf("NewAuthorizationCode failed: %v", err)
	}
	_, err = verifier.parseAuthorizationCode(code)
	var oerr *Error
	if !errors.As(err, &oerr) || oerr.Code != CodeInvalidGrant {
		t.Fatalf("parseAuthorizationCode error = %v, want %s", err, CodeInvalidGrant)
	}
}

func TestAuthorizationCodeGarbage(t *testing.T) {
	svc := &TokenService{masterKey: "test-master-key"}
	if _, err := svc.parseAuthorizationCode("not-a-jwt"); err == nil {
		t.Fatal("parseAuthorizationCode accepted garbage input")
	}
}
