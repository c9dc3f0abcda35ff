package admintoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func makeToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-signing-secret"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func TestValidate_EmptyTokenIsAccepted(t *testing.T) {
	c, err := Validate("", "https://ims-na1.adobelogin.com", time.Now())
	if err != nil {
		t.Fatalf("expected no error for an unconfigured token, got %v", err)
	}
	if c.Issuer != "" {
		t.Errorf("expected zero-value claims, got %+v", c)
	}
}

func TestValidate_ValidTokenPasses(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	token := makeToken(t, jwt.MapClaims{
		"iss":   "https://ims-na1.adobelogin.com",
		"exp":   now.Add(time.Hour).Unix(),
		"roles": []any{"aem-admin"},
	})

	c, err := Validate(token, "https://ims-na1.adobelogin.com", now)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.Issuer != "https://ims-na1.adobelogin.com" {
		t.Errorf("unexpected issuer: %q", c.Issuer)
	}
	if !c.ExpiresAt.Equal(time.Unix(now.Add(time.Hour).Unix(), 0)) {
		t.Errorf("unexpected expiry: %v", c.ExpiresAt)
	}
}

func TestValidate_ExpiredTokenFails(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	token := makeToken(t, jwt.MapClaims{
		"iss":   "https://ims-na1.adobelogin.com",
		"exp":   now.Add(-time.Hour).Unix(),
		"roles": []any{"aem-admin"},
	})

	_, err := Validate(token, "https://ims-na1.adobelogin.com", now)
	if err == nil {
		t.Fatalf("expected an error for an expired token")
	}
}

func TestValidate_WrongIssuerFails(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	token := makeToken(t, jwt.MapClaims{
		"iss":   "https://some-other-issuer.example",
		"exp":   now.Add(time.Hour).Unix(),
		"roles": []any{"aem-admin"},
	})

	_, err := Validate(token, "https://ims-na1.adobelogin.com", now)
	if err == nil {
		t.Fatalf("expected an error for an unexpected issuer")
	}
}

func TestValidate_MissingRequiredRoleFails(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	token := makeToken(t, jwt.MapClaims{
		"iss":   "https://ims-na1.adobelogin.com",
		"exp":   now.Add(time.Hour).Unix(),
		"roles": []any{"some-other-role"},
	})

	_, err := Validate(token, "https://ims-na1.adobelogin.com", now)
	if err == nil {
		t.Fatalf("expected an error when the required role is absent")
	}
}

func TestValidate_AbsentRolesClaimIsAccepted(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	token := makeToken(t, jwt.MapClaims{
		"iss": "https://ims-na1.adobelogin.com",
		"exp": now.Add(time.Hour).Unix(),
	})

	if _, err := Validate(token, "https://ims-na1.adobelogin.com", now); err != nil {
		t.Fatalf("expected a token without a roles claim to be accepted, got %v", err)
	}
}

func TestValidate_NoExpectedIssuerSkipsIssuerCheck(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	token := makeToken(t, jwt.MapClaims{
		"iss":   "https://anything.example",
		"exp":   now.Add(time.Hour).Unix(),
		"roles": []any{"aem-admin"},
	})

	if _, err := Validate(token, "", now); err != nil {
		t.Fatalf("expected issuer check to be skipped when expectIssuer is empty, got %v", err)
	}
}
