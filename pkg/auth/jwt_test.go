package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueValidateRoundTrip(t *testing.T) {
	a := NewAuthority("test-secret")

	cred, err := a.Issue("room-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := a.Validate(cred)
	if err != nil {
		t.Fatal(err)
	}
	if claims.RoomID != "room-1" {
		t.Fatalf("expected room-1, got %q", claims.RoomID)
	}
	if claims.Token == "" {
		t.Fatal("expected a non-empty participant token")
	}
}

func TestIssueMintsDistinctTokens(t *testing.T) {
	a := NewAuthority("test-secret")

	c1, _ := a.Issue("room-1", time.Minute)
	c2, _ := a.Issue("room-1", time.Minute)

	cl1, _ := a.Validate(c1)
	cl2, _ := a.Validate(c2)
	if cl1.Token == cl2.Token {
		t.Fatal("two join calls must yield distinct participant tokens")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	cred, err := NewAuthority("secret-a").Issue("room-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewAuthority("secret-b").Validate(cred); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	a := NewAuthority("test-secret")
	cred, err := a.Issue("room-1", -time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.Validate(cred); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for expired credential, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	a := NewAuthority("test-secret")
	if _, err := a.Validate("not-a-jwt"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/messages?roomId=r", nil)
	r.Header.Set("Authorization", "Bearer abc")
	if got := FromRequest(r); got != "abc" {
		t.Fatalf("expected abc from bearer header, got %q", got)
	}

	r = httptest.NewRequest("GET", "/ws?roomId=r&token=xyz", nil)
	if got := FromRequest(r); got != "xyz" {
		t.Fatalf("expected xyz from query param, got %q", got)
	}

	r = httptest.NewRequest("GET", "/messages", nil)
	if got := FromRequest(r); got != "" {
		t.Fatalf("expected empty credential, got %q", got)
	}
}
