package auth

import (
	"errors"
	"testing"
	"time"
)

func testManager(t *testing.T) *JWTManager {
	t.Helper()
	return NewJWTManager("test-secret", time.Hour)
}

func TestAuthenticateSocketWithToken(t *testing.T) {
	m := testManager(t)
	token, err := m.GenerateAccessToken(42, "ana@example.com", "Ana")
	if err != nil {
		t.Fatal(err)
	}

	id, err := AuthenticateSocket(m, SocketCredentials{Token: token}, true)
	if err != nil {
		t.Fatal(err)
	}
	if id.ID != "42" || id.AccountID != 42 || id.Name != "Ana" || id.IsGuest {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestAuthenticateSocketInvalidTokenFallsBackToGuest(t *testing.T) {
	m := testManager(t)

	id, err := AuthenticateSocket(m, SocketCredentials{
		Token:     "expired-or-garbage",
		GuestID:   "guest-abc",
		GuestName: "  Drifter ",
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	if !id.IsGuest || id.ID != "guest-abc" || id.Name != "Drifter" || id.AccountID != 0 {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestAuthenticateSocketRejectsWithoutCredentials(t *testing.T) {
	m := testManager(t)

	cases := []SocketCredentials{
		{},
		{Token: "garbage"},
		{GuestID: "g1"},                    // no name
		{GuestID: "g1", GuestName: "   "}, // blank name
	}
	for _, creds := range cases {
		if _, err := AuthenticateSocket(m, creds, true); !errors.Is(err, ErrNoCredentials) {
			t.Fatalf("expected ErrNoCredentials for %+v, got %v", creds, err)
		}
	}
}

func TestAuthenticateSocketGuestsDisabled(t *testing.T) {
	m := testManager(t)

	if _, err := AuthenticateSocket(m, SocketCredentials{GuestID: "g1", GuestName: "Drifter"}, false); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected guest rejection, got %v", err)
	}

	// a valid token still works with guests disabled
	token, err := m.GenerateAccessToken(7, "b@example.com", "Ben")
	if err != nil {
		t.Fatal(err)
	}
	id, err := AuthenticateSocket(m, SocketCredentials{Token: token}, false)
	if err != nil || id.AccountID != 7 {
		t.Fatalf("token auth should be unaffected, got %+v, %v", id, err)
	}
}
