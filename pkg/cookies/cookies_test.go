package cookies_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/picatz/mghttpd/pkg/cookies"
)

func TestCookieHeader(t *testing.T) {
	cookie := &cookies.Cookie{
		Name:  "session",
		Value: "Hello",
	}

	header, err := cookie.Header(cookies.WithPath("/"), cookies.WithMaxAge(60), cookies.WithHttpOnly(true))
	if err != nil {
		t.Fatal(err)
	}

	expected := "session=Hello; Path=/; Max-Age=60; HttpOnly"
	if header != expected {
		t.Fatalf("expected header to be %q, got %q", expected, header)
	}
}

func TestCookieHeaderInvalidName(t *testing.T) {
	cookie := &cookies.Cookie{
		Name:  "bad name",
		Value: "Hello",
	}

	_, err := cookie.Header()
	if !errors.Is(err, cookies.ErrInvalidCookie) {
		t.Fatalf("expected ErrInvalidCookie, got %v", err)
	}
}

func TestCookieEncrypted(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	cookie := &cookies.Cookie{
		Name:  "test",
		Value: "Hello",
	}

	header, err := cookie.Header(cookies.WithEncryptionKeyAES(key))
	if err != nil {
		t.Fatal(err)
	}

	if strings.Contains(header, "Hello") {
		t.Fatalf("expected value to be encrypted, got %q", header)
	}

	// Send the cookie back as a client would.
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Cookie", header)

	got, err := cookies.Get(r, "test", key)
	if err != nil {
		t.Fatal(err)
	}

	if got.Value != "Hello" {
		t.Fatalf("expected cookie value to be %q, got %q", "Hello", got.Value)
	}
}

func TestGetMissing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	if _, err := cookies.Get(r, "missing", nil); !errors.Is(err, http.ErrNoCookie) {
		t.Fatalf("expected http.ErrNoCookie, got %v", err)
	}
}
