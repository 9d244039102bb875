package tokens

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestPoolNext(t *testing.T) {
	pool := NewPool([]string{"first", "second"})
	if got := pool.Remaining(); got != 2 {
		t.Fatalf("got %d remaining, want 2", got)
	}
	token, ok := pool.Next()
	if !ok || token != "first" {
		t.Errorf("got %q/%v, want first/true", token, ok)
	}
	token, ok = pool.Next()
	if !ok || token != "second" {
		t.Errorf("got %q/%v, want second/true", token, ok)
	}
	if token, ok = pool.Next(); ok {
		t.Errorf("got %q from an exhausted pool", token)
	}
	if got := pool.Remaining(); got != 0 {
		t.Errorf("got %d remaining, want 0", got)
	}
}

func TestPoolConcurrentNext(t *testing.T) {
	const users = 64
	tokens := make([]string, users)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("token-%d", i)
	}
	pool := NewPool(tokens)

	claimed := make(chan string, users)
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if token, ok := pool.Next(); ok {
				claimed <- token
			}
		}()
	}
	wg.Wait()
	close(claimed)

	seen := make(map[string]bool)
	for token := range claimed {
		if seen[token] {
			t.Errorf("token %q claimed twice", token)
		}
		seen[token] = true
	}
	if len(seen) != users {
		t.Errorf("got %d distinct tokens, want %d", len(seen), users)
	}
	if got := pool.Remaining(); got != 0 {
		t.Errorf("got %d remaining, want 0", got)
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.txt")
	if err := WriteFile(path, []string{"alpha", "beta"}); err != nil {
		t.Fatal(err)
	}
	pool, err := FromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := pool.Remaining(); got != 2 {
		t.Errorf("got %d tokens, want 2", got)
	}
}

func TestFromFileSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.txt")
	content := "alpha\r\n\r\n  \nbeta\n\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	pool, err := FromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := pool.Remaining(); got != 2 {
		t.Fatalf("got %d tokens, want 2", got)
	}
	if token, _ := pool.Next(); token != "alpha" {
		t.Errorf("got %q, want alpha", token)
	}
}

func TestGenerateForTenant(t *testing.T) {
	signed, err := GenerateForTenant("tenant-a", "secret", DefaultRole)
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := jwt.ParseWithClaims(signed, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		t.Fatalf("got claims of type %T", parsed.Claims)
	}
	if claims.Issuer != "com.dell.karavi" {
		t.Errorf("got issuer %q", claims.Issuer)
	}
	if claims.Subject != "karavi-tenant" {
		t.Errorf("got subject %q", claims.Subject)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "karavi" {
		t.Errorf("got audience %v", claims.Audience)
	}
	if claims.Group != "tenant-a" {
		t.Errorf("got group %q", claims.Group)
	}
	if claims.Role != "CSIBronze" {
		t.Errorf("got role %q", claims.Role)
	}
}

func TestGenerateMintsDistinctTenants(t *testing.T) {
	tokens, err := Generate(3, "secret", DefaultRole)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 3 {
		t.Fatalf("got %d tokens, want 3", len(tokens))
	}
	seen := make(map[string]bool)
	for _, token := range tokens {
		if seen[token] {
			t.Errorf("token minted twice: %q", token)
		}
		seen[token] = true
	}
}

func TestFetch(t *testing.T) {
	var logins uint64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/login" {
			http.NotFound(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "Password123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := atomic.AddUint64(&logins, 1)
		fmt.Fprintf(w, "%q", fmt.Sprintf("session-%d", n))
	}))
	defer server.Close()

	tokens, err := Fetch(context.Background(), nil, FetchConfig{
		Endpoint:    server.URL,
		Username:    "admin",
		Password:    "Password123",
		Count:       5,
		Concurrency: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 5 {
		t.Fatalf("got %d tokens, want 5", len(tokens))
	}
	for i, token := range tokens {
		if !strings.HasPrefix(token, "session-") {
			t.Errorf("token %d: got %q", i, token)
		}
	}
}

func TestFetchBadCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := Fetch(context.Background(), nil, FetchConfig{
		Endpoint: server.URL,
		Username: "admin",
		Password: "wrong",
		Count:    2,
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "status 401") {
		t.Errorf("got error %q", err)
	}
}
