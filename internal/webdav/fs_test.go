package webdav

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Shubham6444/host/internal/accounts"
	"github.com/Shubham6444/host/internal/auth"
	"github.com/Shubham6444/host/internal/vfs"
)

type fakeTokens struct{}

func (fakeTokens) Authenticate(_ context.Context, token string) (*auth.Claims, error) {
	if token == "alice-token" {
		return &auth.Claims{UserID: 1, Username: "alice", Role: vfs.RoleUser}, nil
	}
	return nil, errors.New("invalid token")
}

type fakePasswords struct{}

func (fakePasswords) Authenticate(_ context.Context, username, password string) (*accounts.User, error) {
	if username == "alice" && password == "wonderland" {
		return &accounts.User{ID: 1, Username: "alice", Role: vfs.RoleUser}, nil
	}
	return nil, errors.New("invalid credentials")
}

func newTestHandler(t *testing.T, limit int64) (http.Handler, string) {
	t.Helper()
	uploads := t.TempDir()
	resolver := vfs.NewResolver(uploads, nil)
	fs := NewSandboxFS(resolver, func(context.Context, int64) (int64, error) { return limit, nil })
	return NewHandler("/dav", fs, fakeTokens{}, fakePasswords{}), filepath.Join(uploads, "1")
}

func do(h http.Handler, method, target, body string, setup func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if setup != nil {
		setup(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func basic(r *http.Request)  { r.SetBasicAuth("alice", "wonderland") }
func bearer(r *http.Request) { r.Header.Set("Authorization", "Bearer alice-token") }

func TestPutAndGetThroughSandbox(t *testing.T) {
	h, sandbox := newTestHandler(t, 1024)

	rec := do(h, http.MethodPut, "/dav/notes.txt", "hello dav", basic)
	if rec.Code != http.StatusCreated {
		t.Fatalf("PUT status = %d: %s", rec.Code, rec.Body.String())
	}
	data, err := os.ReadFile(filepath.Join(sandbox, "notes.txt"))
	if err != nil || string(data) != "hello dav" {
		t.Fatalf("on disk: %q, %v", data, err)
	}

	rec = do(h, http.MethodGet, "/dav/notes.txt", "", bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "hello dav" {
		t.Errorf("GET body = %q", body)
	}
}

func TestTraversalStaysInSandbox(t *testing.T) {
	h, sandbox := newTestHandler(t, 1024)

	rec := do(h, http.MethodPut, "/dav/../../escape.txt", "x", basic)
	if rec.Code < 400 {
		t.Fatalf("PUT status = %d, want rejection", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(filepath.Dir(sandbox)), "escape.txt")); err == nil {
		t.Error("file written outside the sandbox")
	}
}

func TestPutOverLimitLeavesNothing(t *testing.T) {
	h, sandbox := newTestHandler(t, 4)

	rec := do(h, http.MethodPut, "/dav/big.bin", "0123456789", basic)
	if rec.Code < 400 {
		t.Fatalf("PUT over limit status = %d", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(sandbox, "big.bin")); !os.IsNotExist(err) {
		t.Error("oversized file retained")
	}
}

func TestPutOverLimitKeepsExistingFile(t *testing.T) {
	h, sandbox := newTestHandler(t, 4)

	if rec := do(h, http.MethodPut, "/dav/note.txt", "abc", basic); rec.Code != http.StatusCreated {
		t.Fatalf("first PUT status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(h, http.MethodPut, "/dav/note.txt", "0123456789", basic); rec.Code < 400 {
		t.Fatalf("PUT over limit status = %d", rec.Code)
	}

	data, err := os.ReadFile(filepath.Join(sandbox, "note.txt"))
	if err != nil || string(data) != "abc" {
		t.Errorf("existing file = %q, %v; want it untouched", data, err)
	}
	entries, _ := os.ReadDir(sandbox)
	if len(entries) != 1 {
		t.Errorf("sandbox holds %d entries, want only note.txt", len(entries))
	}
}

func TestRootCannotBeDeleted(t *testing.T) {
	h, sandbox := newTestHandler(t, 1024)
	do(h, http.MethodPut, "/dav/keep.txt", "x", basic)

	rec := do(h, http.MethodDelete, "/dav/", "", basic)
	if rec.Code < 400 {
		t.Errorf("DELETE root status = %d", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(sandbox, "keep.txt")); err != nil {
		t.Error("sandbox contents removed")
	}
}

func TestUnauthenticated(t *testing.T) {
	h, _ := newTestHandler(t, 1024)

	for _, setup := range []func(*http.Request){
		nil,
		func(r *http.Request) { r.SetBasicAuth("alice", "wrong") },
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
	} {
		rec := do(h, http.MethodGet, "/dav/", "", setup)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Error("missing WWW-Authenticate")
		}
	}
}
