package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// testGuard allows loopback so executors can hit httptest servers.
func testGuard() *Guard {
	return NewGuard(WithAllowPrivate())
}

func TestFetchPage_ReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); !strings.Contains(got, "MissionGate") {
			t.Errorf("User-Agent = %q, want MissionGate identifier", got)
		}
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	exec := NewFetchPageExecutor(testGuard())
	out, err := exec.Execute(context.Background(), map[string]interface{}{"url": srv.URL})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Fatalf("output = %q, want body content", out)
	}
}

func TestFetchPage_BlockedURLReturnsReasonNotError(t *testing.T) {
	exec := NewFetchPageExecutor(NewGuard())
	out, err := exec.Execute(context.Background(), map[string]interface{}{"url": "http://169.254.169.254/latest/meta-data/"})
	if err != nil {
		t.Fatalf("Execute error: %v, want nil (blocked fetches report via output)", err)
	}
	if !strings.Contains(out, "Blocked:") {
		t.Fatalf("output = %q, want Blocked message", out)
	}
}

func TestFetchPage_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	exec := NewFetchPageExecutor(testGuard())
	out, err := exec.Execute(context.Background(), map[string]interface{}{"url": srv.URL})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(out, "HTTP error 404") {
		t.Fatalf("output = %q, want HTTP error 404 message", out)
	}
}

func TestFetchPage_TruncatesLongBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", fetchMaxChars+500)))
	}))
	defer srv.Close()

	exec := NewFetchPageExecutor(testGuard())
	out, err := exec.Execute(context.Background(), map[string]interface{}{"url": srv.URL})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(out, "[Truncated") {
		t.Fatal("output missing truncation marker")
	}
	if len(out) > fetchMaxChars+100 {
		t.Fatalf("output length = %d, want near %d", len(out), fetchMaxChars)
	}
}

func TestFetchPage_MissingURLArgument(t *testing.T) {
	exec := NewFetchPageExecutor(testGuard())
	out, err := exec.Execute(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(out, "requires a 'url'") {
		t.Fatalf("output = %q, want missing-argument message", out)
	}
}

func TestFetchPage_CanceledContextIsRealError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewFetchPageExecutor(testGuard())
	_, err := exec.Execute(ctx, map[string]interface{}{"url": srv.URL})
	if err == nil {
		t.Fatal("Execute with canceled context returned nil error, want context error")
	}
}

func TestFetchPage_FollowsRedirects(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, srv.URL+"/end", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("landed"))
	}))
	defer srv.Close()

	exec := NewFetchPageExecutor(testGuard())
	out, err := exec.Execute(context.Background(), map[string]interface{}{"url": srv.URL + "/start"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(out, "landed") {
		t.Fatalf("output = %q, want redirect target body", out)
	}
}

func TestFetchPage_RedirectLimit(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	exec := NewFetchPageExecutor(testGuard())
	out, err := exec.Execute(context.Background(), map[string]interface{}{"url": srv.URL + "/loop"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !strings.Contains(out, "redirects") {
		t.Fatalf("output = %q, want redirect-limit message", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 100); got != "short" {
		t.Fatalf("truncate(short) = %q", got)
	}
	got := truncate(strings.Repeat("a", 20), 10)
	if !strings.HasPrefix(got, strings.Repeat("a", 10)) {
		t.Fatalf("truncated output does not keep prefix: %q", got)
	}
	if !strings.Contains(got, "[Truncated - showing first 10 characters]") {
		t.Fatalf("truncated output missing marker: %q", got)
	}
}
