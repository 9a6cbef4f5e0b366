package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_GetBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := New(Options{})
	body, final, err := c.GetBody(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetBody: %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("got body %q", body)
	}
	if final != srv.URL {
		t.Fatalf("got final %q, want %q", final, srv.URL)
	}
}

func TestClient_GetBody_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Options{})
	if _, _, err := c.GetBody(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for 404 status")
	}
}

func TestClient_RedirectChainRecorded(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/middle", http.StatusFound)
	})
	mux.HandleFunc("/middle", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("done"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Options{})
	body, final, err := c.GetBody(context.Background(), srv.URL+"/start")
	if err != nil {
		t.Fatalf("GetBody: %v", err)
	}
	if string(body) != "done" {
		t.Fatalf("got body %q", body)
	}
	if final != srv.URL+"/end" {
		t.Fatalf("got final %q", final)
	}
	chain := c.Redirections()
	want := []string{srv.URL + "/start", srv.URL + "/middle", srv.URL + "/end"}
	if len(chain) != len(want) {
		t.Fatalf("expected %d recorded redirections, got %d: %v", len(want), len(chain), chain)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("redirections()[%d] = %q, want %q (chain=%v)", i, chain[i], want[i], chain)
		}
	}
}

func TestClient_ClearRedirections(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("done"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Options{})
	if _, _, err := c.GetBody(context.Background(), srv.URL+"/start"); err != nil {
		t.Fatalf("GetBody: %v", err)
	}
	if len(c.Redirections()) == 0 {
		t.Fatalf("expected recorded redirection before clear")
	}
	c.ClearRedirections()
	if len(c.Redirections()) != 0 {
		t.Fatalf("expected empty chain after ClearRedirections")
	}
}

func TestClient_CustomHeaderByPrefix(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Custom")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Options{Headers: []HeaderSpec{
		{URLPrefix: srv.URL, HeaderName: "X-Custom", Value: "yes"},
	}})
	if _, _, err := c.GetBody(context.Background(), srv.URL+"/anything"); err != nil {
		t.Fatalf("GetBody: %v", err)
	}
	if seen != "yes" {
		t.Fatalf("expected custom header to be applied, got %q", seen)
	}
}

func TestClient_UserAgentApplied(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Options{UserAgent: "test-agent/1.0"})
	if _, _, err := c.GetBody(context.Background(), srv.URL); err != nil {
		t.Fatalf("GetBody: %v", err)
	}
	if seen != "test-agent/1.0" {
		t.Fatalf("got User-Agent %q", seen)
	}
}

func TestClient_HeadExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/present", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Options{})
	ok, err := c.HeadExists(context.Background(), srv.URL+"/present")
	if err != nil || !ok {
		t.Fatalf("expected present to exist, ok=%v err=%v", ok, err)
	}
	ok, err = c.HeadExists(context.Background(), srv.URL+"/missing")
	if err != nil || ok {
		t.Fatalf("expected missing to not exist, ok=%v err=%v", ok, err)
	}
}
