package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hrportal/portal/sdk/golang/internal/clock"
)

func TestWSURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:5000", "ws://localhost:5000/realtime"},
		{"https://hr.example.com/", "wss://hr.example.com/realtime"},
		{"https://hr.example.com/portal", "wss://hr.example.com/portal/realtime"},
	}
	for _, tt := range tests {
		if got := NewClient("", WithBaseURL(tt.base)).WSURL(); got != tt.want {
			t.Errorf("WSURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
	if got := NewClient("").BaseURL(); got != DefaultBaseURL {
		t.Errorf("default BaseURL = %q", got)
	}
}

func TestNewSocketDropsClientTimeout(t *testing.T) {
	c := NewClient("tok", WithTimeout(3*time.Second))
	sock := c.NewSocket(nil)
	if sock.config.HTTPClient.Timeout != 0 {
		t.Errorf("socket dial inherits client timeout %v", sock.config.HTTPClient.Timeout)
	}
	if c.httpClient.Timeout != 3*time.Second {
		t.Errorf("client timeout mutated to %v", c.httpClient.Timeout)
	}
	if sock.config.Token != "tok" || sock.config.Codec.Name() != "json" {
		t.Errorf("socket config = %+v", sock.config)
	}
}

type profileServer struct {
	*httptest.Server
	hits atomic.Int32
	auth atomic.Value
}

func newProfileServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *profileServer {
	t.Helper()
	ps := &profileServer{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.hits.Add(1)
		ps.auth.Store(r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(ps.Close)
	return ps
}

func TestProfileClient(t *testing.T) {
	t.Run("response shapes", func(t *testing.T) {
		bodies := map[string]string{
			"/api/users/u1": `{"_id":"u1","name":"Ana","email":"ana@example.com","avatar":"/a.png"}`,
			"/api/users/u2": `{"success":true,"user":{"_id":"u2","name":"Ben"}}`,
			"/api/users/u3": `{"data":{"id":"u3","name":"Cleo"}}`,
			"/api/users/u4": `{"name":"Dee"}`,
		}
		ps := newProfileServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(bodies[r.URL.Path]))
		})
		pc := NewClient("tok", WithBaseURL(ps.URL)).Profiles()

		want := map[string]Profile{
			"u1": {ID: "u1", Name: "Ana", Email: "ana@example.com", Avatar: "/a.png"},
			"u2": {ID: "u2", Name: "Ben"},
			"u3": {ID: "u3", Name: "Cleo"},
			"u4": {ID: "u4", Name: "Dee"},
		}
		for id, w := range want {
			got, err := pc.Profile(context.Background(), id)
			if err != nil {
				t.Fatalf("Profile(%s): %v", id, err)
			}
			if got != w {
				t.Errorf("Profile(%s) = %+v, want %+v", id, got, w)
			}
		}
		if got := ps.auth.Load(); got != "Bearer tok" {
			t.Errorf("Authorization = %v", got)
		}
	})

	t.Run("cached until ttl", func(t *testing.T) {
		ps := newProfileServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"_id":"u1","name":"Ana"}`))
		})
		clk := clock.Fake(testEpoch)
		pc := NewClient("tok", WithBaseURL(ps.URL), WithProfileTTL(time.Minute), withClientClock(clk)).Profiles()
		ctx := context.Background()

		for range 3 {
			if _, err := pc.Profile(ctx, "u1"); err != nil {
				t.Fatal(err)
			}
		}
		if n := ps.hits.Load(); n != 1 {
			t.Fatalf("hits = %d, want 1", n)
		}

		clk.Advance(time.Minute)
		pc.Profile(ctx, "u1")
		if n := ps.hits.Load(); n != 2 {
			t.Fatalf("hits after ttl = %d, want 2", n)
		}

		pc.Forget("u1")
		pc.Profile(ctx, "u1")
		if n := ps.hits.Load(); n != 3 {
			t.Fatalf("hits after Forget = %d, want 3", n)
		}
	})

	t.Run("concurrent lookups share a request", func(t *testing.T) {
		release := make(chan struct{})
		ps := newProfileServer(t, func(w http.ResponseWriter, r *http.Request) {
			<-release
			w.Write([]byte(`{"_id":"u1","name":"Ana"}`))
		})
		pc := NewClient("tok", WithBaseURL(ps.URL)).Profiles()

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if p, err := pc.Profile(context.Background(), "u1"); err != nil || p.Name != "Ana" {
					t.Errorf("Profile = %+v, %v", p, err)
				}
			}()
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()
		if n := ps.hits.Load(); n != 1 {
			t.Errorf("hits = %d, want 1", n)
		}
	})

	t.Run("http error", func(t *testing.T) {
		ps := newProfileServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no such user", http.StatusNotFound)
		})
		pc := NewClient("tok", WithBaseURL(ps.URL)).Profiles()

		_, err := pc.Profile(context.Background(), "ghost")
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("err = %v, want *APIError", err)
		}
		if apiErr.Code != "HTTP_404" {
			t.Errorf("Code = %q", apiErr.Code)
		}

		// Failures are not cached.
		pc.Profile(context.Background(), "ghost")
		if n := ps.hits.Load(); n != 2 {
			t.Errorf("hits = %d, want 2", n)
		}
	})

	t.Run("empty id", func(t *testing.T) {
		pc := NewClient("tok").Profiles()
		if _, err := pc.Profile(context.Background(), ""); err == nil {
			t.Error("expected error for empty id")
		}
	})
}
