package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/brainball/internal/resolve"
	"github.com/MrWong99/brainball/internal/resolve/remote"
)

func TestNew_EmptyBaseURL(t *testing.T) {
	if _, err := remote.New("  "); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestResolve_Success(t *testing.T) {
	var gotText, gotPath, gotMethod, gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod, gotCT = r.URL.Path, r.Method, r.Header.Get("Content-Type")
		var body struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotText = body.Text
		_, _ = w.Write([]byte(`{"animal":" Cow ","confidence":0.9}`))
	}))
	defer srv.Close()

	c, err := remote.New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key, err := c.Resolve(context.Background(), "moo")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if key != "cow" {
		t.Errorf("key = %q, want cow", key)
	}
	if gotPath != remote.Path || gotMethod != http.MethodPost || gotCT != "application/json" {
		t.Errorf("request = %s %s (%s)", gotMethod, gotPath, gotCT)
	}
	if gotText != "moo" {
		t.Errorf("text = %q, want moo", gotText)
	}
}

func TestResolve_ErrorClasses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"bad request", http.StatusBadRequest, `{"code":"invalid_request"}`, resolve.ErrInvalid},
		{"service unavailable", http.StatusServiceUnavailable, `{"code":"service_unavailable"}`, resolve.ErrUnavailable},
		{"internal error", http.StatusInternalServerError, ``, resolve.ErrUnavailable},
		{"not found", http.StatusNotFound, ``, resolve.ErrUnavailable},
		{"empty animal", http.StatusOK, `{"animal":""}`, resolve.ErrUnavailable},
		{"missing animal", http.StatusOK, `{}`, resolve.ErrUnavailable},
		{"garbage body", http.StatusOK, `not json`, resolve.ErrUnreachable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, _ := remote.New(srv.URL)
			_, err := c.Resolve(context.Background(), "moo")
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestResolve_ConnectionRefusedIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := remote.New(url)
	_, err := c.Resolve(context.Background(), "moo")
	if !errors.Is(err, resolve.ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable", err)
	}
}

func TestResolve_TimeoutIsUnreachable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, _ := remote.New(srv.URL, remote.WithTimeout(20*time.Millisecond))
	_, err := c.Resolve(context.Background(), "moo")
	if !errors.Is(err, resolve.ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable", err)
	}
}

func TestWithTimeout_LeavesSharedClientAlone(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	shared := &http.Client{}
	c, _ := remote.New(srv.URL, remote.WithHTTPClient(shared), remote.WithTimeout(20*time.Millisecond))
	if shared.Timeout != 0 {
		t.Errorf("shared client timeout = %v, want untouched", shared.Timeout)
	}
	if http.DefaultClient.Timeout != 0 {
		t.Errorf("http.DefaultClient timeout = %v, want untouched", http.DefaultClient.Timeout)
	}
	_, err := c.Resolve(context.Background(), "moo")
	if !errors.Is(err, resolve.ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable from the per-request timeout", err)
	}
}

func TestResolve_InChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := remote.New(srv.URL)
	r := resolve.New(resolve.WithRemote(c))
	got := r.Resolve(context.Background(), "oink")
	if got.Source != resolve.SourceStaticMap || got.AnimalKey != "pig" {
		t.Errorf("got %+v, want pig/static_map after 400", got)
	}
}
