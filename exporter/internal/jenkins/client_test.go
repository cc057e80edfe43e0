package jenkins

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obsidianstack/jenkins-exporter/exporter/internal/config"
)

// newTestClient points a Client at srv with short timeouts.
func newTestClient(t *testing.T, baseURL, user, pass string) *Client {
	t.Helper()
	return New(config.JenkinsConfig{
		URL:            baseURL,
		Username:       user,
		Password:       pass,
		RequestTimeout: 2 * time.Second,
		LockTimeout:    2 * time.Second,
	})
}

func TestRequest_BasicAuth(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "admin", "p@ss:word")
	if _, ok := c.Request(context.Background(), "/queue", nil, nil); !ok {
		t.Fatal("Request() ok = false, want true")
	}

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:p@ss:word"))
	if got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
}

func TestRequest_NoAuthWithoutUsername(t *testing.T) {
	var present bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["Authorization"]
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "", "")
	if _, ok := c.Request(context.Background(), "/queue", nil, nil); !ok {
		t.Fatal("Request() ok = false, want true")
	}
	if present {
		t.Error("Authorization header set without a username")
	}
}

func TestURL(t *testing.T) {
	c := newTestClient(t, "http://jenkins:8080", "", "")

	tests := []struct {
		name   string
		path   string
		params url.Values
		want   string
	}{
		{"nil params", "/queue", nil, "http://jenkins:8080/queue/api/json"},
		{"empty params", "/computer", url.Values{}, "http://jenkins:8080/computer/api/json"},
		{
			"tree filter",
			"/pluginManager",
			url.Values{"tree": {"plugins[shortName,version,enabled,hasUpdate]"}},
			"http://jenkins:8080/pluginManager/api/json?tree=plugins%5BshortName%2Cversion%2Cenabled%2ChasUpdate%5D",
		},
		{"space as plus", "/queue", url.Values{"q": {"a b"}}, "http://jenkins:8080/queue/api/json?q=a+b"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.URL(tc.path, tc.params); got != tc.want {
				t.Errorf("URL() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRequest_SendsQueryOnlyWhenPresent(t *testing.T) {
	var rawQueries []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		rawQueries = append(rawQueries, r.URL.RawQuery)
		mu.Unlock()
		if r.URL.Path != "/pluginManager/api/json" && r.URL.Path != "/queue/api/json" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"plugins":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "", "")
	c.Request(context.Background(), "/queue", nil, nil)
	c.Plugins(context.Background())

	if len(rawQueries) != 2 {
		t.Fatalf("got %d requests, want 2", len(rawQueries))
	}
	if rawQueries[0] != "" {
		t.Errorf("query without params = %q, want empty", rawQueries[0])
	}
	if rawQueries[1] != "tree=plugins%5BshortName%2Cversion%2Cenabled%2ChasUpdate%5D" {
		t.Errorf("plugin query = %q", rawQueries[1])
	}
}

func TestRequest_Version(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Jenkins", "2.426.1")
		_, _ = w.Write([]byte(`{"items":[{"inQueueSince":1000},{"inQueueSince":5000}]}`))
	}))
	defer srv.Close()

	q, resp, ok := newTestClient(t, srv.URL, "", "").Queue(context.Background())
	if !ok {
		t.Fatal("Queue() ok = false, want true")
	}
	if resp.Version != "2.426.1" {
		t.Errorf("Version = %q, want 2.426.1", resp.Version)
	}
	if len(q.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(q.Items))
	}
	if oldest, _ := q.OldestSince(); oldest != 1000 {
		t.Errorf("OldestSince() = %d, want 1000", oldest)
	}
}

func TestRequest_MissingVersionHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	_, resp, ok := newTestClient(t, srv.URL, "", "").Queue(context.Background())
	if !ok {
		t.Fatal("Queue() ok = false, want true")
	}
	if resp.Version != "" {
		t.Errorf("Version = %q, want empty", resp.Version)
	}
}

func TestRequest_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusNotFound)
		}},
		{"forbidden", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}},
		{"no content", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}},
		{"malformed json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"items": [`))
		}},
		{"html login page", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>login</html>`))
		}},
		{"wrong shape", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"items": "none"}`))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			q, resp, ok := newTestClient(t, srv.URL, "", "").Queue(context.Background())
			if ok || q != nil || resp != nil {
				t.Errorf("Queue() = (%v, %v, %v), want absent", q, resp, ok)
			}
		})
	}
}

func TestRequest_ConnectFailure(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", "", "")
	if _, ok := c.Request(context.Background(), "/queue", nil, nil); ok {
		t.Fatal("Request() ok = true for unreachable host")
	}
}

func TestRequest_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New(config.JenkinsConfig{
		URL:            srv.URL,
		RequestTimeout: 50 * time.Millisecond,
		LockTimeout:    time.Second,
	})
	if _, ok := c.Request(context.Background(), "/queue", nil, nil); ok {
		t.Fatal("Request() ok = true for a request exceeding the timeout")
	}
}

func TestRequest_LockTimeout(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(config.JenkinsConfig{
		URL:            srv.URL,
		RequestTimeout: time.Second,
		LockTimeout:    30 * time.Millisecond,
	})

	// Hold the client as if another request were in flight.
	if err := c.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	start := time.Now()
	_, ok := c.Request(context.Background(), "/queue", nil, nil)
	elapsed := time.Since(start)
	c.sem.Release(1)

	if ok {
		t.Fatal("Request() ok = true while the client lock was held")
	}
	if hits.Load() != 0 {
		t.Errorf("server hit %d times, want 0", hits.Load())
	}
	if elapsed > time.Second {
		t.Errorf("lock wait took %v, want about the lock timeout", elapsed)
	}

	// Once released, requests go through again.
	if _, ok := c.Request(context.Background(), "/queue", nil, nil); !ok {
		t.Error("Request() ok = false after the lock was released")
	}
}

func TestRequest_Serialized(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		w.Header().Set("X-Jenkins", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`{"id":"` + r.URL.Query().Get("id") + `"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "", "")

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			var body struct {
				ID string `json:"id"`
			}
			resp, ok := c.Request(context.Background(), "/queue", url.Values{"id": {id}}, &body)
			if !ok {
				t.Errorf("request %s failed", id)
				return
			}
			if body.ID != id || resp.Version != id {
				t.Errorf("request %s got body %q version %q", id, body.ID, resp.Version)
			}
		}(i)
	}
	wg.Wait()

	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent upstream requests = %d, want 1", got)
	}
}

func TestComputerSet_Agents(t *testing.T) {
	cs := &ComputerSet{Computers: []Computer{
		{Class: "hudson.model.Hudson$MasterComputer", DisplayName: "Built-In Node"},
		{Class: AgentClass, DisplayName: "w1"},
		{Class: AgentClass, DisplayName: "w2", TemporarilyOffline: true},
	}}

	agents := cs.Agents()
	if len(agents) != 2 {
		t.Fatalf("Agents() = %d entries, want 2", len(agents))
	}
	if agents[0].DisplayName != "w1" || !agents[0].Up() {
		t.Errorf("agents[0] = %+v, want w1 up", agents[0])
	}
	if agents[1].Up() {
		t.Errorf("agents[1] = %+v, want down", agents[1])
	}
}
