package debugsrv

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	logx "agentsched/pkg/logx"
)

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("X-Debug-Token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestServerServesMetricsAndSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "debugsrv_test_total", Help: "t"})
	reg.MustRegister(c)
	c.Inc()

	s := New(logx.Nop(), reg, func() any {
		return map[string]int{"tasks": 3}
	})
	defer s.Stop(context.Background())

	s.Apply(context.Background(), Config{Enabled: true, Addr: "127.0.0.1:0"})
	addr := s.Addr()
	if addr == "" {
		t.Fatal("server did not start")
	}

	resp := get(t, "http://"+addr+"/metrics", "")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "debugsrv_test_total") {
		t.Fatalf("metrics body missing counter: %s", body)
	}

	resp = get(t, "http://"+addr+"/debug/scheduler", "")
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("snapshot status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"tasks":3`) {
		t.Fatalf("unexpected snapshot body: %s", body)
	}
}

func TestServerTokenGuard(t *testing.T) {
	s := New(logx.Nop(), prometheus.NewRegistry(), nil)
	defer s.Stop(context.Background())

	s.Apply(context.Background(), Config{Enabled: true, Addr: "127.0.0.1:0", Token: "sekrit"})
	addr := s.Addr()
	if addr == "" {
		t.Fatal("server did not start")
	}

	resp := get(t, "http://"+addr+"/metrics", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unauthenticated request: status %d, want 403", resp.StatusCode)
	}

	resp = get(t, "http://"+addr+"/metrics", "sekrit")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated request: status %d, want 200", resp.StatusCode)
	}
}

func TestServerRefusesInsecureNonLoopback(t *testing.T) {
	s := New(logx.Nop(), prometheus.NewRegistry(), nil)
	defer s.Stop(context.Background())

	s.Apply(context.Background(), Config{Enabled: true, Addr: "0.0.0.0:0"})
	if got := s.Addr(); got != "" {
		t.Fatalf("server started on %s despite missing token", got)
	}
}

func TestServerDisable(t *testing.T) {
	s := New(logx.Nop(), prometheus.NewRegistry(), nil)

	s.Apply(context.Background(), Config{Enabled: true, Addr: "127.0.0.1:0"})
	if s.Addr() == "" {
		t.Fatal("server did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Apply(ctx, Config{Enabled: false})
	if got := s.Addr(); got != "" {
		t.Fatalf("server still listening on %s", got)
	}
}
