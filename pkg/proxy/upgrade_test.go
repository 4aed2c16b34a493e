package proxy

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"gatehouse-hq/gatehouse/pkg/config"
)

// echoUpgradeBackend accepts a WebSocket-style upgrade and then echoes
// every line it receives, prefixed with "echo:".
func echoUpgradeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			http.Error(w, "expected upgrade", http.StatusBadRequest)
			return
		}
		conn, _, err := http.NewResponseController(w).Hijack()
		if err != nil {
			t.Errorf("backend hijack: %v", err)
			return
		}
		defer conn.Close()

		fmt.Fprintf(conn, "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fmt.Fprintf(conn, "echo:%s\n", scanner.Text())
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUpgrade_EndToEndShuttling(t *testing.T) {
	backend := echoUpgradeBackend(t)
	backendURL, err := url.Parse(backend.URL)
	if err != nil {
		t.Fatal(err)
	}

	engine := newTestEngine(t, &config.Config{
		ListenPort: 8080,
		Apps: map[string]config.AppConfig{
			"app1": appConfig("app1.example.com", plainRoute("", "", backendURL.Host)),
		},
	})

	front := httptest.NewServer(engine)
	defer front.Close()
	frontURL, err := url.Parse(front.URL)
	if err != nil {
		t.Fatal(err)
	}

	conn, err := net.DialTimeout("tcp", frontURL.Host, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	fmt.Fprintf(conn, "GET /ws HTTP/1.1\r\n"+
		"Host: app1.example.com\r\n"+
		"Connection: Upgrade\r\n"+
		"Upgrade: websocket\r\n"+
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n"+
		"Sec-WebSocket-Version: 13\r\n\r\n")

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d, want 101", resp.StatusCode)
	}
	if !strings.EqualFold(resp.Header.Get("Upgrade"), "websocket") {
		t.Errorf("Upgrade = %q", resp.Header.Get("Upgrade"))
	}

	fmt.Fprintf(conn, "hello\n")
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "echo:hello\n" {
		t.Errorf("line = %q, want echo:hello", line)
	}

	fmt.Fprintf(conn, "again\n")
	line, err = br.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "echo:again\n" {
		t.Errorf("line = %q", line)
	}
}

func TestUpgrade_BackendDecline(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no upgrades here", http.StatusForbidden)
	}))
	defer backend.Close()
	backendURL, err := url.Parse(backend.URL)
	if err != nil {
		t.Fatal(err)
	}

	engine := newTestEngine(t, &config.Config{
		ListenPort: 8080,
		Apps: map[string]config.AppConfig{
			"app1": appConfig("app1.example.com", plainRoute("", "", backendURL.Host)),
		},
	})

	r := httptest.NewRequest("GET", "http://app1.example.com/ws", nil)
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want the backend's 403 relayed", w.Code)
	}
}
