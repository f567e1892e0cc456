package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHubDeliversEvents(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, hub, "user-1")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration happens just after the upgrade completes, so keep
	// broadcasting until the first frame comes back.
	var raw []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.BroadcastBalance("user-1", BalanceUpdate{BalanceEUR: "98.00", Currency: "EUR"})
		_ = conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		if _, message, err := conn.ReadMessage(); err == nil {
			raw = message
			break
		}
	}
	if raw == nil {
		t.Fatal("no balance event received")
	}
	var evt struct {
		Type string `json:"type"`
		Data struct {
			BalanceEUR string `json:"balance_eur"`
			Currency   string `json:"currency"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &evt); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if evt.Type != EventBalance || evt.Data.BalanceEUR != "98.00" || evt.Data.Currency != "EUR" {
		t.Errorf("event = %s", raw)
	}

	hub.BroadcastBalance("user-2", BalanceUpdate{BalanceEUR: "1.00", Currency: "EUR"})
	_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, message, err := conn.ReadMessage(); err == nil && !strings.Contains(string(message), "98.00") {
		t.Errorf("received another user's event: %s", message)
	}
}
