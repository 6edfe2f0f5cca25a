package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func callMeBotServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/text.php":
			if q.Get("user") == "blocked" {
				_, _ = w.Write([]byte("User blocked the bot"))
				return
			}
			_, _ = w.Write([]byte("Message sent to @" + q.Get("user")))
		case "/whatsapp.php":
			if q.Get("apikey") != "key-1" {
				_, _ = w.Write([]byte("APIKey is invalid. ERROR"))
				return
			}
			if q.Get("phone") == "" || q.Get("text") == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte("Message queued"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTelegramChannel(t *testing.T) {
	srv := callMeBotServer(t)
	ch := NewTelegramChannel(srv.URL)

	if !ch.Send(context.Background(), "@maria", "hello") {
		t.Fatalf("expected telegram success")
	}
	if ch.Send(context.Background(), "blocked", "hello") {
		t.Fatalf("expected telegram failure without 'sent to'")
	}
}

func TestWhatsAppChannel(t *testing.T) {
	srv := callMeBotServer(t)

	if !NewWhatsAppChannel(srv.URL, "key-1").Send(context.Background(), "+55 (11) 91234-5678", "hello") {
		t.Fatalf("expected whatsapp success")
	}
	if NewWhatsAppChannel(srv.URL, "wrong").Send(context.Background(), "5511912345678", "hello") {
		t.Fatalf("expected whatsapp failure on error body")
	}
}

func TestChannelNetworkFailure(t *testing.T) {
	srv := callMeBotServer(t)
	url := srv.URL
	srv.Close()

	if NewTelegramChannel(url).Send(context.Background(), "@maria", "hello") {
		t.Fatalf("expected failure when server is down")
	}
}
