package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientTapSendsKeyAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/kiosk/taps" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Kiosk-Key") != "secret" {
			t.Errorf("key header = %q", r.Header.Get("X-Kiosk-Key"))
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["card_id"] != "aabbcc" {
			t.Errorf("card_id = %q", body["card_id"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"message":"おはようございます","type":"in","duplicate":false,"member":{"id":3,"display_name":"太郎"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/v2/", "secret", time.Second)
	res, err := c.Tap(context.Background(), "aabbcc")
	if err != nil {
		t.Fatalf("Tap: %v", err)
	}
	if !res.OK || res.Type != "in" || res.Member.DisplayName != "太郎" {
		t.Fatalf("res = %+v", res)
	}
}

func TestClientDecodesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error":{"code":"UNKNOWN_CARD","message":"登録されていないカードです"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	_, err := c.Tap(context.Background(), "ffff")
	var api *APIError
	if !errors.As(err, &api) {
		t.Fatalf("err = %v", err)
	}
	if api.Status != http.StatusNotFound || api.Code != "UNKNOWN_CARD" {
		t.Fatalf("api = %+v", api)
	}
	if UserMessage(err) != "登録されていないカードです" {
		t.Errorf("UserMessage = %q", UserMessage(err))
	}
}

func TestClientNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	_, err := c.RegistrationStatus(context.Background(), "tok")
	var api *APIError
	if !errors.As(err, &api) || api.Status != http.StatusBadGateway {
		t.Fatalf("err = %v", err)
	}
}

func TestClientCurrentAnnouncementNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"announcement":null}`))
	}))
	defer srv.Close()

	a, err := NewClient(srv.URL, "k", time.Second).CurrentAnnouncement(context.Background())
	if err != nil || a != nil {
		t.Fatalf("a = %+v err = %v", a, err)
	}
}

func TestUserMessageOnTransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "k", 200*time.Millisecond)
	_, err := c.Tap(context.Background(), "aa")
	if err == nil {
		t.Fatal("expected error")
	}
	if UserMessage(err) == "" {
		t.Error("empty message")
	}
}
