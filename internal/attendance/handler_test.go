package attendance

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func TestTapHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, st, _, _ := newTestService(t, 3*time.Second)
	seed(st, "太郎", "aabbcc")

	r := gin.New()
	RegisterRoutes(Groups{Kiosk: r, Member: r, Admin: r}, svc, zap.NewNop())

	tap := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/kiosk/taps", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := tap(`{"card_id":"AA:BB:CC"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("first tap: %d %s", w.Code, w.Body)
	}
	var res TapResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Type != "in" || res.Member.DisplayName != "太郎" {
		t.Errorf("res = %+v", res)
	}

	if w := tap(`{"card_id":"aabbcc"}`); w.Code != http.StatusOK {
		t.Errorf("debounced tap: %d", w.Code)
	}

	w = tap(`{"card_id":"ffff"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown card: %d", w.Code)
	}
	var body struct {
		OK    bool `json:"ok"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.OK || body.Error.Code != "UNKNOWN_CARD" || body.Error.Message == "" {
		t.Errorf("body = %+v", body)
	}

	if w := tap(`{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing card: %d", w.Code)
	}
}
