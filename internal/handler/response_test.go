package handler

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/efreitasn/auctionsim/internal/domain"
	"github.com/efreitasn/auctionsim/internal/feed"
)

func TestWriteJSON_QuoteSentinelsBecomeNull(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, quoteResponse{
		MarketID: "alpha",
		Ask:      feed.Finite(math.Inf(1)),
		Bid:      feed.Finite(95),
		Mid:      feed.Finite(domain.Quote{Ask: math.Inf(1), Bid: 95}.Mid()),
	})

	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, ok := raw["ask"]; !ok || v != nil {
		t.Errorf("ask = %v (present=%v), want explicit null", v, ok)
	}
	if raw["bid"] != float64(95) {
		t.Errorf("bid = %v, want 95", raw["bid"])
	}
	if v, ok := raw["mid"]; !ok || v != nil {
		t.Errorf("mid = %v (present=%v), want explicit null", v, ok)
	}
}

func TestWriteJSON_EmptyBookLevelsAreArrays(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, bookResponse{Bids: levels(nil), Asks: levels(nil)})

	body := w.Body.String()
	if !strings.Contains(body, `"bids":[]`) || !strings.Contains(body, `"asks":[]`) {
		t.Errorf("body = %s, want empty arrays rather than null", body)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusConflict, "shout_not_withdrawable", "Only placed shouts can be withdrawn")

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "shout_not_withdrawable" || resp.Message == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestParseJSON_SubmitShout(t *testing.T) {
	body := `{"trader_id":"t1","side":"bid","price":101.5,"quantity":3}`
	r := httptest.NewRequest(http.MethodPost, "/markets/alpha/shouts", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")

	var req submitShoutRequest
	if err := ParseJSON(r, &req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := submitShoutRequest{TraderID: "t1", Side: "bid", Price: 101.5, Quantity: 3}
	if req != want {
		t.Errorf("req = %+v, want %+v", req, want)
	}
}

func TestParseJSON_Errors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		mention     string
	}{
		{"missing content type", "", `{"side":"bid"}`, "Content-Type"},
		{"wrong content type", "text/plain", `{"side":"bid"}`, "Content-Type"},
		{"empty body", "application/json", ``, "empty"},
		{"truncated body", "application/json", `{"side":`, "not valid JSON"},
		{"unknown field", "application/json", `{"side":"bid","limit":true}`, "limit"},
		{"wrong type", "application/json", `{"quantity":"three"}`, "not valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			var req submitShoutRequest
			err := ParseJSON(r, &req)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("error = %q, should mention %q", err.Error(), tt.mention)
			}
		})
	}
}
