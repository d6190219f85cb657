package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yegors/aussie-atis/internal/service"
	"github.com/yegors/aussie-atis/internal/source"
	"github.com/yegors/aussie-atis/internal/websocket"
	"github.com/yegors/aussie-atis/pkg/logger"
)

type staticFetcher map[string]string

func (f staticFetcher) Fetch(ctx context.Context, code string) (source.Blocks, error) {
	text, ok := f[code]
	if !ok {
		return source.Blocks{}, source.ErrBlockNotFound
	}
	return source.Blocks{ATIS: &text}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := logger.NewNop()
	fetcher := staticFetcher{
		"YMML": "MELBOURNE ATIS P\nRWY: 34 FOR ARR. 27 FOR DEP\nWND: 300/12\nQNH: 1009",
	}
	svc := service.NewService([]service.Airport{{Code: "YMML", Name: "Melbourne"}, {Code: "YSSY", Name: "Sydney"}},
		fetcher, nil, service.Options{}, log)

	ws := websocket.NewServer(log)
	ctx, cancel := context.WithCancel(context.Background())
	go ws.Run(ctx)
	t.Cleanup(cancel)

	ts := httptest.NewServer(NewRouter(svc, ws, []string{"*"}, log).Routes())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, b
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var health map[string]any
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatal(err)
	}
	if health["status"] != "ok" || health["airports"] != float64(2) {
		t.Errorf("health = %v", health)
	}
}

func TestAirportsBeforeFetch(t *testing.T) {
	ts := newTestServer(t)
	_, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/airports", "")

	var airports []AirportSummary
	if err := json.Unmarshal(body, &airports); err != nil {
		t.Fatal(err)
	}
	if len(airports) != 2 || airports[0].Code != "YMML" || airports[0].State != "Unknown" {
		t.Errorf("airports = %+v", airports)
	}

	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/v1/atis/YMML", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status before fetch = %d, want 503", resp.StatusCode)
	}

	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/api/v1/atis/KJFK", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status for unknown airport = %d, want 404", resp.StatusCode)
	}
}

func TestRefreshThenGet(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/v1/atis/ymml/refresh", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d: %s", resp.StatusCode, body)
	}

	resp, body = doRequest(t, http.MethodGet, ts.URL+"/api/v1/atis/YMML", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var entry service.Entry
	if err := json.Unmarshal(body, &entry); err != nil {
		t.Fatal(err)
	}
	if entry.State != "ATIS P" {
		t.Errorf("state = %q", entry.State)
	}
	if entry.Record.RunwayDeparture == nil || *entry.Record.RunwayDeparture != "27" {
		t.Errorf("runway_dep = %v", entry.Record.RunwayDeparture)
	}

	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/atis/YSSY/refresh", "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("failed refresh status = %d, want 502", resp.StatusCode)
	}

	_, body = doRequest(t, http.MethodGet, ts.URL+"/api/v1/atis", "")
	var all []service.Entry
	if err := json.Unmarshal(body, &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("len(all) = %d, want 2", len(all))
	}
}

func TestHistoryWithoutStorage(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/atis/YMML/history?limit=5", "")
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("history = %d %s", resp.StatusCode, body)
	}

	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/api/v1/atis/YMML/history?limit=abc", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", resp.StatusCode)
	}
}

func TestDecode(t *testing.T) {
	ts := newTestServer(t)

	payload := `{"atis": "SYDNEY ATIS K\nRWY: 34L FOR ARR. 34R FOR DEP\nWND: 340/10\nTMP: 21\nQNH: 1018", "metar": "METAR YSSY 140600Z"}`
	resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/v1/decode", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	var got DecodeResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got.Record.RunwayArrival == nil || *got.Record.RunwayArrival != "34L" {
		t.Errorf("runway_arr = %v", got.Record.RunwayArrival)
	}
	if got.Record.QNH == nil || *got.Record.QNH != 1018 {
		t.Errorf("qnh = %v", got.Record.QNH)
	}
	if got.Record.METARRaw == nil || *got.Record.METARRaw != "METAR YSSY 140600Z" {
		t.Errorf("metar = %v", got.Record.METARRaw)
	}
	if got.State != "ATIS K" {
		t.Errorf("state = %q", got.State)
	}
	if got.Assessment != nil {
		t.Errorf("assessment should be omitted without an airport")
	}

	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/decode", `{"atis": "RWY: 16", "airport": "YSSY"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("decode with airport status = %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/decode", `{"atis": `)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid JSON status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/decode", `{"atis": "RWY: 16", "airport": "EGLL"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown airport status = %d, want 404", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/decode", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q", got)
	}
}
