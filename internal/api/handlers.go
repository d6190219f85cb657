package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/aussie-atis/internal/atis"
	"github.com/yegors/aussie-atis/internal/geometry"
	"github.com/yegors/aussie-atis/internal/service"
	"github.com/yegors/aussie-atis/internal/websocket"
	"github.com/yegors/aussie-atis/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	maxDecodeBodyBytes  = 1 << 20
)

// Handler contains the API handlers
type Handler struct {
	atisService *service.Service
	wsServer    *websocket.Server
	decoder     atis.Decoder
	logger      *logger.Logger
	startedAt   time.Time
}

// NewHandler creates a new API handler
func NewHandler(atisService *service.Service, wsServer *websocket.Server, log *logger.Logger) *Handler {
	return &Handler{
		atisService: atisService,
		wsServer:    wsServer,
		logger:      log.Named("api-handler"),
		startedAt:   time.Now(),
	}
}

// AirportSummary is one row of the airport list
type AirportSummary struct {
	Code          string     `json:"code"`
	Name          string     `json:"name"`
	Latitude      float64    `json:"latitude"`
	Longitude     float64    `json:"longitude"`
	ElevationFeet float64    `json:"elevation_feet"`
	State         string     `json:"state"`
	LastUpdated   *time.Time `json:"last_updated"`
}

// DecodeRequest is the body accepted by the decode endpoint
type DecodeRequest struct {
	ATIS    *string `json:"atis"`
	METAR   *string `json:"metar"`
	TAF     *string `json:"taf"`
	Airport string  `json:"airport,omitempty"` // Optional, enables the runway assessment
}

// DecodeResponse is returned by the decode endpoint
type DecodeResponse struct {
	Record      atis.Record          `json:"record"`
	State       string               `json:"state"`
	Diagnostics []atis.Diagnostic    `json:"diagnostics"`
	Assessment  *geometry.Assessment `json:"assessment,omitempty"`
}

// GetHealth reports service liveness
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"running":        h.atisService.IsStarted(),
		"airports":       len(h.atisService.Airports()),
		"cached":         h.atisService.CachedCount(),
		"ws_clients":     h.wsServer.ClientCount(),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// GetAirports lists the configured airports with their current state
func (h *Handler) GetAirports(w http.ResponseWriter, r *http.Request) {
	airports := h.atisService.Airports()
	out := make([]AirportSummary, 0, len(airports))

	for _, a := range airports {
		summary := AirportSummary{
			Code:          a.Code,
			Name:          a.Name,
			Latitude:      a.Position.Latitude,
			Longitude:     a.Position.Longitude,
			ElevationFeet: a.Position.ElevationFeet,
			State:         "Unknown",
		}
		if entry, _ := h.atisService.Get(a.Code); entry != nil {
			summary.State = entry.State
			fetched := entry.FetchedAt
			summary.LastUpdated = &fetched
		}
		out = append(out, summary)
	}

	WriteJSON(w, http.StatusOK, out)
}

// GetAllATIS returns every cached entry
func (h *Handler) GetAllATIS(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.atisService.All())
}

// GetATIS returns the latest entry for one airport
func (h *Handler) GetATIS(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	entry, err := h.atisService.Get(code)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if entry == nil {
		WriteError(w, http.StatusServiceUnavailable, "ATIS not fetched yet")
		return
	}

	WriteJSON(w, http.StatusOK, entry)
}

// GetATISHistory returns stored snapshots for one airport
func (h *Handler) GetATISHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	history, err := h.atisService.History(code, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if history == nil {
		WriteJSON(w, http.StatusOK, []any{})
		return
	}

	WriteJSON(w, http.StatusOK, history)
}

// RefreshATIS fetches one airport immediately
func (h *Handler) RefreshATIS(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	entry, err := h.atisService.RefreshNow(r.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrUnknownAirport) {
			h.writeServiceError(w, err)
			return
		}
		h.logger.Warn("Manual refresh failed",
			logger.String("airport", code),
			logger.Error(err))
		WriteJSON(w, http.StatusBadGateway, entry)
		return
	}

	WriteJSON(w, http.StatusOK, entry)
}

// DecodeATIS decodes text posted by the caller without fetching anything
func (h *Handler) DecodeATIS(w http.ResponseWriter, r *http.Request) {
	var req DecodeRequest
	body := io.LimitReader(r.Body, maxDecodeBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.logger.Debug("Invalid decode request", logger.Error(err))
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	res := h.decoder.Decode(atis.Input{ATIS: req.ATIS, METAR: req.METAR, TAF: req.TAF})
	resp := DecodeResponse{
		Record:      res.Record,
		State:       res.Record.State(),
		Diagnostics: res.Diagnostics,
	}
	if resp.Diagnostics == nil {
		resp.Diagnostics = []atis.Diagnostic{}
	}

	if req.Airport != "" {
		a, err := h.atisService.Airport(req.Airport)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		resp.Assessment = geometry.Assess(&res.Record, a.Position, res.Record.DecodedAt)
	}

	WriteJSON(w, http.StatusOK, resp)
}

// HandleMessage answers a subscribe request with the current entries for the
// subscribed airports
func (h *Handler) HandleMessage(client *websocket.Client, messageType string, data json.RawMessage) error {
	if messageType != websocket.MessageTypeSubscribe {
		return nil
	}

	for _, entry := range h.atisService.All() {
		if !client.Wants(entry.Airport) {
			continue
		}
		client.SendMessage(&websocket.Message{
			Type:    websocket.MessageTypeATISUpdate,
			Data:    entry,
			Airport: entry.Airport,
		})
	}
	return nil
}

// PushUpdate forwards a changed entry to WebSocket clients
func (h *Handler) PushUpdate(entry *service.Entry) {
	h.wsServer.BroadcastUpdate(entry.Airport, entry)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrUnknownAirport) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error("Request failed", logger.Error(err))
	WriteError(w, http.StatusInternalServerError, "Internal Server Error")
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteError writes a JSON error body
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}
