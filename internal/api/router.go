package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yegors/aussie-atis/internal/service"
	"github.com/yegors/aussie-atis/internal/websocket"
	"github.com/yegors/aussie-atis/pkg/logger"
)

// Router builds the HTTP routes
type Router struct {
	handler        *Handler
	wsServer       *websocket.Server
	allowedOrigins []string
	logger         *logger.Logger
}

// NewRouter creates a router and registers the handler with the WebSocket server
func NewRouter(atisService *service.Service, wsServer *websocket.Server, allowedOrigins []string, log *logger.Logger) *Router {
	h := NewHandler(atisService, wsServer, log)
	wsServer.SetMessageHandler(h)
	atisService.OnUpdate(h.PushUpdate)

	return &Router{
		handler:        h,
		wsServer:       wsServer,
		allowedOrigins: allowedOrigins,
		logger:         log.Named("api-router"),
	}
}

// Routes returns the configured chi router
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(r.requestLogger)
	router.Use(middleware.Recoverer)
	if len(r.allowedOrigins) > 0 {
		router.Use(r.cors)
	}

	router.Route("/api/v1", func(api chi.Router) {
		api.Get("/health", r.handler.GetHealth)
		api.Get("/airports", r.handler.GetAirports)
		api.Get("/atis", r.handler.GetAllATIS)
		api.Get("/atis/{code}", r.handler.GetATIS)
		api.Get("/atis/{code}/history", r.handler.GetATISHistory)
		api.Post("/atis/{code}/refresh", r.handler.RefreshATIS)
		api.Post("/decode", r.handler.DecodeATIS)
		api.Get("/ws", r.wsServer.HandleConnection)
	})

	return router
}

// requestLogger logs each request with its status and duration
func (r *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

		next.ServeHTTP(ww, req)

		r.logger.Debug("HTTP request",
			logger.String("method", req.Method),
			logger.String("path", req.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(req.Context())))
	})
}

// cors sets CORS headers for allowed origins and answers preflight requests
func (r *Router) cors(next http.Handler) http.Handler {
	allowAll := slices.Contains(r.allowedOrigins, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		origin := req.Header.Get("Origin")
		if origin != "" && (allowAll || slices.Contains(r.allowedOrigins, origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}
