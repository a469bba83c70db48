package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utrading/utrading-perp-core/pkg/goplus"
	"github.com/utrading/utrading-perp-core/pkg/logger"
)

// PublisherRef NATS发布器引用接口
type PublisherRef interface {
	IsConnected() bool
}

// StatusProvider /status 中的一个组件
type StatusProvider interface {
	Status() map[string]any
}

// HealthServer HTTP 健康检查、指标和只读查询服务器
type HealthServer struct {
	addr         string
	publisher    PublisherRef
	router       *mux.Router
	server       *http.Server
	mu           sync.RWMutex
	healthy      bool
	healthySince time.Time
	startTime    time.Time
	components   map[string]StatusProvider
}

// NewHealthServer publisher 可为 nil
func NewHealthServer(addr string, publisher PublisherRef) *HealthServer {
	h := &HealthServer{
		addr:         addr,
		publisher:    publisher,
		router:       mux.NewRouter(),
		healthy:      true,
		healthySince: time.Now(),
		startTime:    time.Now(),
		components:   make(map[string]StatusProvider),
	}

	h.router.HandleFunc("/health", h.healthHandler).Methods(http.MethodGet)
	h.router.HandleFunc("/health/ready", h.readyHandler).Methods(http.MethodGet)
	h.router.HandleFunc("/health/live", h.liveHandler).Methods(http.MethodGet)
	h.router.Handle("/metrics", promhttp.Handler())
	h.router.HandleFunc("/status", h.statusHandler).Methods(http.MethodGet)

	return h
}

// AddStatus 注册 /status 组件
func (h *HealthServer) AddStatus(name string, p StatusProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = p
}

// Router 用于挂载查询路由
func (h *HealthServer) Router() *mux.Router {
	return h.router
}

// Start 启动HTTP服务器
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	logger.Info().Str("addr", h.addr).Msg("health server starting")

	goplus.Go(func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("health server error")
		}
	})

	return nil
}

// Stop 停止服务器
func (h *HealthServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.healthy = false
	h.mu.Unlock()

	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.getHealthStatus()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if !h.isReady() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *HealthServer) liveHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := h.getHealthStatus()

	h.mu.RLock()
	comps := make(map[string]any, len(h.components))
	for name, p := range h.components {
		comps[name] = p.Status()
	}
	h.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"health":     status,
		"components": comps,
	})
}

func (h *HealthServer) isReady() bool {
	h.mu.RLock()
	healthy := h.healthy
	h.mu.RUnlock()

	if !healthy {
		return false
	}
	if h.publisher != nil && !h.publisher.IsConnected() {
		return false
	}
	return true
}

func (h *HealthServer) getHealthStatus() HealthStatus {
	h.mu.RLock()
	healthy := h.healthy
	healthySince := h.healthySince
	h.mu.RUnlock()

	natsConnected := false
	if h.publisher != nil {
		natsConnected = h.publisher.IsConnected()
	}

	return HealthStatus{
		Healthy:      healthy,
		HealthySince: healthySince.Format(time.RFC3339),
		Uptime:       time.Since(h.startTime).String(),
		NATS:         NATSStatus{Connected: natsConnected},
	}
}

// HealthStatus 健康状态结构
type HealthStatus struct {
	Healthy      bool       `json:"healthy"`
	HealthySince string     `json:"healthy_since"`
	Uptime       string     `json:"uptime"`
	NATS         NATSStatus `json:"nats"`
}

// NATSStatus NATS连接状态
type NATSStatus struct {
	Connected bool `json:"connected"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("write json response failed")
	}
}
