package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// statusServer exposes the learner's liveness, per-actor stats and process
// metrics over HTTP. It is optional and only started when a status address
// is configured.
type statusServer struct {
	srv *http.Server
	ln  net.Listener
}

// availableResponse is the body of GET /available.
type availableResponse struct {
	Status    string    `json:"status"`
	Actors    int       `json:"actors"`
	Reliable  bool      `json:"reliable"`
	Timestamp time.Time `json:"timestamp"`
}

func startStatusServer(addr string, l *LearnerNode) (*statusServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind status endpoint %s: %w", addr, err)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /available", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, availableResponse{
			Status:    "ok",
			Actors:    len(l.Actors()),
			Reliable:  l.cfg.Reliable,
			Timestamp: time.Now().UTC(),
		})
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, l.Stats())
	})

	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	s := &statusServer{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln: ln,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("status endpoint failed: %v", err)
		}
	}()

	log.Infof("status endpoint listening on %s", ln.Addr())
	return s, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("failed to encode status response: %v", err)
	}
}

func (s *statusServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.srv.Close()
	}
}

// Addr returns the bound address of the status listener.
func (s *statusServer) Addr() string {
	return s.ln.Addr().String()
}
