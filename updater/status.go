package updater

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RefreshFunc queues an extra update cycle and reports whether it was
// accepted.
type RefreshFunc func(reason string) bool

// ReasonHTTP is passed to RefreshFunc for POST /refresh.
const ReasonHTTP = "http-refresh"

type healthResponse struct {
	Status string  `json:"status"`
	Last   *Result `json:"last,omitempty"`
}

// NewRouter exposes metrics, the result of the last cycle and a manual
// refresh endpoint.
func NewRouter(o *Orchestrator, refresh RefreshFunc) http.Handler {
	initMetrics()

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		code := http.StatusOK
		if last, ok := o.Last(); ok {
			resp.Last = &last
			if last.Status == StatusFailed {
				resp.Status = string(StatusFailed)
				code = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, resp)
	}).Methods(http.MethodGet)
	r.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		if !refresh(ReasonHTTP) {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "an update is already pending"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"message": "update queued"})
	}).Methods(http.MethodPost)

	r.Use(withRequestMetrics)
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("writing status response: %s", err)
	}
}

func withRequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		if statusRequestsTotal != nil {
			statusRequestsTotal.WithLabelValues(route, strconv.Itoa(m.Code)).Inc()
		}
		log.Debugf("%s %s (status=%d dt=%s ua=%q)", r.Method, r.URL, m.Code, m.Duration, r.UserAgent())
	})
}

// StatusServer serves the status router.
type StatusServer struct {
	srv *http.Server
	ln  net.Listener
}

// StartStatusServer listens on addr and serves h in the background.
func StartStatusServer(addr string, h http.Handler) (*StatusServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &StatusServer{
		srv: &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second},
		ln:  ln,
	}
	go func() {
		log.Infof("status HTTP listener at %s", ln.Addr())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("status server: %s", err)
		}
	}()
	return s, nil
}

// Addr returns the address the server listens on.
func (s *StatusServer) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests until ctx is done.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
