package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"inviqa/notification-relay/log"
)

const (
	checkTimeout = time.Second

	checkOK          = "ok"
	checkUnavailable = "unavailable"
	checkSkipped     = "skipped"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type healthzHandler struct {
	dependencies []string
	db           Pinger
	dial         func(ctx context.Context, network, addr string) (net.Conn, error)
}

type healthReport struct {
	Healthy      bool              `json:"healthy"`
	Database     string            `json:"database"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func NewHealthzHandler(dependencies []string, db Pinger) http.Handler {
	d := &net.Dialer{Timeout: checkTimeout}

	return &healthzHandler{
		dependencies: dependencies,
		db:           db,
		dial:         d.DialContext,
	}
}

// ServeHTTP answers liveness with a database ping. With ?readiness=1 the
// Kafka and Redis addresses must also accept connections, but only once the
// database is reachable.
func (h *healthzHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), checkTimeout)
	defer cancel()

	report := healthReport{Healthy: true, Database: checkOK}
	if err := h.db.PingContext(ctx); err != nil {
		log.Logger.WithError(err).Debug("database is not available or there is a problem with connectivity")
		report.Healthy = false
		report.Database = checkUnavailable
	}

	if req.URL.Query().Get("readiness") == "1" && len(h.dependencies) > 0 {
		report.Dependencies = make(map[string]string, len(h.dependencies))
		for _, addr := range h.dependencies {
			if !report.Healthy {
				report.Dependencies[addr] = checkSkipped
				continue
			}
			report.Dependencies[addr] = h.checkDependency(ctx, addr)
		}
		for _, state := range report.Dependencies {
			if state != checkOK {
				report.Healthy = false
			}
		}
	}

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (h *healthzHandler) checkDependency(ctx context.Context, addr string) string {
	conn, err := h.dial(ctx, "tcp", addr)
	if err != nil {
		log.Logger.WithError(err).Debugf("unable to connect to %s", addr)
		return checkUnavailable
	}
	_ = conn.Close()

	return checkOK
}
