//go:build integration
// +build integration

package http

import (
	"net/http"
	"sync"
)

// Sidecar stands in for the Envoy admin endpoint that jobs call once they
// are done.
type Sidecar struct {
	sync.Mutex
	quitCalls int
}

func (s *Sidecar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/quitquitquit" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	s.Lock()
	s.quitCalls++
	s.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (s *Sidecar) QuitCalls() int {
	s.Lock()
	defer s.Unlock()
	return s.quitCalls
}

func (s *Sidecar) Reset() {
	s.Lock()
	defer s.Unlock()
	s.quitCalls = 0
}
