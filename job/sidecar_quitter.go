package job

import (
	"context"
	"net/http"

	"inviqa/notification-relay/log"

	"github.com/pkg/errors"
)

// SidecarQuitter stops an Envoy style sidecar proxy once a one-shot job has
// finished, so that the job's pod can complete.
type SidecarQuitter struct {
	QuitSidecar     bool
	Client          httpDoer
	sidecarProxyUrl string
}

func (s *SidecarQuitter) EnableSideCarProxyQuit(proxyUrl string) {
	s.QuitSidecar = true
	s.sidecarProxyUrl = proxyUrl
}

func (s *SidecarQuitter) Quit(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sidecarProxyUrl+"/quitquitquit", nil)
	if err != nil {
		return errors.Wrap(err, "invalid sidecar proxy URL")
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := s.Client.Do(req)
	if err != nil {
		log.Logger.WithError(err).Error("unexpected error received from sidecar proxy /quitquitquit")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		err = errors.Errorf("sidecar proxy /quitquitquit responded with %d", resp.StatusCode)
		log.Logger.Error(err)
		return err
	}

	return nil
}
