package job

import (
	"context"
	"net/http"
	"testing"

	"inviqa/notification-relay/job/test"
)

func TestSidecarQuitter_Quit(t *testing.T) {
	cl := test.NewMockHttpClient()
	s := SidecarQuitter{Client: cl}
	s.EnableSideCarProxyQuit("http://localhost:15000")

	if err := s.Quit(context.Background()); err != nil {
		t.Errorf("unexpected error: %s", err)
	}

	if !cl.Sent(http.MethodPost, "http://localhost:15000/quitquitquit") {
		t.Error("expected a call to sidecar proxy http://localhost:15000/quitquitquit")
	}
}

func TestSidecarQuitter_QuitWithErrorResponse(t *testing.T) {
	cl := test.NewMockHttpClient()
	cl.RespondWith(http.StatusInternalServerError)
	s := SidecarQuitter{Client: cl}
	s.EnableSideCarProxyQuit("http://localhost:15000")

	if err := s.Quit(context.Background()); err == nil {
		t.Error("expected an error but got nil")
	}
}

func TestSidecarQuitter_QuitWithClientError(t *testing.T) {
	cl := test.NewMockHttpClient()
	cl.ReturnErrors()
	s := SidecarQuitter{Client: cl}
	s.EnableSideCarProxyQuit("http://localhost:15000")

	if err := s.Quit(context.Background()); err == nil {
		t.Error("expected an error but got nil")
	}
}
