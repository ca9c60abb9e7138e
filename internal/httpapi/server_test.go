package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mower-robot/control/internal/boundary"
	"github.com/mower-robot/control/internal/gridplan"
	"github.com/mower-robot/control/internal/mission"
)

type fakeOperator struct {
	status         boundary.Status
	startMowingErr error
	gotoErr        error
	gotoTarget     gridplan.Point
	returnErr      error
	estopErr       error
	resetErr       error
	events         chan boundary.Event
}

func (f *fakeOperator) GetStatus() boundary.Status { return f.status }
func (f *fakeOperator) StartMowing() error         { return f.startMowingErr }
func (f *fakeOperator) StartPointGoto(target gridplan.Point) error {
	f.gotoTarget = target
	return f.gotoErr
}
func (f *fakeOperator) ReturnToDock() error    { return f.returnErr }
func (f *fakeOperator) EmergencyStop() error   { return f.estopErr }
func (f *fakeOperator) ResetEmergency() error  { return f.resetErr }
func (f *fakeOperator) StreamEvents() <-chan boundary.Event {
	if f.events == nil {
		ch := make(chan boundary.Event)
		close(ch)
		return ch
	}
	return f.events
}

func TestGetStatusReturnsOperatorSnapshot(t *testing.T) {
	op := &fakeOperator{status: boundary.Status{Mission: mission.State{Phase: mission.Mowing}}}
	srv := NewServer(op)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), string(mission.Mowing)) {
		t.Errorf("expected body to mention phase %q, got %s", mission.Mowing, w.Body.String())
	}
}

func TestGetStatusRejectsNonGet(t *testing.T) {
	srv := NewServer(&fakeOperator{})
	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	w := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("got status %d, want 405", w.Code)
	}
}

func TestStartMowingRequiresPost(t *testing.T) {
	srv := NewServer(&fakeOperator{})
	req := httptest.NewRequest(http.MethodGet, "/command/start-mowing", nil)
	w := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("got status %d, want 405", w.Code)
	}
}

func TestStartMowingPropagatesOperatorError(t *testing.T) {
	op := &fakeOperator{startMowingErr: errBoom}
	srv := NewServer(op)
	req := httptest.NewRequest(http.MethodPost, "/command/start-mowing", nil)
	w := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", w.Code)
	}
}

func TestStartMowingAccepts(t *testing.T) {
	op := &fakeOperator{}
	srv := NewServer(op)
	req := httptest.NewRequest(http.MethodPost, "/command/start-mowing", nil)
	w := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want 202", w.Code)
	}
}

func TestStartPointGotoParsesFormValues(t *testing.T) {
	op := &fakeOperator{}
	srv := NewServer(op)
	req := httptest.NewRequest(http.MethodPost, "/command/start-point-goto?x=1.5&y=-2.25", nil)
	w := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want 202", w.Code)
	}
	if op.gotoTarget.X != 1.5 || op.gotoTarget.Y != -2.25 {
		t.Errorf("got target %+v, want {1.5 -2.25}", op.gotoTarget)
	}
}

func TestStartPointGotoRejectsNonNumeric(t *testing.T) {
	op := &fakeOperator{}
	srv := NewServer(op)
	req := httptest.NewRequest(http.MethodPost, "/command/start-point-goto?x=abc&y=1", nil)
	w := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
}

func TestEmergencyStopAndResetAccept(t *testing.T) {
	op := &fakeOperator{}
	srv := NewServer(op)

	for _, path := range []string{"/command/emergency-stop", "/command/reset-emergency", "/command/return-to-dock"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		w := httptest.NewRecorder()
		srv.ServeMux().ServeHTTP(w, req)
		if w.Code != http.StatusAccepted {
			t.Errorf("%s: got status %d, want 202", path, w.Code)
		}
	}
}

func TestStreamEventsWritesServerSentEvents(t *testing.T) {
	events := make(chan boundary.Event, 1)
	events <- boundary.Event{Kind: boundary.EventMissionTransition, At: time.Unix(0, 0)}
	close(events)

	op := &fakeOperator{events: events}
	srv := NewServer(op)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "data: ") {
		t.Errorf("expected an SSE data frame, got %s", w.Body.String())
	}
}

var errBoom = errors.New("boom")
