package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toitlang/carlink/cmd/carlink/input"
	"github.com/toitlang/carlink/cmd/carlink/link"
	"github.com/toitlang/carlink/cmd/carlink/vehicle"
)

type fakeLink struct {
	mu        sync.Mutex
	connected bool
	sent      []link.Command
}

func (l *fakeLink) Send(cmd link.Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return link.ErrNotConnected
	}
	l.sent = append(l.sent, cmd)
	return nil
}

func (l *fakeLink) State() link.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connected {
		return link.ConnectionState{Status: link.Connected, Port: "/dev/ttyACM0"}
	}
	return link.ConnectionState{Status: link.Disconnected}
}

type fakeControls struct {
	pressed  []input.Control
	released []input.Control
}

func (c *fakeControls) Press(ctl input.Control) error {
	c.pressed = append(c.pressed, ctl)
	return nil
}

func (c *fakeControls) Release(ctl input.Control) {
	c.released = append(c.released, ctl)
}

func newTestServer(connected bool) (*Server, *fakeLink, *fakeControls, *vehicle.Store) {
	l := &fakeLink{connected: connected}
	controls := &fakeControls{}
	store := vehicle.NewStore(vehicle.DefaultLimits)
	s := NewServer(NewHub(nil), store, l, controls, 5*time.Millisecond, nil)
	return s, l, controls, store
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func Test_state(t *testing.T) {
	s, _, _, store := newTestServer(true)
	store.Apply("RPM: 4200")
	store.Apply("RPM_STATUS: SHIFT_UP")

	rec := do(t, s.Handler(), http.MethodGet, "/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "connected", body["connection"]["status"])
	assert.Equal(t, float64(4200), body["vehicle"]["rpm"])
	assert.Equal(t, "mid", body["derived"]["rpm_band"])
	assert.Equal(t, "upshift", body["derived"]["shift_recommendation"])
}

func Test_command(t *testing.T) {
	s, l, _, _ := newTestServer(true)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/command/ENGINE_TOGGLE").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/command/LAUNCH").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/command/STATUS").Code)
	assert.Equal(t, []link.Command{link.EngineToggle}, l.sent)
}

func Test_commandWhileDisconnected(t *testing.T) {
	s, _, _, store := newTestServer(false)
	rec := do(t, s.Handler(), http.MethodPost, "/command/SHIFT_UP")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not connected")
	assert.Equal(t, vehicle.Initial(), store.Snapshot())
}

func Test_control(t *testing.T) {
	s, _, controls, _ := newTestServer(true)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/control/accelerate/press").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/control/accelerate/release").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/control/shift_up/press").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/control/horn/press").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/control/brake/tap").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/control/brake").Code)

	assert.Equal(t, []input.Control{input.Accelerate, input.ShiftUp}, controls.pressed)
	assert.Equal(t, []input.Control{input.Accelerate}, controls.released)
}

func Test_index(t *testing.T) {
	s, _, _, _ := newTestServer(true)
	assert.Equal(t, http.StatusOK, do(t, s.Handler(), http.MethodGet, "/").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodGet, "/favicon.ico").Code)
}

func Test_hubDropsSlowClients(t *testing.T) {
	hub := NewHub(nil)
	c := hub.subscribe()
	for i := 0; i < clientBuffer; i++ {
		hub.LineReceived("RPM: 1")
	}
	assert.Equal(t, 1, hub.Clients())
	hub.LineReceived("RPM: 2")
	assert.Equal(t, 0, hub.Clients())

	n := 0
	for range c.send {
		n++
	}
	assert.Equal(t, clientBuffer, n)
	// Unsubscribing a dropped client is harmless.
	hub.unsubscribe(c)
}

func Test_runPushesStateChanges(t *testing.T) {
	s, _, _, store := newTestServer(true)
	c := s.hub.subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	next := func() Event {
		select {
		case msg := <-c.send:
			var e Event
			require.NoError(t, json.Unmarshal(msg, &e))
			return e
		case <-time.After(time.Second):
			t.Fatal("no event")
		}
		return Event{}
	}

	first := next()
	assert.Equal(t, "state", first.Type)

	store.Apply("SPEED: 33")
	e := next()
	require.NotNil(t, e.State)
	assert.Equal(t, 33, e.State.Vehicle.Speed)
}
