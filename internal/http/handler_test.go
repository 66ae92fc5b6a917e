package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatewatch/internal/config"
	"gatewatch/internal/db"
	"gatewatch/internal/domain/gate"
	"gatewatch/internal/repository"
	"gatewatch/internal/service"
	"gatewatch/internal/whitelist"
)

const testSecret = "test-secret"

type recordingNotifier struct {
	mu     sync.Mutex
	events []gate.DetectionEvent
}

func (n *recordingNotifier) Send(_ context.Context, event gate.DetectionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func newTestRouter(t *testing.T, secret string) (*gin.Engine, *recordingNotifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(config.StorageConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "gatewatch.db"),
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	n := &recordingNotifier{}
	wl := whitelist.New(map[string]string{"ABC123": "owner"})
	svc := service.NewGateService(repository.NewEventRepository(gdb), n, wl, "gate-1", zerolog.Nop())
	return NewRouter(NewHandler(svc, zerolog.Nop()), secret, "*", zerolog.Nop()), n
}

func do(r http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, "")

	w := do(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	r, _ := newTestRouter(t, "")

	w := do(r, http.MethodGet, "/health", http.Header{"X-Request-ID": {"req-42"}})
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, "")

	w := do(r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestSimulateThenQuery(t *testing.T) {
	r, n := newTestRouter(t, "")

	w := do(r, http.MethodPost, "/api/v1/simulate?subject=vehicle&plate_text=abc-123", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "sent", body["result"])
	id := int64(body["id"].(float64))
	assert.Positive(t, id)

	require.Len(t, n.events, 1)
	assert.Equal(t, gate.ArrivalOwner, n.events[0].Arrival)
	assert.Equal(t, "ABC123", n.events[0].Plate())

	w = do(r, http.MethodGet, "/api/v1/events/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 1, data["id"])
	payload := data["payload"].(map[string]any)
	assert.Equal(t, "vehicle", payload["subject"])
	assert.Equal(t, "owner", payload["arrival"])
	assert.Equal(t, "ABC123", payload["plate_text"])
	assert.Equal(t, "gate-1", payload["camera_id"])
	assert.InDelta(t, 0.99, payload["confidence"], 1e-9)
}

func TestSimulateDefaultsAndDropsPlateForPerson(t *testing.T) {
	r, n := newTestRouter(t, "")

	w := do(r, http.MethodPost, "/api/v1/simulate?subject=person&plate_text=ABC123", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(r, http.MethodPost, "/api/v1/simulate", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(r, http.MethodPost, "/api/v1/simulate?plate_text=", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	require.Len(t, n.events, 3)
	assert.Equal(t, gate.SubjectPerson, n.events[0].Subject)
	assert.Nil(t, n.events[0].PlateText)
	assert.Equal(t, gate.ArrivalUnknown, n.events[0].Arrival)
	assert.Equal(t, gate.SubjectVehicle, n.events[1].Subject)
	assert.Equal(t, "ABC123", n.events[1].Plate())
	assert.Equal(t, gate.ArrivalOwner, n.events[1].Arrival)
	assert.Nil(t, n.events[2].PlateText)
	assert.Equal(t, gate.ArrivalUnknown, n.events[2].Arrival)
}

func TestSimulateBadSubject(t *testing.T) {
	r, n := newTestRouter(t, "")

	w := do(r, http.MethodPost, "/api/v1/simulate?subject=ufo", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "invalid input")
	assert.Empty(t, n.events)
}

func TestListEvents(t *testing.T) {
	r, _ := newTestRouter(t, "")
	for range 3 {
		require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/v1/simulate?subject=object", nil).Code)
	}

	tests := []struct {
		name    string
		query   string
		wantIDs []float64
	}{
		{"default limit", "", []float64{3, 2, 1}},
		{"limit", "?limit=2", []float64{3, 2}},
		{"clamped low", "?limit=0", []float64{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodGet, "/api/v1/events"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code)

			var ids []float64
			for _, item := range decode(t, w)["data"].([]any) {
				ids = append(ids, item.(map[string]any)["id"].(float64))
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestListEventsRejectsNonNumericLimit(t *testing.T) {
	r, _ := newTestRouter(t, "")

	for _, q := range []string{"abc", "1.5", "10x"} {
		w := do(r, http.MethodGet, "/api/v1/events?limit="+q, nil)
		require.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Equal(t, "limit must be an integer", decode(t, w)["error"])
	}
}

func TestGetEventNotFound(t *testing.T) {
	r, _ := newTestRouter(t, "")

	w := do(r, http.MethodGet, "/api/v1/events/999", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "event not found", decode(t, w)["error"])

	w = do(r, http.MethodGet, "/api/v1/events/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func signed(t *testing.T, secret string, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestSimulateRequiresTokenWhenSecretSet(t *testing.T) {
	r, n := newTestRouter(t, testSecret)

	tests := []struct {
		name   string
		header http.Header
		want   int
	}{
		{"no header", nil, http.StatusUnauthorized},
		{"not bearer", http.Header{"Authorization": {"Basic abc"}}, http.StatusUnauthorized},
		{"wrong secret", http.Header{"Authorization": {"Bearer " + signed(t, "other", jwt.SigningMethodHS256)}}, http.StatusUnauthorized},
		{"wrong alg", http.Header{"Authorization": {"Bearer " + signed(t, testSecret, jwt.SigningMethodHS512)}}, http.StatusUnauthorized},
		{"valid", http.Header{"Authorization": {"Bearer " + signed(t, testSecret, jwt.SigningMethodHS256)}}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/simulate?subject=person", tt.header)
			assert.Equal(t, tt.want, w.Code)
		})
	}
	assert.Len(t, n.events, 1)

	// Reads stay public.
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/events", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS("https://ops.example.com, https://gate.example.com"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, http.MethodOptions, "/x", http.Header{
		"Origin":                        {"https://gate.example.com"},
		"Access-Control-Request-Method": {"GET"},
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://gate.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(r, http.MethodGet, "/x", http.Header{"Origin": {"https://evil.example.com"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
