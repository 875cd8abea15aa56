package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/nightscout-insights/internal/config"
	"github.com/mrcode/nightscout-insights/internal/logging"
	"github.com/mrcode/nightscout-insights/internal/models"
	"github.com/mrcode/nightscout-insights/internal/store"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveSync(ctx context.Context, b store.SyncBatch) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockStore) LatestSummary(ctx context.Context) (*models.HealthSummary, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*models.HealthSummary)
	return s, args.Error(1)
}

func (m *mockStore) ListMeals(ctx context.Context, q store.MealQuery) ([]models.Meal, error) {
	args := m.Called(ctx, q)
	meals, _ := args.Get(0).([]models.Meal)
	return meals, args.Error(1)
}

var testNow = time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, st *mockStore) *Server {
	t.Helper()
	cfg := &config.IngestConfig{
		Port:        "8081",
		IngestToken: "ingest-secret",
		ReadToken:   "read-secret",
		CORSOrigin:  "*",
	}
	s, err := NewServer(cfg, st, logging.Discard())
	require.NoError(t, err)
	s.now = func() time.Time { return testNow }
	return s
}

func do(s *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, &mockStore{}, logging.Discard())
	assert.Error(t, err)
	_, err = NewServer(&config.IngestConfig{}, nil, logging.Discard())
	assert.Error(t, err)
	_, err = NewServer(&config.IngestConfig{}, &mockStore{}, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &mockStore{})
	rec := do(s, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	assert.JSONEq(t, `{"ok":true,"service":"integrations-api","at":"2026-02-15T12:00:00.000Z"}`, rec.Body.String())
}

func TestRequestID_Propagated(t *testing.T) {
	s := newTestServer(t, &mockStore{})
	rec := do(s, http.MethodGet, "/health", "", map[string]string{requestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

const validPayload = `{
	"deviceId": " pixel-8 ",
	"syncedAt": "2026-02-15T11:59:00Z",
	"summary": {"stepsLast24h": 8123, "weightKgLatest": 71.4, "weightUpdatedAt": "2026-02-15T07:00:00+01:00"},
	"meals": [
		{"id": "m1", "name": " Oats ", "carbsGrams": 45.456, "eatenAt": "2026-02-15T07:30:00Z", "source": "health-connect", "calories": 300},
		{"id": "m2", "name": "Pasta", "carbsGrams": 80, "eatenAt": "2026-02-15T11:00:00Z"}
	]
}`

func TestIngest_Success(t *testing.T) {
	st := &mockStore{}
	var got store.SyncBatch
	st.On("SaveSync", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(store.SyncBatch) }).
		Return(nil)
	s := newTestServer(t, st)

	rec := do(s, http.MethodPost, "/ingest/health-connect", validPayload, map[string]string{ingestTokenHeader: "ingest-secret"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"ok":true,"syncedAt":"2026-02-15T11:59:00.000Z","mealsReceived":2}`, rec.Body.String())

	assert.Equal(t, "pixel-8", got.DeviceID)
	require.NotNil(t, got.WeightUpdatedAt)
	assert.True(t, got.WeightUpdatedAt.Equal(time.Date(2026, 2, 15, 6, 0, 0, 0, time.UTC)))
	require.Len(t, got.Meals, 2)
	assert.Equal(t, "Oats", got.Meals[0].Name)
	assert.Equal(t, 45.46, got.Meals[0].CarbsGrams)
	assert.Equal(t, models.ProviderHealthConnect, got.Meals[0].Provider)
	assert.Equal(t, models.ProviderMyFitnessPal, got.Meals[1].Provider)
	assert.Nil(t, got.Meals[1].Calories)
}

func TestIngest_Unauthorized(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
	}{
		{"missing header", nil},
		{"wrong token", map[string]string{ingestTokenHeader: "nope"}},
		{"read token is not an ingest token", map[string]string{"Authorization": "Bearer read-secret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &mockStore{}
			s := newTestServer(t, st)
			rec := do(s, http.MethodPost, "/ingest/health-connect", validPayload, tt.headers)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, errorResponse{Status: 401, Message: "Unauthorized"}, decodeError(t, rec))
			st.AssertNotCalled(t, "SaveSync", mock.Anything, mock.Anything)
		})
	}
}

func TestIngest_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"empty body", ``, "must not be empty"},
		{"not an object", `[]`, "Payload must be an object"},
		{"malformed", `{"deviceId":`, "Malformed JSON"},
		{"blank device", `{"deviceId":"  ","syncedAt":"2026-02-15T11:59:00Z","summary":{},"meals":[]}`, "deviceId is required"},
		{"bad syncedAt", `{"deviceId":"d","syncedAt":"later","summary":{},"meals":[]}`, "syncedAt must be an ISO datetime string"},
		{"missing summary", `{"deviceId":"d","syncedAt":"2026-02-15T11:59:00Z","meals":[]}`, "summary is required"},
		{"missing meals", `{"deviceId":"d","syncedAt":"2026-02-15T11:59:00Z","summary":{}}`, "meals is required"},
		{"string steps", `{"deviceId":"d","syncedAt":"2026-02-15T11:59:00Z","summary":{"stepsLast24h":"many"},"meals":[]}`, "Invalid value for summary.stepsLast24h"},
		{"negative carbs", `{"deviceId":"d","syncedAt":"2026-02-15T11:59:00Z","summary":{},"meals":[{"id":"a","name":"b","carbsGrams":-1,"eatenAt":"2026-02-15T11:00:00Z"}]}`, "meals[0].carbsGrams must be a positive number"},
		{"blank meal name", `{"deviceId":"d","syncedAt":"2026-02-15T11:59:00Z","summary":{},"meals":[{"id":"a","name":" ","carbsGrams":1,"eatenAt":"2026-02-15T11:00:00Z"}]}`, "meals[0].name is required"},
		{"negative calories", `{"deviceId":"d","syncedAt":"2026-02-15T11:59:00Z","summary":{},"meals":[{"id":"a","name":"b","carbsGrams":1,"calories":-5,"eatenAt":"2026-02-15T11:00:00Z"}]}`, "meals[0].calories must be a positive number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &mockStore{}
			s := newTestServer(t, st)
			rec := do(s, http.MethodPost, "/ingest/health-connect", tt.body, map[string]string{ingestTokenHeader: "ingest-secret"})

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decodeError(t, rec)
			assert.Equal(t, 400, resp.Status)
			assert.Contains(t, resp.Message, tt.wantMsg)
			st.AssertNotCalled(t, "SaveSync", mock.Anything, mock.Anything)
		})
	}
}

func TestIngest_BodyTooLarge(t *testing.T) {
	s := newTestServer(t, &mockStore{})
	body := `{"deviceId":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
	rec := do(s, http.MethodPost, "/ingest/health-connect", body, map[string]string{ingestTokenHeader: "ingest-secret"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "1MB")
}

func TestIngest_StoreFailureIs500(t *testing.T) {
	st := &mockStore{}
	st.On("SaveSync", mock.Anything, mock.Anything).Return(errors.New("pq: connection refused"))
	s := newTestServer(t, st)

	rec := do(s, http.MethodPost, "/ingest/health-connect", validPayload, map[string]string{ingestTokenHeader: "ingest-secret"})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, unexpectedErrorMessage, decodeError(t, rec).Message)
}

func TestSummary(t *testing.T) {
	steps := 8000.0
	st := &mockStore{}
	st.On("LatestSummary", mock.Anything).Return(&models.HealthSummary{StepsLast24h: &steps, SyncedAt: "2026-02-15T11:59:00.000Z"}, nil)
	s := newTestServer(t, st)

	rec := do(s, http.MethodGet, "/v1/summary", "", map[string]string{"Authorization": "Bearer read-secret"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stepsLast24h":8000,"weightKgLatest":null,"weightUpdatedAt":null,"syncedAt":"2026-02-15T11:59:00.000Z","source":"health-connect"}`, rec.Body.String())
}

func TestSummary_Empty(t *testing.T) {
	st := &mockStore{}
	st.On("LatestSummary", mock.Anything).Return(nil, store.ErrNotFound)
	s := newTestServer(t, st)

	rec := do(s, http.MethodGet, "/v1/summary", "", map[string]string{"Authorization": "Bearer read-secret"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", rec.Body.String())
}

func TestSummary_Unauthorized(t *testing.T) {
	s := newTestServer(t, &mockStore{})
	for _, auth := range []string{"", "Bearer wrong", "read-secret", "Basic read-secret"} {
		rec := do(s, http.MethodGet, "/v1/summary", "", map[string]string{"Authorization": auth})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "Authorization %q", auth)
	}
}

func TestMeals_Defaults(t *testing.T) {
	cal := 300.0
	st := &mockStore{}
	want := store.MealQuery{From: testNow.Add(-30 * 24 * time.Hour), To: testNow, Limit: 500}
	st.On("ListMeals", mock.Anything, want).Return([]models.Meal{
		{ID: "m1", Name: "Oats", CarbsGrams: 45.46, EatenAt: "2026-02-15T07:30:00.000Z", Source: models.MealSourceLogged, Provider: models.ProviderHealthConnect, Calories: &cal},
	}, nil)
	s := newTestServer(t, st)

	rec := do(s, http.MethodGet, "/v1/meals", "", map[string]string{"Authorization": "Bearer read-secret"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"id":"m1","name":"Oats","carbsGrams":45.46,"eatenAt":"2026-02-15T07:30:00.000Z","source":"health-connect","calories":300}]`, rec.Body.String())
	st.AssertExpectations(t)
}

func TestMeals_EmptyListIsArray(t *testing.T) {
	st := &mockStore{}
	st.On("ListMeals", mock.Anything, mock.Anything).Return([]models.Meal{}, nil)
	s := newTestServer(t, st)

	rec := do(s, http.MethodGet, "/v1/meals", "", map[string]string{"Authorization": "Bearer read-secret"})
	assert.Equal(t, "[]", rec.Body.String())
}

func TestMeals_QueryValidation(t *testing.T) {
	tests := []struct {
		query   string
		wantMsg string
	}{
		{"?limit=0", "limit must be an integer between 1 and 5000"},
		{"?limit=5001", "limit must be an integer between 1 and 5000"},
		{"?limit=ten", "limit must be an integer between 1 and 5000"},
		{"?from=yesterday", "Invalid datetime query parameter"},
		{"?from=2026-02-15T10:00:00Z&to=2026-02-14T10:00:00Z", "from must be earlier than to"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			s := newTestServer(t, &mockStore{})
			rec := do(s, http.MethodGet, "/v1/meals"+tt.query, "", map[string]string{"Authorization": "Bearer read-secret"})

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeError(t, rec).Message, tt.wantMsg)
		})
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, &mockStore{})
	rec := do(s, http.MethodOptions, "/v1/meals", "", map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": "GET",
	})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), ingestTokenHeader)
}

func TestCORS_AllowList(t *testing.T) {
	h := CORS("https://a.example, https://b.example")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for origin, want := range map[string]string{
		"https://b.example":    "https://b.example",
		"https://evil.example": "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Header().Get("Access-Control-Allow-Origin"), origin)
	}
}

func TestRecoverer(t *testing.T) {
	s := newTestServer(t, &mockStore{})
	s.router.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := do(s, http.MethodGet, "/panic", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, &mockStore{})
	rec := do(s, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
