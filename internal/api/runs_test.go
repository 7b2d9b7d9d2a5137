package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/depth2go/internal/configuration"
	"github.com/markusressel/depth2go/internal/control_loop"
	"github.com/markusressel/depth2go/internal/persistence"
	"github.com/markusressel/depth2go/internal/samples"
	"github.com/markusressel/depth2go/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testService struct {
	echo        *echo.Echo
	manager     *session.Manager
	persistence persistence.Persistence
	registry    *prometheus.Registry
}

func createService(t *testing.T, mode string, maxCycles int) testService {
	config := configuration.Configuration{
		Controller: configuration.ControllerConfig{
			P: 1.2, I: 0.1, D: 0.5,
			Setpoint:  10,
			TimeStep:  10 * time.Millisecond,
			MaxThrust: 10,
		},
		Plant: configuration.PlantConfig{
			ID:        "rov",
			Simulated: &configuration.SimulatedPlantConfig{},
		},
		Loop: configuration.LoopConfig{
			Mode:      configuration.Enum(mode),
			MaxCycles: maxCycles,
		},
	}
	p := persistence.NewPersistence(filepath.Join(t.TempDir(), "depth2go.db"))
	require.NoError(t, p.Init())
	m := session.NewManager(context.Background(), config, session.WithPersistence(p))
	t.Cleanup(m.Shutdown)

	registry := prometheus.NewRegistry()
	return testService{
		echo:        CreateRestService(m, p, registry),
		manager:     m,
		persistence: p,
		registry:    registry,
	}
}

func (s testService) request(method string, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if len(body) > 0 {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func waitForCurrentRun(t *testing.T, m *session.Manager) *session.Run {
	run, ok := m.Current()
	require.True(t, ok)
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
	return run
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) Result {
	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestIsAlive(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeBatch, 10)

	// WHEN
	rec := s.request(http.MethodGet, "/alive", "")

	// THEN
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartRun(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeBatch, 10)

	// WHEN
	rec := s.request(http.MethodPost, "/run/", `{"setpoint": 12.5}`)

	// THEN
	require.Equal(t, http.StatusCreated, rec.Code)
	var info RunInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, 12.5, info.Settings.Setpoint)
	assert.Equal(t, "rov", info.Settings.PlantId)

	run := waitForCurrentRun(t, s.manager)
	assert.Equal(t, info.Id, run.Id())
}

func TestStartRun_DefaultSetpoint(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeBatch, 10)

	// WHEN
	rec := s.request(http.MethodPost, "/run/", "")

	// THEN
	require.Equal(t, http.StatusCreated, rec.Code)
	run := waitForCurrentRun(t, s.manager)
	assert.Equal(t, 10.0, run.Settings().Setpoint)
}

func TestStartRun_MalformedSetpoint(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeBatch, 10)

	// WHEN
	rec := s.request(http.MethodPost, "/run/", `{"setpoint": "deep"}`)

	// THEN
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Rejected reconfiguration", decodeResult(t, rec).Name)
	_, ok := s.manager.Current()
	assert.False(t, ok)
}

func TestRetarget(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeRealtime, 0)
	require.Equal(t, http.StatusCreated, s.request(http.MethodPost, "/run/", "").Code)

	// WHEN
	rec := s.request(http.MethodPut, "/run/current/setpoint", `{"setpoint": 4, "reset": true}`)

	// THEN
	assert.Equal(t, http.StatusAccepted, rec.Code)
	run, _ := s.manager.Current()
	subscription := run.History().Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		sample, err := subscription.Next(ctx)
		require.NoError(t, err)
		if sample.Setpoint == 4 {
			break
		}
	}
}

func TestRetarget_Rejected(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeRealtime, 0)
	require.Equal(t, http.StatusCreated, s.request(http.MethodPost, "/run/", "").Code)

	for _, body := range []string{`{"setpoint": "ten"}`, `{"reset": true}`, `{setpoint`, ""} {
		// WHEN
		rec := s.request(http.MethodPut, "/run/current/setpoint/", body)

		// THEN
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Rejected reconfiguration", decodeResult(t, rec).Name)
	}
	run, _ := s.manager.Current()
	assert.Equal(t, 10.0, run.Status().Setpoint)
}

func TestRetarget_NoRun(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeBatch, 10)

	// WHEN
	rec := s.request(http.MethodPut, "/run/current/setpoint/", `{"setpoint": 4}`)

	// THEN
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStopRun(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeRealtime, 0)
	require.Equal(t, http.StatusCreated, s.request(http.MethodPost, "/run/", "").Code)

	// WHEN
	rec := s.request(http.MethodDelete, "/run/current/", "")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var info RunInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, control_loop.Stopped, info.Status.State)
	assert.Equal(t, control_loop.ReasonStopRequested, info.Status.Reason)
	assert.NotNil(t, info.EndedAt)

	// WHEN
	rec = s.request(http.MethodDelete, "/run/current/", "")

	// THEN
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetRuns(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeBatch, 3)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, s.request(http.MethodPost, "/run/", "").Code)
		waitForCurrentRun(t, s.manager)
	}

	// WHEN
	rec := s.request(http.MethodGet, "/run/", "")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []RunInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	assert.Len(t, infos, 2)
	for _, info := range infos {
		assert.Equal(t, 3, info.Status.Cycles)
	}
}

func TestGetCurrentRun(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeBatch, 3)

	// WHEN
	rec := s.request(http.MethodGet, "/run/current/", "")

	// THEN
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// WHEN
	require.Equal(t, http.StatusCreated, s.request(http.MethodPost, "/run/", "").Code)
	run := waitForCurrentRun(t, s.manager)
	rec = s.request(http.MethodGet, "/run/current/", "")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var info RunInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, run.Id(), info.Id)
}

func TestGetRun_Persisted(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeBatch, 3)
	record := persistence.RunRecord{
		Id:        "archived",
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Reason:    string(control_loop.ReasonSettled),
		Samples: []samples.Sample{
			{TimeIndex: 0, Measurement: 9.99, Setpoint: 10},
		},
	}
	require.NoError(t, s.persistence.SaveRun(record))

	// WHEN
	rec := s.request(http.MethodGet, "/run/archived/", "")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var result persistence.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, record, result)

	// WHEN
	rec = s.request(http.MethodGet, "/run/archived/samples/", "")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var result2 []samples.Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result2))
	assert.Equal(t, record.Samples, result2)
}

func TestGetRun_NotFound(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeBatch, 3)

	// WHEN
	rec := s.request(http.MethodGet, "/run/unknown/", "")

	// THEN
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No item with id 'unknown' found", decodeResult(t, rec).Message)

	// WHEN
	rec = s.request(http.MethodGet, "/run/unknown/samples/", "")

	// THEN
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSamples_From(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeBatch, 10)
	require.Equal(t, http.StatusCreated, s.request(http.MethodPost, "/run/", "").Code)
	run := waitForCurrentRun(t, s.manager)

	// WHEN
	rec := s.request(http.MethodGet, "/run/"+run.Id()+"/samples/?from=6", "")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var result []samples.Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result, 4)
	assert.Equal(t, 6, result[0].TimeIndex)

	// WHEN
	rec = s.request(http.MethodGet, "/run/"+run.Id()+"/samples/?from=-1", "")

	// THEN
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// WHEN
	rec = s.request(http.MethodGet, "/run/"+run.Id()+"/samples/?from=50", "")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestStreamSamples(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeBatch, 10)
	require.Equal(t, http.StatusCreated, s.request(http.MethodPost, "/run/", "").Code)
	run := waitForCurrentRun(t, s.manager)

	// WHEN
	rec := s.request(http.MethodGet, "/run/"+run.Id()+"/stream/", "")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get(echo.HeaderContentType))
	scanner := bufio.NewScanner(rec.Body)
	timeIndex := 0
	for scanner.Scan() {
		var sample samples.Sample
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &sample))
		assert.Equal(t, timeIndex, sample.TimeIndex)
		timeIndex++
	}
	assert.Equal(t, 10, timeIndex)
}

func TestRequestMetrics(t *testing.T) {
	// GIVEN
	s := createService(t, configuration.LoopModeBatch, 10)
	s.request(http.MethodGet, "/alive/", "")

	// WHEN
	families, err := s.registry.Gather()

	// THEN
	assert.NoError(t, err)
	var names []string
	for _, family := range families {
		names = append(names, family.GetName())
	}
	assert.Contains(t, names, "depth2go_api_requests_total")
}
