package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/depth2go/internal/control_loop"
	"github.com/markusressel/depth2go/internal/persistence"
	"github.com/markusressel/depth2go/internal/samples"
	"github.com/markusressel/depth2go/internal/session"
	"github.com/markusressel/depth2go/internal/util"
	"github.com/qdm12/reprint"
)

const (
	queryParamFrom = "from"
)

type RunInfo struct {
	Id        string                  `json:"id"`
	StartedAt time.Time               `json:"startedAt"`
	EndedAt   *time.Time              `json:"endedAt,omitempty"`
	Settings  persistence.RunSettings `json:"settings"`
	Status    control_loop.Status     `json:"status"`
	Error     string                  `json:"error,omitempty"`
}

type StartRequest struct {
	// optional, the configured setpoint is used if missing
	Setpoint *float64 `json:"setpoint"`
}

type RetargetRequest struct {
	Setpoint *float64 `json:"setpoint"`
	Reset    bool     `json:"reset"`
}

type runHandler struct {
	manager     *session.Manager
	persistence persistence.Persistence
}

func registerRunEndpoints(rest *echo.Echo, h *runHandler) {
	group := rest.Group("/run")

	group.GET("/", h.getRuns)
	group.POST("/", h.startRun)
	group.GET("/current/", h.getCurrentRun)
	group.DELETE("/current/", h.stopRun)
	group.PUT("/current/setpoint/", h.retarget)
	group.GET("/:"+urlParamId+"/", h.getRun)
	group.GET("/:"+urlParamId+"/samples/", h.getSamples)
	group.GET("/:"+urlParamId+"/stream/", h.streamSamples)
}

func newRunInfo(run *session.Run) RunInfo {
	status := run.Status()
	info := RunInfo{
		Id:        run.Id(),
		StartedAt: run.StartedAt(),
		Settings:  run.Settings(),
		Status:    status,
	}
	if endedAt, ended := run.EndedAt(); ended {
		info.EndedAt = &endedAt
	}
	if status.Err != nil {
		info.Error = status.Err.Error()
	}
	return info
}

// returns a list of all runs held in memory
func (h *runHandler) getRuns(c echo.Context) error {
	runs := h.manager.Runs()
	infos := make([]RunInfo, 0, len(runs))
	for _, run := range runs {
		infos = append(infos, newRunInfo(run))
	}
	data := reprint.This(infos)
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}

func (h *runHandler) getCurrentRun(c echo.Context) error {
	run, ok := h.manager.Current()
	if !ok {
		return returnNotFound(c, "current")
	}
	return c.JSONPretty(http.StatusOK, newRunInfo(run), indentationChar)
}

// returns a run held in memory, or a persisted one
func (h *runHandler) getRun(c echo.Context) error {
	id := c.Param(urlParamId)
	if run, ok := h.manager.Get(id); ok {
		return c.JSONPretty(http.StatusOK, newRunInfo(run), indentationChar)
	}

	record, err := h.loadRecord(id)
	if errors.Is(err, os.ErrNotExist) {
		return returnNotFound(c, id)
	} else if err != nil {
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, record, indentationChar)
}

func (h *runHandler) loadRecord(id string) (persistence.RunRecord, error) {
	if h.persistence == nil {
		return persistence.RunRecord{}, os.ErrNotExist
	}
	return h.persistence.LoadRun(id)
}

// returns all samples of a run, starting at the optional "from" time index
func (h *runHandler) getSamples(c echo.Context) error {
	id := c.Param(urlParamId)
	from, err := parseFrom(c)
	if err != nil {
		return returnRejected(c, err)
	}

	var result []samples.Sample
	if run, ok := h.manager.Get(id); ok {
		result = run.History().Snapshot()
	} else {
		record, err := h.loadRecord(id)
		if errors.Is(err, os.ErrNotExist) {
			return returnNotFound(c, id)
		} else if err != nil {
			return returnError(c, err)
		}
		result = record.Samples
	}

	if from >= len(result) {
		result = []samples.Sample{}
	} else {
		result = result[from:]
	}
	return c.JSONPretty(http.StatusOK, result, indentationChar)
}

// streams the samples of a run held in memory as newline delimited JSON,
// until the run has ended or the client disconnects
func (h *runHandler) streamSamples(c echo.Context) error {
	id := c.Param(urlParamId)
	from, err := parseFrom(c)
	if err != nil {
		return returnRejected(c, err)
	}
	run, ok := h.manager.Get(id)
	if !ok {
		return returnNotFound(c, id)
	}

	response := c.Response()
	response.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	response.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	subscription := run.History().SubscribeFrom(from)
	encoder := json.NewEncoder(response)
	for {
		sample, err := subscription.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// client is gone
			return nil
		}
		if err := encoder.Encode(sample); err != nil {
			return nil
		}
		response.Flush()
	}
}

func parseFrom(c echo.Context) (int, error) {
	value := c.QueryParam(queryParamFrom)
	if len(value) <= 0 {
		return 0, nil
	}
	from, err := strconv.Atoi(value)
	if err != nil || from < 0 {
		return 0, fmt.Errorf("invalid time index '%s'", value)
	}
	return from, nil
}

// starts a new run with fresh controller and plant state, stopping the current one
func (h *runHandler) startRun(c echo.Context) error {
	var request StartRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&request); err != nil {
			return returnRejected(c, fmt.Errorf("malformed request: %v", err))
		}
	}
	if request.Setpoint != nil && !util.IsFinite(*request.Setpoint) {
		return returnRejected(c, errors.New("setpoint must be a finite number"))
	}

	run, err := h.manager.Start(request.Setpoint)
	if err != nil {
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusCreated, newRunInfo(run), indentationChar)
}

func (h *runHandler) stopRun(c echo.Context) error {
	err := h.manager.Stop()
	if errors.Is(err, control_loop.ErrNotRunning) {
		return returnConflict(c, err)
	} else if err != nil {
		return returnError(c, err)
	}
	current, _ := h.manager.Current()
	return c.JSONPretty(http.StatusOK, newRunInfo(current), indentationChar)
}

// changes the target depth of the current run
func (h *runHandler) retarget(c echo.Context) error {
	var request RetargetRequest
	if err := c.Bind(&request); err != nil {
		return returnRejected(c, fmt.Errorf("malformed request: %v", err))
	}
	if request.Setpoint == nil {
		return returnRejected(c, errors.New("missing setpoint"))
	}
	if !util.IsFinite(*request.Setpoint) {
		return returnRejected(c, errors.New("setpoint must be a finite number"))
	}

	err := h.manager.Retarget(*request.Setpoint, request.Reset)
	if errors.Is(err, control_loop.ErrNotRunning) {
		return returnConflict(c, err)
	} else if err != nil {
		return returnRejected(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}
