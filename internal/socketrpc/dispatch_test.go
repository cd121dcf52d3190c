package socketrpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/adpulse/internal/model"
)

// stubAgent returns fixed values for dispatch unit testing.
type stubAgent struct {
	lastPause string
	err       error
}

func (a *stubAgent) Refresh(string) error { return a.err }
func (a *stubAgent) Pause(source string) error {
	a.lastPause = source
	return a.err
}
func (a *stubAgent) Resume(string) error { return a.err }
func (a *stubAgent) Dashboard() model.Dashboard {
	return model.Dashboard{KPIs: model.KPIs{TotalCreatives: 5}}
}
func (a *stubAgent) Sources() []model.SourceStatus {
	return []model.SourceStatus{{Name: model.SourceGeos, Loading: true}}
}

type failingHistory struct{}

func (failingHistory) RecentSyncs(context.Context, string, int) ([]model.SyncRecord, error) {
	return nil, errors.New("database is locked")
}
func (failingHistory) SyncStats(context.Context, string) (model.SyncStats, error) {
	return model.SyncStats{}, nil
}

// countingHistory holds rows newest first and records every query.
type countingHistory struct {
	rows    int
	limits  []int
	queried []string
}

func (h *countingHistory) RecentSyncs(_ context.Context, source string, limit int) ([]model.SyncRecord, error) {
	h.limits = append(h.limits, limit)
	h.queried = append(h.queried, source)
	n := h.rows
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.SyncRecord, n)
	for i := range out {
		out[i] = model.SyncRecord{Source: model.SourceGeos, Seq: uint64(h.rows - i), Outcome: "updated"}
	}
	return out, nil
}

func (h *countingHistory) SyncStats(_ context.Context, source string) (model.SyncStats, error) {
	h.queried = append(h.queried, source)
	return model.SyncStats{Source: source, Attempts: int64(h.rows)}, nil
}

func newTestDispatcher(agent model.AgentAPI, opts Options) *Server {
	return NewServer("/unused.sock", agent, opts)
}

func decodeResult[T any](t *testing.T, resp Response) T {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error")
	var out T
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	return out
}

func TestDispatchDashboard(t *testing.T) {
	s := newTestDispatcher(&stubAgent{}, Options{})

	resp := s.dispatch(Request{JSONRPC: "2.0", ID: 1, Method: MethodDashboard})
	assert.Equal(t, 1, resp.ID)
	assert.Equal(t, "2.0", resp.JSONRPC)
	d := decodeResult[model.Dashboard](t, resp)
	assert.Equal(t, 5, d.KPIs.TotalCreatives)
}

func TestDispatchEmptyParams(t *testing.T) {
	agent := &stubAgent{lastPause: "unset"}
	s := newTestDispatcher(agent, Options{})

	for _, params := range []string{"", "null", "{}"} {
		agent.lastPause = "unset"
		resp := s.dispatch(Request{JSONRPC: "2.0", ID: 2, Method: MethodPause, Params: json.RawMessage(params)})
		if !assert.Nil(t, resp.Error, "params %q", params) {
			continue
		}
		assert.Empty(t, agent.lastPause, "params %q should pause all sources", params)
	}
}

func TestDispatchAgentErrorCodes(t *testing.T) {
	sentinel := errors.New("unknown source")
	tests := []struct {
		name    string
		err     error
		unknown error
		want    int
	}{
		{"unknown source", sentinel, sentinel, CodeInvalidParams},
		{"wrapped unknown source", errors.Join(errors.New("pause"), sentinel), sentinel, CodeInvalidParams},
		{"other failure", errors.New("boom"), sentinel, CodeApplication},
		{"no sentinel configured", sentinel, nil, CodeApplication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestDispatcher(&stubAgent{err: tt.err}, Options{UnknownSource: tt.unknown})
			resp := s.dispatch(Request{JSONRPC: "2.0", ID: 3, Method: MethodResume, Params: json.RawMessage(`{"source":"x"}`)})
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.want, resp.Error.Code)
		})
	}
}

func TestDispatchRefreshWaitFallsBack(t *testing.T) {
	// stubAgent does not implement Waiter, so wait degrades to a queued refresh.
	s := newTestDispatcher(&stubAgent{}, Options{})

	resp := s.dispatch(Request{JSONRPC: "2.0", ID: 4, Method: MethodRefresh, Params: json.RawMessage(`{"wait":true}`)})
	statuses := decodeResult[[]model.SourceStatus](t, resp)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Loading)
}

func TestDispatchHistoryError(t *testing.T) {
	s := newTestDispatcher(&stubAgent{}, Options{History: failingHistory{}})

	resp := s.dispatch(Request{JSONRPC: "2.0", ID: 5, Method: MethodHistory})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeApplication, resp.Error.Code)
	assert.Equal(t, "database is locked", resp.Error.Message)
}

func TestDispatchHistoryUnknownSource(t *testing.T) {
	h := &countingHistory{rows: 3}
	s := newTestDispatcher(&stubAgent{}, Options{History: h})

	resp := s.dispatch(Request{JSONRPC: "2.0", ID: 7, Method: MethodHistory, Params: json.RawMessage(`{"source":"bogus"}`)})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "bogus")
	assert.Nil(t, resp.Result)
	assert.Empty(t, h.queried, "store must not be queried for an unknown source")

	resp = s.dispatch(Request{JSONRPC: "2.0", ID: 8, Method: MethodHistory, Params: json.RawMessage(`{"source":"geos"}`)})
	res := decodeResult[HistoryResult](t, resp)
	require.Len(t, res.Stats, 1)
	assert.Equal(t, model.SourceGeos, res.Stats[0].Source)
}

func TestDispatchHistoryLimitCap(t *testing.T) {
	tests := []struct {
		name      string
		max       int
		params    string
		wantLimit int
		wantRows  int
	}{
		{"oversized limit clamped", 10, `{"source":"geos","limit":100}`, 10, 10},
		{"zero limit clamped", 10, `{"source":"geos","limit":0}`, 10, 10},
		{"absent limit clamped", 10, `{}`, 10, 10},
		{"negative limit clamped", 10, `{"limit":-5}`, 10, 10},
		{"limit under cap kept", 10, `{"limit":4}`, 4, 4},
		{"no cap leaves store default", 0, `{"limit":0}`, 0, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &countingHistory{rows: 30}
			s := newTestDispatcher(&stubAgent{}, Options{History: h, HistoryLimit: tt.max})

			resp := s.dispatch(Request{JSONRPC: "2.0", ID: 9, Method: MethodHistory, Params: json.RawMessage(tt.params)})
			res := decodeResult[HistoryResult](t, resp)
			require.NotEmpty(t, h.limits)
			assert.Equal(t, tt.wantLimit, h.limits[0])
			assert.Len(t, res.Records, tt.wantRows)
		})
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	s := newTestDispatcher(&stubAgent{}, Options{})

	resp := s.dispatch(Request{JSONRPC: "2.0", ID: 6, Method: "TopWords"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestDefaultSocketPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/adpulse/adpulse.sock", DefaultSocketPath())
}
