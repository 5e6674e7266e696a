package actuator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ariac-fulfillment/internal/errs"
	"ariac-fulfillment/internal/types"
	"ariac-fulfillment/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() RemoteOptions {
	return RemoteOptions{
		Timeout:          time.Second,
		RetryBackoff:     time.Millisecond,
		FailureThreshold: 10,
		OpenTimeout:      10 * time.Millisecond,
	}
}

func TestRemote_PickPartSendsLocationAndTrace(t *testing.T) {
	var gotPath, gotTrace string
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTrace = r.Header.Get(util.TraceHeader)
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(Response{Success: true})
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, testOptions(), testLogger())
	ctx := util.ContextWithTraceID(context.Background(), "trace-1")
	loc := types.PartLocation{Source: types.SourceBin, Index: 4, Bin: 1, Part: types.Part{Type: types.PartBattery, Color: types.ColorRed}}

	require.NoError(t, r.PickPart(ctx, loc))
	assert.Equal(t, "/"+CmdPickPart, gotPath)
	assert.Equal(t, "trace-1", gotTrace)
	require.NotNil(t, gotReq.Location)
	assert.Equal(t, loc, *gotReq.Location)
}

func TestRemote_RetriesWhileUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(Response{Success: true})
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, testOptions(), testLogger())
	require.NoError(t, r.MoveCarrier(context.Background(), 2, "Station1"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemote_StopsRetryingWhenCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := NewRemote(srv.URL, testOptions(), testLogger())
	err := r.EndCompetition(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRemote_CallFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Response{Success: false, Message: "agv is moving"})
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, testOptions(), testLogger())
	err := r.MoveCarrier(context.Background(), 1, "Kitting")
	assert.ErrorIs(t, err, errs.ErrServiceCallFailed)
	assert.Contains(t, err.Error(), "agv is moving")

	// 评分服务拒绝提交时返回结果而不是错误
	res, err := r.SubmitOrder(context.Background(), "K1")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "agv is moving", res.Message)
}

func TestRemote_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, testOptions(), testLogger())
	_, err := r.SubmitOrder(context.Background(), "K1")
	assert.ErrorIs(t, err, errs.ErrServiceCallFailed)
}

func TestRemote_CurrentTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+CmdCurrentTool, r.URL.Path)
		_ = json.NewEncoder(w).Encode(Response{Success: true, Tool: types.ToolTrayGripper})
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, testOptions(), testLogger())
	tool, err := r.CurrentTool(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ToolTrayGripper, tool)
}
