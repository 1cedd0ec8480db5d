package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Health-Informatics-UoN/bunny/internal/cache"
	"github.com/Health-Informatics-UoN/bunny/internal/dialect"
	"github.com/Health-Informatics-UoN/bunny/internal/solver"
)

type fakeSink struct {
	submissions []string
}

func (f *fakeSink) SubmitResult(ctx context.Context, uuid, collection string, result any) error {
	b, _ := json.Marshal(result)
	f.submissions = append(f.submissions, string(b))
	return nil
}

func newTestHandler(t *testing.T, sink ResultSink) *Handler {
	t.Helper()
	svc, err := cache.New(t.TempDir(), false, 0)
	require.NoError(t, err)
	logger := slog.New(slog.DiscardHandler)
	exec := solver.NewExecutor(dialect.Postgres, nil, svc, logger, 10, 10)
	return NewHandler(exec, sink, nil, logger)
}

func TestHandleInvalidPayloadDoesNotSubmit(t *testing.T) {
	sink := &fakeSink{}
	h := newTestHandler(t, sink)

	h.Handle(context.Background(), json.RawMessage(`{not json`))
	assert.Empty(t, sink.submissions)
}

func TestHandleICDMainDoesNotSubmit(t *testing.T) {
	sink := &fakeSink{}
	h := newTestHandler(t, sink)

	h.Handle(context.Background(), json.RawMessage(
		`{"code":"ICD-MAIN","analysis":"DISTRIBUTION","uuid":"u","owner":"o","collection":"c"}`))
	assert.Empty(t, sink.submissions)
}

func TestHandleSurvivesPanickingSolve(t *testing.T) {
	sink := &fakeSink{}
	h := newTestHandler(t, sink)

	// nil Database makes a reachable solve panic; the handler must
	// absorb it rather than crash the daemon.
	assert.NotPanics(t, func() {
		h.Handle(context.Background(),
			json.RawMessage(`{"code":"DEMOGRAPHICS","analysis":"DISTRIBUTION","uuid":"u","owner":"o","collection":"c"}`))
	})
	assert.Empty(t, sink.submissions)
}
