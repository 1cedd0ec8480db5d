package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"

	"github.com/Health-Informatics-UoN/bunny/internal/distribution"
	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
	"github.com/Health-Informatics-UoN/bunny/internal/solver"
)

// ResultSink receives solved results, normally the task API client.
type ResultSink interface {
	SubmitResult(ctx context.Context, uuid, collection string, result any) error
}

// Handler turns one raw task payload into a submitted result. Every
// failure mode is logged and absorbed: a single bad task must never
// take the daemon down.
type Handler struct {
	executor *solver.Executor
	sink     ResultSink
	mods     protocol.Modifiers
	logger   *slog.Logger
}

// NewHandler builds a Handler. mods is the daemon's standing
// results-modifiers list, built once from the configured disclosure
// thresholds.
func NewHandler(executor *solver.Executor, sink ResultSink, mods protocol.Modifiers, logger *slog.Logger) *Handler {
	return &Handler{executor: executor, sink: sink, mods: mods, logger: logger}
}

// Handle solves the task and submits its result.
func (h *Handler) Handle(ctx context.Context, task json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic handling task", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	result, err := h.executor.Execute(ctx, task, h.mods)
	switch {
	case errors.Is(err, distribution.ErrNotImplemented):
		h.logger.Error("not implemented", "error", err, "task", string(task))
		return
	case errors.Is(err, solver.ErrInvalidQuery):
		h.logger.Error("invalid task input", "error", err, "task", string(task))
		return
	case err != nil:
		h.logger.Error("unexpected error handling task", "error", err)
		return
	}

	if err := h.sink.SubmitResult(ctx, result.UUID, result.CollectionID, result.ToWire()); err != nil {
		h.logger.Error("failed to submit result", "uuid", result.UUID, "error", err)
	}
}
