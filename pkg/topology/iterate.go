package topology

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/NERVsystems/osmtopology/pkg/monitoring"
)

// Iterate calls fn for every item. An item whose fn returns an error or
// panics is logged with its description and counted, and iteration goes
// on with the next item. It stops early only when ctx is done.
func Iterate[T any](ctx context.Context, logger *slog.Logger, stage string, items []T, describe func(T) string, fn func(T) error) (failures int, err error) {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		if !Try(logger, stage, func() string { return describe(item) }, func() error { return fn(item) }) {
			failures++
		}
	}
	return failures, nil
}

// Try runs fn and reports whether it completed. Errors and panics are
// logged and recorded as failures of stage instead of being propagated.
func Try(logger *slog.Logger, stage string, describe func() string, fn func() error) (ok bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ok = false
		logger.Error("recovered from panic",
			"stage", stage,
			"element", describeSafely(describe),
			"panic", fmt.Sprint(r))
		logger.Debug("panic stack", "stage", stage, "stack", string(debug.Stack()))
		monitoring.RecordTopologyFailure(stage)
	}()

	if err := fn(); err != nil {
		logger.Warn("skipping element after error",
			"stage", stage,
			"element", describeSafely(describe),
			"error", err)
		monitoring.RecordTopologyFailure(stage)
		return false
	}
	return true
}

func describeSafely(describe func() string) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("<undescribable: %v>", r)
		}
	}()
	return describe()
}
