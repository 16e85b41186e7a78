package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// FlushTelemetry flushes telemetry buffers before process exit.
// Metrics are pull-based, so this mainly flushes logs. Sync on a terminal or
// pipe stderr reports EINVAL/ENOTTY, which is not a lost write.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if logger != nil {
		if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
			return fmt.Errorf("flush logs: %w", err)
		}
	}
	return nil
}
