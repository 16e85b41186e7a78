package wearsync

import (
	"context"

	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/datalayer"
	"github.com/kjstillabower/sunshine-wear/internal/observability"
	"github.com/kjstillabower/sunshine-wear/internal/wearproto"
)

type publisher interface {
	Publish(ctx context.Context, force bool) error
}

// UpdateListener re-publishes with force on every watch update request.
type UpdateListener struct {
	ctx       context.Context
	publisher publisher
	logger    *zap.Logger
}

var _ datalayer.DataListener = (*UpdateListener)(nil)

// NewUpdateListener returns a listener whose publishes run under ctx.
func NewUpdateListener(ctx context.Context, p publisher, logger *zap.Logger) *UpdateListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UpdateListener{ctx: ctx, publisher: p, logger: logger}
}

// OnDataChanged publishes once per changed update item. There is no
// debouncing and no acknowledgement to the requester.
func (l *UpdateListener) OnDataChanged(events []datalayer.DataEvent) {
	for _, e := range events {
		if e.Type != datalayer.EventChanged || e.Item.Path != wearproto.UpdatePath {
			continue
		}
		observability.UpdateRequestsTotal.Inc()
		l.logger.Debug("update requested", zap.String("node", e.Item.Node))
		if err := l.publisher.Publish(l.ctx, true); err != nil {
			l.logger.Warn("publish on update request failed", zap.Error(err))
		}
	}
}
