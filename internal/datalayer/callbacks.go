package datalayer

import "go.uber.org/zap"

// LogCallbacks returns ConnectionCallbacks that only log. Session failures are
// not retried; the session stays down until the owner calls Connect again.
func LogCallbacks(logger *zap.Logger, component string) ConnectionCallbacks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logCallbacks{logger: logger.With(zap.String("component", component))}
}

type logCallbacks struct {
	logger *zap.Logger
}

func (l logCallbacks) OnConnected() {
	l.logger.Debug("data layer connected")
}

func (l logCallbacks) OnSuspended(cause SuspendCause) {
	l.logger.Info("data layer connection suspended", zap.Stringer("cause", cause))
}

func (l logCallbacks) OnFailed(err error) {
	l.logger.Warn("data layer connection failed", zap.Error(err))
}
