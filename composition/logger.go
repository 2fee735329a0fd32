package composition

import (
	"time"

	"github.com/hupe1980/calmesh/core"
	"github.com/hupe1980/calmesh/logging"
)

// loggerAdapter wraps a logging.Logger and exposes the event helpers of the
// composition layer. It guarantees a non-nil logger by substituting a
// NoOpLogger when constructed with nil.
type loggerAdapter struct {
	logger logging.Logger
	rich   *logging.CalMeshLogger
}

func newLoggerAdapter(l logging.Logger, session core.Session) *loggerAdapter {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	la := &loggerAdapter{logger: l}
	if cl, ok := l.(*logging.CalMeshLogger); ok {
		la.rich = cl.WithComponent("composition").WithSession(session.ID)
		la.logger = la.rich
	}
	return la
}

// Logger returns the underlying logger.
func (l *loggerAdapter) Logger() logging.Logger {
	return l.logger
}

func (l *loggerAdapter) LogDebug(msg string, args ...any) { l.logger.Debug(msg, args...) }

func (l *loggerAdapter) LogInfo(msg string, args ...any) { l.logger.Info(msg, args...) }

func (l *loggerAdapter) LogWarn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// dispatch records one backend call.
func (l *loggerAdapter) dispatch(op string, account core.AccountID, provider string, start time.Time, err error) {
	if l.rich != nil {
		l.rich.LogDispatch(op, int(account), provider, time.Since(start), err)
		return
	}
	args := []any{"operation", op, "account", int(account), "provider", provider, "duration_ms", time.Since(start).Milliseconds()}
	if err != nil {
		l.logger.Warn("calendar.dispatch.failed", append(args, "error", err.Error())...)
		return
	}
	l.logger.Debug("calendar.dispatch", args...)
}

// fanOut records a completed multi-account operation.
func (l *loggerAdapter) fanOut(op string, accounts int, start time.Time, failures int) {
	if l.rich != nil {
		l.rich.LogFanOut(op, accounts, time.Since(start), failures)
		return
	}
	l.logger.Debug("calendar.fanout",
		"operation", op,
		"account_count", accounts,
		"failures", failures,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
