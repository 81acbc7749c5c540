package llamadb

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	loggerMu sync.RWMutex
	logger   = zap.NewNop()
)

// RegisterLogger overrides the package-level logger used for statement
// dispatch diagnostics. Embedders call this once at startup; tests can
// call it with zaptest loggers. A nil logger restores the no-op
// default.
func RegisterLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if l == nil {
		logger = zap.NewNop()
		return
	}
	logger = l
}

func currentLogger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Logger returns the registered package logger (a no-op logger until
// RegisterLogger is called).
func Logger() *zap.Logger { return currentLogger() }

// Session correlates one REPL/client connection's statements in logs.
// Rows themselves are identified by their u64 rowid (storage.go);
// Session.ID exists purely for log correlation.
type Session struct {
	ID uuid.UUID
	DB *TempDb
}

// NewSession opens a session bound to db, stamping a fresh correlation
// ID.
func NewSession(db *TempDb) *Session {
	return &Session{ID: uuid.New(), DB: db}
}

// LogFields returns the structured fields statement dispatch stamps on
// every log entry for this session.
func (s *Session) LogFields() []zap.Field {
	return []zap.Field{zap.String("session_id", s.ID.String())}
}
