package history

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service records and queries connection history.
type Service struct {
	repo   Repository
	logger Logger
	now    func() time.Time

	// entropy is monotonic so IDs minted in the same millisecond still sort
	// in record order. Not safe for concurrent use, hence idMu.
	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewService creates a history service over repo.
func NewService(repo Repository) *Service {
	return &Service{
		repo:    repo,
		logger:  noopLogger{},
		now:     func() time.Time { return time.Now().UTC() },
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Record appends an event for deviceID and returns it.
func (s *Service) Record(ctx context.Context, deviceID string, typ EventType, details string) (*ConnectionEvent, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidEvent)
	}
	switch typ {
	case EventConnect, EventDisconnect, EventError, EventConfigChange:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, typ)
	}

	now := s.now()
	ev := &ConnectionEvent{
		ID:        s.newID(now),
		DeviceID:  deviceID,
		Type:      typ,
		Timestamp: now,
		Details:   details,
	}
	if err := s.repo.Create(ctx, ev); err != nil {
		return nil, err
	}
	s.logger.Debug("connection event recorded", "id", ev.ID, "device_id", deviceID, "type", typ)
	return ev, nil
}

func (s *Service) newID(t time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

// List returns one page of events matching filter, most recent first.
func (s *Service) List(ctx context.Context, filter Filter) (*ListResult, error) {
	return s.repo.List(ctx, filter)
}

// Prune deletes events older than olderThan and reports how many.
func (s *Service) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: retention must be positive, got %s", olderThan)
	}
	n, err := s.repo.DeleteBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("connection history pruned", "removed", n, "retention", olderThan)
	}
	return n, nil
}
