package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	maxTitleLength   = 200
	maxMessageLength = 2000
)

// Logger defines the logging interface used by the Service.
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

// Service ingests and manages alerts.
type Service struct {
	repo   Repository
	logger Logger
	now    func() time.Time

	mu       sync.RWMutex
	onIngest []func(Alert)
}

// NewService creates an alert service over repo.
func NewService(repo Repository) *Service {
	return &Service{
		repo:   repo,
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// OnIngest registers fn to be called with every stored alert.
func (s *Service) OnIngest(fn func(Alert)) {
	s.mu.Lock()
	s.onIngest = append(s.onIngest, fn)
	s.mu.Unlock()
}

// Ingest validates and stores an alert from an external source.
// ID is always assigned here; a zero Timestamp becomes now. Ingested
// alerts start unread.
func (s *Service) Ingest(ctx context.Context, a Alert) (*Alert, error) {
	a.DeviceID = strings.TrimSpace(a.DeviceID)
	a.Title = strings.TrimSpace(a.Title)
	if a.Type == "" {
		a.Type = TypeInfo
	}
	if err := Validate(&a); err != nil {
		return nil, err
	}

	a.ID = ulid.Make().String()
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}
	a.Read = false

	if err := s.repo.Create(ctx, &a); err != nil {
		return nil, err
	}
	s.logger.Info("alert ingested", "id", a.ID, "device_id", a.DeviceID, "type", a.Type)

	s.mu.RLock()
	hooks := s.onIngest
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(a)
	}
	return &a, nil
}

// List returns alerts newest first.
func (s *Service) List(ctx context.Context, unreadOnly bool) ([]Alert, error) {
	return s.repo.List(ctx, unreadOnly)
}

// MarkRead marks one alert read.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.repo.MarkRead(ctx, id)
}

// ClearAll removes every alert and returns how many were removed.
func (s *Service) ClearAll(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("alerts cleared", "count", n)
	return n, nil
}

// UnreadCount returns the number of unread alerts.
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	return s.repo.CountUnread(ctx)
}

// Validate checks the fields an external source must supply.
func Validate(a *Alert) error {
	switch a.Type {
	case TypeWarning, TypeError, TypeInfo:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAlert, a.Type)
	}
	if a.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidAlert)
	}
	if a.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidAlert)
	}
	if len(a.Title) > maxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidAlert, maxTitleLength)
	}
	if len(a.Message) > maxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidAlert, maxMessageLength)
	}
	return nil
}

// Decode parses an alert published on avclink/alert/{deviceID}. The topic's
// device ID wins over any device_id in the payload.
func Decode(deviceID string, payload []byte) (Alert, error) {
	var a Alert
	if err := json.Unmarshal(payload, &a); err != nil {
		return Alert{}, fmt.Errorf("%w: %w", ErrInvalidAlert, err)
	}
	a.DeviceID = deviceID
	return a, nil
}
