package floor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("store is required")
	// ErrCaptureNotFound indicates no open capture matches the supplied id.
	ErrCaptureNotFound = errors.New("floor: order capture not found")
)

// ServiceConfig describes the dependencies of the floor service.
type ServiceConfig struct {
	Store         *Store
	Clock         func() time.Time
	ServiceWindow time.Duration
	Labels        *Labels
	IDProvider    IDProvider
	Logger        *zap.Logger
}

// Service is the single owner of the floor. Every mutation and every view read is
// serialized, so a save always completes before the next read or mutation starts.
type Service struct {
	mu         sync.Mutex
	store      *Store
	machine    Machine
	clock      func() time.Time
	labels     Labels
	idProvider IDProvider
	logger     *zap.Logger
	capture    *OrderCapture
}

// NewService wires the store to the state machine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	labels := DefaultLabels()
	if cfg.Labels != nil {
		labels = *cfg.Labels
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:      cfg.Store,
		machine:    NewMachine(cfg.ServiceWindow),
		clock:      clock,
		labels:     labels,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// now reads the clock at the millisecond resolution snapshots are stored with, so a
// record reloaded from storage equals the one that was saved.
func (s *Service) now() time.Time {
	return s.clock().Truncate(time.Millisecond)
}

// Load restores the persisted floor.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Load(ctx)
}

// CaptureView describes the open order capture.
type CaptureView struct {
	ID         string    `json:"id"`
	TableID    TableID   `json:"table_id"`
	Food       Plan      `json:"food,omitempty"`
	Drink      Plan      `json:"drink,omitempty"`
	CanConfirm bool      `json:"can_confirm"`
	OpenedAt   time.Time `json:"opened_at"`
}

func newCaptureView(capture *OrderCapture) CaptureView {
	food, drink := capture.Selection()
	return CaptureView{
		ID:         capture.ID,
		TableID:    capture.TableID,
		Food:       food,
		Drink:      drink,
		CanConfirm: capture.CanConfirm(),
		OpenedAt:   capture.OpenedAt,
	}
}

// AdvanceResult is the outcome of a table click.
type AdvanceResult struct {
	Record  TableRecord
	Step    Step
	Capture *CaptureView
}

// Advance handles a click on a table. A table waiting to order is left untouched and
// an order capture is opened for it instead, replacing any capture still open.
func (s *Service) Advance(ctx context.Context, id TableID) (AdvanceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Get(id)
	if err != nil {
		return AdvanceResult{}, err
	}
	now := s.now()

	if current.State == StateOrderWait {
		captureID, err := s.idProvider.NewID()
		if err != nil {
			logError(s.logger, opCapture, "id_generation_failed", err, zap.String("table", id.String()))
			return AdvanceResult{}, newServiceError(opCapture, "id_generation_failed", err)
		}
		if s.capture != nil {
			s.logger.Info("replacing open order capture",
				zap.String("capture_id", s.capture.ID),
				zap.String("table", s.capture.TableID.String()))
		}
		s.capture = NewOrderCapture(captureID, id, now)
		view := newCaptureView(s.capture)
		return AdvanceResult{Record: current, Step: StepCaptureRequired, Capture: &view}, nil
	}

	record, err := s.store.Apply(ctx, id, func(record TableRecord) (TableRecord, error) {
		updated, _, err := s.machine.Advance(record, now)
		return updated, err
	})
	if err != nil && !IsPersistError(err) {
		logError(s.logger, opAdvance, "transition_failed", err, zap.String("table", id.String()))
	}
	return AdvanceResult{Record: record, Step: StepAdvanced}, err
}

// CurrentCapture returns the open order capture, if any.
func (s *Service) CurrentCapture() (CaptureView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil {
		return CaptureView{}, false
	}
	return newCaptureView(s.capture), true
}

// SelectPlan records a choice in the open capture.
func (s *Service) SelectPlan(captureID string, group SelectionGroup, plan Plan) (CaptureView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capture, err := s.openCapture(captureID)
	if err != nil {
		return CaptureView{}, err
	}
	if err := capture.Select(group, plan); err != nil {
		return CaptureView{}, err
	}
	return newCaptureView(capture), nil
}

// ConfirmResult is the outcome of a confirmed order capture.
type ConfirmResult struct {
	TableID TableID
	Record  TableRecord
}

// ConfirmOrder commits the open capture's selection to its table. An incomplete
// selection leaves both the capture and the table untouched.
func (s *Service) ConfirmOrder(ctx context.Context, captureID string) (ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capture, err := s.openCapture(captureID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if !capture.CanConfirm() {
		return ConfirmResult{TableID: capture.TableID}, ErrIncompleteOrder
	}
	food, drink, err := capture.Confirm()
	if err != nil {
		return ConfirmResult{TableID: capture.TableID}, err
	}
	s.capture = nil

	now := s.now()
	record, err := s.store.Apply(ctx, capture.TableID, func(record TableRecord) (TableRecord, error) {
		return s.machine.CommitOrder(record, food, drink, now)
	})
	if err != nil && !IsPersistError(err) {
		logError(s.logger, opConfirmOrder, "commit_failed", err, zap.String("table", capture.TableID.String()))
	}
	return ConfirmResult{TableID: capture.TableID, Record: record}, err
}

// CancelCapture discards the open capture without touching any table.
func (s *Service) CancelCapture(captureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	capture, err := s.openCapture(captureID)
	if err != nil {
		return err
	}
	capture.Cancel()
	s.capture = nil
	return nil
}

func (s *Service) openCapture(captureID string) (*OrderCapture, error) {
	if s.capture == nil || s.capture.ID != strings.TrimSpace(captureID) {
		return nil, ErrCaptureNotFound
	}
	return s.capture, nil
}

// Table returns the record of one table.
func (s *Service) Table(id TableID) (TableRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(id)
}

// LastOrders returns the current last-order worklist.
func (s *Service) LastOrders() []LastOrderEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LastOrderQueue(s.store.registry, s.store.Records())
}

// LastOrderView is a worklist line prepared for display.
type LastOrderView struct {
	TableID  TableID   `json:"table_id"`
	Deadline time.Time `json:"deadline"`
	Display  string    `json:"display"`
}

// Frame is one refresh of everything the floor screen shows.
type Frame struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Clock       string          `json:"clock"`
	FloorMap    FloorMap        `json:"floor_map"`
	LastOrders  []LastOrderView `json:"last_orders"`
}

// Frame derives the floor map, worklist and wall clock from the current records.
// It never mutates the floor.
func (s *Service) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	records := s.store.Records()
	queue := LastOrderQueue(s.store.registry, records)
	views := make([]LastOrderView, 0, len(queue))
	for _, entry := range queue {
		views = append(views, LastOrderView{
			TableID:  entry.TableID,
			Deadline: entry.Deadline,
			Display:  FormatClock(entry.Deadline.In(now.Location())),
		})
	}
	return Frame{
		GeneratedAt: now,
		Clock:       FormatClock(now),
		FloorMap:    BuildFloorMap(s.store.registry, records, now, s.labels),
		LastOrders:  views,
	}
}

// IsPersistError reports whether err came from a failed snapshot write, in which
// case the in-memory floor already holds the new state.
func IsPersistError(err error) bool {
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		return false
	}
	return strings.HasPrefix(serviceErr.Code(), opSave+".")
}
