package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"meridian-backend/internal/schedule"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound  = errors.New("appointment not found")
	ErrConflict  = errors.New("time slot no longer available")
	ErrCancelled = errors.New("appointment already cancelled")
	// ErrReschedulePolicy fires when a reschedule lands inside the
	// 48-hour window of the appointment's current effective time.
	ErrReschedulePolicy = errors.New("cannot reschedule within 48 hours of appointment")

	ErrPaymentNotConfigured = errors.New("payment system not configured")
	ErrPaymentDeclined      = errors.New("payment declined")
)

// OrphanedChargeError marks the one known non-atomic gap in the booking
// flow: the charge captured but the appointment write failed. There is
// no automatic compensation; callers must log the payment id so the
// charge can be refunded by hand.
type OrphanedChargeError struct {
	PaymentID string
	Err       error
}

func (e *OrphanedChargeError) Error() string {
	return fmt.Sprintf("appointment persist failed after charge %s: %v", e.PaymentID, e.Err)
}

func (e *OrphanedChargeError) Unwrap() error { return e.Err }

type ChargeRequest struct {
	Amount          int64
	PaymentMethodID string
	IdempotencyKey  string
	Metadata        map[string]string
}

type ChargeResult struct {
	PaymentID string
	Succeeded bool
}

// PaymentGateway is the external processor surface the booking rules
// need. Implementations return ErrPaymentDeclined (wrapped) for card
// declines and any other error for gateway failures.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, paymentID string, amount int64, idempotencyKey string) (string, error)
}

// BlackoutSource yields admin-blocked days, keyed by schedule.DayKey.
type BlackoutSource interface {
	Days(ctx context.Context, from, to time.Time) (map[string]bool, error)
}

type BookRequest struct {
	Name            string
	Email           string
	Phone           string
	Interest        string
	Notes           string
	PaymentMethodID string
	Selection       TimeSelection
}

type RescheduleRequest struct {
	Token     string
	Selection TimeSelection
}

type CancelResult struct {
	RefundAmount int64
	IsFullRefund bool
	Appointment  Appointment
}

type Service struct {
	repo      Repository
	gateway   PaymentGateway
	blackouts BlackoutSource
	layout    string
	policy    string
	price     int64
	now       func() time.Time

	// Serialization point for the check-then-act conflict window:
	// bookings and reschedules touching a slot hold its lock across
	// check + persist, so two racing requests for the same slot
	// cannot both pass the conflict check.
	lockMu    sync.Mutex
	slotLocks map[int64]*sync.Mutex
}

func NewService(repo Repository, gateway PaymentGateway, blackouts BlackoutSource, layout, policy string, price int64) *Service {
	return &Service{
		repo:      repo,
		gateway:   gateway,
		blackouts: blackouts,
		layout:    layout,
		policy:    policy,
		price:     price,
		now:       time.Now,
		slotLocks: make(map[int64]*sync.Mutex),
	}
}

func (s *Service) lockSlots(times []time.Time) func() {
	keys := make([]int64, 0, len(times))
	seen := make(map[int64]bool, len(times))
	for _, t := range times {
		k := t.Unix()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	locks := make([]*sync.Mutex, 0, len(keys))
	s.lockMu.Lock()
	for _, k := range keys {
		mu, ok := s.slotLocks[k]
		if !ok {
			mu = &sync.Mutex{}
			s.slotLocks[k] = mu
		}
		locks = append(locks, mu)
	}
	s.lockMu.Unlock()

	for _, mu := range locks {
		mu.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// Slots lists the currently bookable times: the generated window minus
// booked slots and blackout days.
func (s *Service) Slots(ctx context.Context) ([]time.Time, error) {
	now := s.now()

	booked, err := s.repo.BookedTimes(ctx, now)
	if err != nil {
		return nil, err
	}

	blackoutDays, err := s.blackoutDays(ctx, now)
	if err != nil {
		return nil, err
	}

	candidates := schedule.GenerateSlots(now, s.layout)
	return schedule.FilterAvailable(candidates, s.policy, booked, blackoutDays), nil
}

func (s *Service) blackoutDays(ctx context.Context, now time.Time) (map[string]bool, error) {
	if s.blackouts == nil {
		return nil, nil
	}
	return s.blackouts.Days(ctx, now, now.Add(schedule.WindowDays*24*time.Hour))
}

// Book runs the ordered side effects of appointment creation: conflict
// check, charge, persist. A failed charge aborts before anything is
// written; a failed write after a captured charge surfaces as
// OrphanedChargeError.
func (s *Service) Book(ctx context.Context, req BookRequest) (Appointment, error) {
	now := s.now()
	times := req.Selection.Times()

	if s.gateway == nil {
		return Appointment{}, ErrPaymentNotConfigured
	}

	unlock := s.lockSlots(times)
	defer unlock()

	blocked, err := s.blackoutDays(ctx, now)
	if err != nil {
		return Appointment{}, err
	}
	for _, t := range times {
		if blocked[schedule.DayKey(t)] {
			return Appointment{}, ErrConflict
		}
	}

	conflict, err := s.repo.HasConflict(ctx, times, "")
	if err != nil {
		return Appointment{}, err
	}
	if conflict {
		return Appointment{}, ErrConflict
	}

	meta := map[string]string{
		"name":  req.Name,
		"email": req.Email,
	}
	if req.Selection.Mode == ModeSingle {
		meta["scheduledTime"] = req.Selection.Scheduled.UTC().Format(time.RFC3339)
	} else {
		meta["primaryTime"] = req.Selection.Primary.UTC().Format(time.RFC3339)
		meta["alternateTime"] = req.Selection.Alternate.UTC().Format(time.RFC3339)
	}

	result, err := s.gateway.Charge(ctx, ChargeRequest{
		Amount:          s.price,
		PaymentMethodID: req.PaymentMethodID,
		IdempotencyKey:  "charge:" + uuid.NewString(),
		Metadata:        meta,
	})
	if err != nil {
		return Appointment{}, err
	}
	if !result.Succeeded {
		return Appointment{}, ErrPaymentDeclined
	}

	token, err := NewManageToken()
	if err != nil {
		return Appointment{}, &OrphanedChargeError{PaymentID: result.PaymentID, Err: err}
	}

	paidAt := now
	a := Appointment{
		ID:              primitive.NewObjectID().Hex(),
		ManageToken:     token,
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Interest:        req.Interest,
		Notes:           req.Notes,
		Status:          StatusConfirmed,
		StripePaymentID: result.PaymentID,
		PaidAt:          &paidAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Selection.Mode == ModeSingle {
		t := req.Selection.Scheduled.UTC()
		a.ScheduledTime = &t
	} else {
		p := req.Selection.Primary.UTC()
		alt := req.Selection.Alternate.UTC()
		a.PrimaryTime = &p
		a.AlternateTime = &alt
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return Appointment{}, &OrphanedChargeError{PaymentID: result.PaymentID, Err: err}
	}
	return a, nil
}

// Fetch resolves an appointment by its manage token.
func (s *Service) Fetch(ctx context.Context, token string) (Appointment, error) {
	a, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Appointment{}, ErrNotFound
		}
		return Appointment{}, err
	}
	return a, nil
}

// Reschedule moves a live appointment to new times. The 48-hour rule is
// evaluated against the current effective time, never the requested
// one, and the conflict check excludes the appointment itself.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (Appointment, error) {
	now := s.now()

	a, err := s.Fetch(ctx, req.Token)
	if err != nil {
		return Appointment{}, err
	}
	if a.Status == StatusCancelled {
		return Appointment{}, ErrCancelled
	}

	canReschedule, _, _ := Eligibility(a, now)
	if !canReschedule {
		return Appointment{}, ErrReschedulePolicy
	}

	times := req.Selection.Times()
	unlock := s.lockSlots(times)
	defer unlock()

	blocked, err := s.blackoutDays(ctx, now)
	if err != nil {
		return Appointment{}, err
	}
	for _, t := range times {
		if blocked[schedule.DayKey(t)] {
			return Appointment{}, ErrConflict
		}
	}

	conflict, err := s.repo.HasConflict(ctx, times, a.ID)
	if err != nil {
		return Appointment{}, err
	}
	if conflict {
		return Appointment{}, ErrConflict
	}

	return s.repo.Reschedule(ctx, a.ID, req.Selection, now)
}

// Cancel is terminal. The refund is derived here, never client
// supplied, and is only issued when a payment reference exists.
func (s *Service) Cancel(ctx context.Context, token string) (CancelResult, error) {
	now := s.now()

	a, err := s.Fetch(ctx, token)
	if err != nil {
		return CancelResult{}, err
	}
	if a.Status == StatusCancelled {
		return CancelResult{}, ErrCancelled
	}

	if s.gateway == nil {
		return CancelResult{}, ErrPaymentNotConfigured
	}

	refund, isFull := RefundForCancellation(a, now, s.price)

	refundID := ""
	if a.StripePaymentID != "" {
		refundID, err = s.gateway.Refund(ctx, a.StripePaymentID, refund, "refund:"+a.ID)
		if err != nil {
			return CancelResult{}, err
		}
	}

	updated, err := s.repo.Cancel(ctx, a.ID, now, refund, refundID)
	if err != nil {
		return CancelResult{}, err
	}

	return CancelResult{
		RefundAmount: refund,
		IsFullRefund: isFull,
		Appointment:  updated,
	}, nil
}

// ConfirmTime records the consultant's pick between a pair booking's
// candidate times. The time must match one of the stored candidates.
func (s *Service) ConfirmTime(ctx context.Context, id string, t time.Time) (Appointment, error) {
	updated, err := s.repo.ConfirmTime(ctx, id, t, s.now())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Appointment{}, ErrNotFound
		}
		return Appointment{}, err
	}
	return updated, nil
}

func (s *Service) ListAdmin(ctx context.Context, filter ListFilter, limit, offset int64) ([]Appointment, int64, error) {
	if filter.Status != "" && !IsValidStatus(filter.Status) {
		return nil, 0, fmt.Errorf("invalid status %q", filter.Status)
	}

	items, err := s.repo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
