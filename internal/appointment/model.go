package appointment

import "time"

const (
	// Scheduling shapes; mirror the config booking-mode values.
	ModeSingle = "single"
	ModePair   = "pair"
)

const (
	StatusPending     = "pending"
	StatusConfirmed   = "confirmed"
	StatusCancelled   = "cancelled"
	StatusRescheduled = "rescheduled"
)

// PriceCents is the fixed consultation price: $199.
const PriceCents int64 = 19900

// ReschedulePolicyWindow is the cutoff for free rescheduling. Inside
// it the client can only cancel, for a half refund.
const ReschedulePolicyWindow = 48 * time.Hour

var validStatuses = map[string]struct{}{
	StatusPending:     {},
	StatusConfirmed:   {},
	StatusCancelled:   {},
	StatusRescheduled: {},
}

func IsValidStatus(value string) bool {
	_, ok := validStatuses[value]
	return ok
}

// Appointment is the sole booked entity. Which time fields are set
// depends on the deployment's scheduling mode: single-slot bookings
// carry scheduledTime, primary/alternate bookings carry primaryTime and
// alternateTime plus confirmedTime once the consultant picks one.
type Appointment struct {
	ID          string `bson:"_id,omitempty" json:"id"`
	ManageToken string `bson:"manageToken" json:"-"`

	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
	Phone string `bson:"phone,omitempty" json:"phone,omitempty"`

	ScheduledTime *time.Time `bson:"scheduledTime,omitempty" json:"scheduledTime,omitempty"`
	PrimaryTime   *time.Time `bson:"primaryTime,omitempty" json:"primaryTime,omitempty"`
	AlternateTime *time.Time `bson:"alternateTime,omitempty" json:"alternateTime,omitempty"`
	ConfirmedTime *time.Time `bson:"confirmedTime,omitempty" json:"confirmedTime,omitempty"`

	Interest string `bson:"interest,omitempty" json:"interest,omitempty"`
	Notes    string `bson:"notes,omitempty" json:"notes,omitempty"`
	Status   string `bson:"status" json:"status"`

	StripePaymentID string     `bson:"stripePaymentId,omitempty" json:"-"`
	StripeRefundID  string     `bson:"stripeRefundId,omitempty" json:"-"`
	RefundAmount    int64      `bson:"refundAmount,omitempty" json:"-"`
	PaidAt          *time.Time `bson:"paidAt,omitempty" json:"-"`
	CancelledAt     *time.Time `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// EffectiveTime is the binding scheduled time used by every 48-hour
// policy decision: confirmedTime, else primaryTime, else scheduledTime.
func (a Appointment) EffectiveTime() time.Time {
	switch {
	case a.ConfirmedTime != nil:
		return *a.ConfirmedTime
	case a.PrimaryTime != nil:
		return *a.PrimaryTime
	case a.ScheduledTime != nil:
		return *a.ScheduledTime
	}
	return time.Time{}
}

// GoverningTimes are the slot values this appointment occupies for
// conflict purposes.
func (a Appointment) GoverningTimes() []time.Time {
	times := make([]time.Time, 0, 4)
	for _, t := range []*time.Time{a.ScheduledTime, a.PrimaryTime, a.AlternateTime, a.ConfirmedTime} {
		if t != nil {
			times = append(times, *t)
		}
	}
	return times
}

// TimeSelection is the tagged scheduling shape a booking or reschedule
// request resolves to. Exactly one shape is active per deployment.
type TimeSelection struct {
	Mode      string // ModeSingle or ModePair
	Scheduled time.Time
	Primary   time.Time
	Alternate time.Time
}

// Times lists the slot values the selection claims, in a stable order.
func (s TimeSelection) Times() []time.Time {
	if s.Mode == ModeSingle {
		return []time.Time{s.Scheduled}
	}
	return []time.Time{s.Primary, s.Alternate}
}

// Eligibility computes the derived management-view fields shared by the
// fetch endpoint and the reschedule/cancel rules.
func Eligibility(a Appointment, now time.Time) (canReschedule, canCancel bool, refundPercent int) {
	canReschedule = a.EffectiveTime().Sub(now) > ReschedulePolicyWindow
	canCancel = a.Status != StatusCancelled
	refundPercent = 50
	if canReschedule {
		refundPercent = 100
	}
	return canReschedule, canCancel, refundPercent
}

// RefundForCancellation derives the refund owed when cancelling at now:
// the full price outside the 48-hour window, half (floored) inside it.
func RefundForCancellation(a Appointment, now time.Time, price int64) (amount int64, isFull bool) {
	if a.EffectiveTime().Sub(now) > ReschedulePolicyWindow {
		return price, true
	}
	return price / 2, false
}

type ListFilter struct {
	Status string
}
