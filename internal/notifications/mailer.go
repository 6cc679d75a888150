package notifications

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"meridian-backend/internal/appointment"
)

// Mailer builds and sends the appointment lifecycle emails. It
// implements the booking side's Notifier.
type Mailer struct {
	client        *BrevoClient
	manageBaseURL string
	displayZone   *time.Location
}

func NewMailer(client *BrevoClient, manageBaseURL string, displayZone *time.Location) *Mailer {
	if displayZone == nil {
		displayZone = time.UTC
	}
	return &Mailer{
		client:        client,
		manageBaseURL: strings.TrimRight(manageBaseURL, "/"),
		displayZone:   displayZone,
	}
}

const emailTimeLayout = "Monday, January 2, 2006 at 3:04 PM MST"

func (m *Mailer) formatTime(t time.Time) string {
	return t.In(m.displayZone).Format(emailTimeLayout)
}

func (m *Mailer) manageLink(token string) string {
	return m.manageBaseURL + "/" + token
}

func (m *Mailer) SendBookingConfirmation(ctx context.Context, a appointment.Appointment) (string, error) {
	if m.client == nil {
		return "", errors.New("email not configured")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", html.EscapeString(a.Name))
	b.WriteString("<p>Your consultation is booked.</p>")

	if a.ScheduledTime != nil {
		fmt.Fprintf(&b, "<p><strong>Time:</strong> %s</p>", m.formatTime(*a.ScheduledTime))
	} else {
		if a.PrimaryTime != nil {
			fmt.Fprintf(&b, "<p><strong>Preferred time:</strong> %s</p>", m.formatTime(*a.PrimaryTime))
		}
		if a.AlternateTime != nil {
			fmt.Fprintf(&b, "<p><strong>Alternate time:</strong> %s</p>", m.formatTime(*a.AlternateTime))
		}
		b.WriteString("<p>We will confirm one of your selected times shortly.</p>")
	}

	fmt.Fprintf(&b, `<p>Reschedule or cancel any time from your <a href="%s">appointment page</a>.</p>`, m.manageLink(a.ManageToken))
	b.WriteString("<p>Rescheduling is free up to 48 hours before your appointment. Cancellations inside 48 hours receive a 50% refund.</p>")

	return m.client.Send(ctx, a.Email, a.Name, "Your consultation is confirmed", b.String())
}

func (m *Mailer) SendCancellationNotice(ctx context.Context, a appointment.Appointment, refundCents int64, isFull bool) (string, error) {
	if m.client == nil {
		return "", errors.New("email not configured")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", html.EscapeString(a.Name))
	b.WriteString("<p>Your consultation has been cancelled.</p>")

	kind := "partial (50%)"
	if isFull {
		kind = "full"
	}
	fmt.Fprintf(&b, "<p>A %s refund of $%.2f has been issued to your original payment method. It may take 5-10 business days to appear.</p>",
		kind, float64(refundCents)/100)

	return m.client.Send(ctx, a.Email, a.Name, "Your consultation has been cancelled", b.String())
}
