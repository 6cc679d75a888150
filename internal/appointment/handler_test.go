package appointment

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meridian-backend/internal/cache"
	"meridian-backend/internal/validation"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T, repo Repository, gw PaymentGateway, mode string) (*chi.Mux, *Service) {
	t.Helper()
	s := newTestService(repo, gw)
	log := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewHandler(s, validation.New(), log, cache.NewNoop(), nil, mode, time.Minute)

	r := chi.NewRouter()
	r.Get("/appointments/slots", h.Slots)
	r.Post("/appointments/create", h.Create)
	r.Post("/appointments/reschedule", h.Reschedule)
	r.Post("/appointments/cancel", h.Cancel)
	r.Get("/appointments/{token}", h.Get)
	return r, s
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func createBody(slot time.Time) map[string]interface{} {
	return map[string]interface{}{
		"name":            "Ada Lovelace",
		"email":           "ada@example.com",
		"selectedTime":    slot.Format(time.RFC3339),
		"paymentMethodId": "pm_1",
	}
}

func TestHandlerSlots(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModeSingle)

	rec := doJSON(t, r, http.MethodGet, "/appointments/slots", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	slots, ok := body["slots"].([]interface{})
	if !ok || len(slots) == 0 {
		t.Fatalf("no slots in %v", body)
	}
}

func TestHandlerCreateSingle(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModeSingle)

	rec := doJSON(t, r, http.MethodPost, "/appointments/create", createBody(futureSlot(72*time.Hour)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("no success flag in %v", body)
	}
	appt, ok := body["appointment"].(map[string]interface{})
	if !ok {
		t.Fatalf("no appointment in %v", body)
	}
	if tok, _ := appt["manageToken"].(string); tok == "" {
		t.Fatal("no manage token in response")
	}
}

func TestHandlerCreateMissingFields(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModeSingle)

	rec := doJSON(t, r, http.MethodPost, "/appointments/create", map[string]interface{}{
		"name":  "Ada",
		"email": "ada@example.com",
		// no selectedTime, no paymentMethodId
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerCreatePairRequiresBothTimes(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModePair)

	rec := doJSON(t, r, http.MethodPost, "/appointments/create", map[string]interface{}{
		"name":            "Ada",
		"email":           "ada@example.com",
		"primaryTime":     futureSlot(72 * time.Hour).Format(time.RFC3339),
		"paymentMethodId": "pm_1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != "Missing required fields" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestHandlerCreateConflict(t *testing.T) {
	repo := newFakeRepo()
	r, _ := newTestRouter(t, repo, &fakeGateway{}, ModeSingle)

	slot := futureSlot(72 * time.Hour)
	if rec := doJSON(t, r, http.MethodPost, "/appointments/create", createBody(slot)); rec.Code != http.StatusCreated {
		t.Fatalf("first create: %d", rec.Code)
	}

	rec := doJSON(t, r, http.MethodPost, "/appointments/create", createBody(slot))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != "This time slot is no longer available" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestHandlerCreateDeclined(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{declined: true}, ModeSingle)

	rec := doJSON(t, r, http.MethodPost, "/appointments/create", createBody(futureSlot(72*time.Hour)))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerCreateNoGateway(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), nil, ModeSingle)

	rec := doJSON(t, r, http.MethodPost, "/appointments/create", createBody(futureSlot(72*time.Hour)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != "Payment system not configured" {
		t.Fatalf("error = %v", body["error"])
	}
}

func bookViaHandler(t *testing.T, r http.Handler, slot time.Time) string {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/appointments/create", createBody(slot))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	appt := decodeBody(t, rec)["appointment"].(map[string]interface{})
	return appt["manageToken"].(string)
}

func TestHandlerGet(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModeSingle)
	token := bookViaHandler(t, r, futureSlot(72*time.Hour))

	rec := doJSON(t, r, http.MethodGet, "/appointments/"+token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != StatusConfirmed {
		t.Fatalf("status field = %v", body["status"])
	}
	if body["canReschedule"] != true || body["canCancel"] != true {
		t.Fatalf("eligibility = %v / %v", body["canReschedule"], body["canCancel"])
	}
	if pct, _ := body["refundPercent"].(float64); pct != 100 {
		t.Fatalf("refundPercent = %v", body["refundPercent"])
	}
}

func TestHandlerGetUnknownToken(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModeSingle)

	rec := doJSON(t, r, http.MethodGet, "/appointments/deadbeef", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerReschedule(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModeSingle)
	token := bookViaHandler(t, r, futureSlot(72*time.Hour))

	rec := doJSON(t, r, http.MethodPost, "/appointments/reschedule", map[string]interface{}{
		"token":           token,
		"newSelectedTime": futureSlot(96 * time.Hour).Format(time.RFC3339),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("no success flag in %v", body)
	}
}

func TestHandlerRescheduleInsideWindow(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModeSingle)
	token := bookViaHandler(t, r, futureSlot(24*time.Hour))

	rec := doJSON(t, r, http.MethodPost, "/appointments/reschedule", map[string]interface{}{
		"token":           token,
		"newSelectedTime": futureSlot(96 * time.Hour).Format(time.RFC3339),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != "Cannot reschedule within 48 hours of appointment. You can cancel for a 50% refund." {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestHandlerRescheduleConflict(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModeSingle)
	taken := futureSlot(72 * time.Hour)
	bookViaHandler(t, r, taken)
	token := bookViaHandler(t, r, futureSlot(96*time.Hour))

	rec := doJSON(t, r, http.MethodPost, "/appointments/reschedule", map[string]interface{}{
		"token":           token,
		"newSelectedTime": taken.Format(time.RFC3339),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerCancelFullRefund(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModeSingle)
	token := bookViaHandler(t, r, futureSlot(72*time.Hour))

	rec := doJSON(t, r, http.MethodPost, "/appointments/cancel", map[string]interface{}{"token": token})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["isFullRefund"] != true {
		t.Fatalf("isFullRefund = %v", body["isFullRefund"])
	}
	if amt, _ := body["refundAmount"].(float64); amt != 199.00 {
		t.Fatalf("refundAmount = %v, want 199", body["refundAmount"])
	}
}

func TestHandlerCancelHalfRefund(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModeSingle)
	token := bookViaHandler(t, r, futureSlot(24*time.Hour))

	rec := doJSON(t, r, http.MethodPost, "/appointments/cancel", map[string]interface{}{"token": token})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["isFullRefund"] != false {
		t.Fatalf("isFullRefund = %v", body["isFullRefund"])
	}
	if amt, _ := body["refundAmount"].(float64); amt != 99.50 {
		t.Fatalf("refundAmount = %v, want 99.50", body["refundAmount"])
	}
}

func TestHandlerCancelTwice(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModeSingle)
	token := bookViaHandler(t, r, futureSlot(72*time.Hour))

	if rec := doJSON(t, r, http.MethodPost, "/appointments/cancel", map[string]interface{}{"token": token}); rec.Code != http.StatusOK {
		t.Fatalf("first cancel: %d", rec.Code)
	}
	rec := doJSON(t, r, http.MethodPost, "/appointments/cancel", map[string]interface{}{"token": token})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != "Appointment already cancelled" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestHandlerRejectsUnknownFields(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModeSingle)

	body := createBody(futureSlot(72 * time.Hour))
	body["admin"] = true
	rec := doJSON(t, r, http.MethodPost, "/appointments/create", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerCreatePair(t *testing.T) {
	r, _ := newTestRouter(t, newFakeRepo(), &fakeGateway{}, ModePair)

	rec := doJSON(t, r, http.MethodPost, "/appointments/create", map[string]interface{}{
		"name":            "Ada",
		"email":           "ada@example.com",
		"primaryTime":     futureSlot(72 * time.Hour).Format(time.RFC3339),
		"alternateTime":   futureSlot(96 * time.Hour).Format(time.RFC3339),
		"paymentMethodId": "pm_1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	appt := decodeBody(t, rec)["appointment"].(map[string]interface{})
	for _, key := range []string{"primaryTime", "alternateTime", "manageToken"} {
		if _, ok := appt[key]; !ok {
			t.Fatalf("missing %s in %v", key, appt)
		}
	}
}
