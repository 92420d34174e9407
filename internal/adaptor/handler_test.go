package adaptor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hotel-booking/internal/dto/request"
	"hotel-booking/internal/dto/response"
	"hotel-booking/internal/usecase"
	"hotel-booking/pkg/apperror"
	"hotel-booking/pkg/payment"
	"hotel-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

type stubBookings struct {
	usecase.BookingService
	err      error
	gotUser  uuid.UUID
	gotReq   *request.InitiateBookingRequest
	cancelID uuid.UUID
}

func (s *stubBookings) InitiateBooking(_ context.Context, userID uuid.UUID, req *request.InitiateBookingRequest) (*response.InitiateBookingResponse, error) {
	s.gotUser, s.gotReq = userID, req
	if s.err != nil {
		return nil, s.err
	}
	return &response.InitiateBookingResponse{BookingID: uuid.NewString(), ClientSecret: "secret"}, nil
}

func (s *stubBookings) CancelBooking(_ context.Context, userID, bookingID uuid.UUID) (*response.BookingResponse, error) {
	s.gotUser, s.cancelID = userID, bookingID
	if s.err != nil {
		return nil, s.err
	}
	return &response.BookingResponse{ID: bookingID.String()}, nil
}

func (s *stubBookings) ExpireStalePending(context.Context) (*response.ExpireResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &response.ExpireResponse{Expired: 2}, nil
}

type stubPayments struct {
	err          error
	gotSignature string
	gotPayload   string
}

func (s *stubPayments) HandleWebhook(_ context.Context, payload []byte, signature string) error {
	s.gotPayload, s.gotSignature = string(payload), signature
	return s.err
}

func (s *stubPayments) ProcessEvent(context.Context, *payment.Event) error { return nil }

func withUser(r *http.Request, id uuid.UUID) *http.Request {
	return r.WithContext(utils.SetUserContext(r.Context(), id, utils.RoleGuest))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) utils.Response {
	t.Helper()
	var body utils.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return body
}

const validBooking = `{
	"hotel_id": "6f1c1f0e-3b7a-4a43-9d59-3f8f2b7c1a10",
	"room_type_id": "0b6a8c55-77b4-4d2e-8c43-1f7a5c2f9e21",
	"check_in": "2026-11-02",
	"check_out": "2026-11-04",
	"adults": 2,
	"guest_name": "Ada Lovelace"
}`

func TestInitiateBookingHandler(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
	}{
		{"created", validBooking, nil, http.StatusCreated},
		{"malformed json", `{"hotel_id":`, nil, http.StatusBadRequest},
		{"failed validation", `{"hotel_id":"x","adults":0}`, nil, http.StatusBadRequest},
		{"not found", validBooking, apperror.NotFound("hotel not found"), http.StatusNotFound},
		{"no longer available", validBooking, apperror.Validation("no longer available"), http.StatusBadRequest},
		{"retryable conflict", validBooking, apperror.Conflict("please retry"), http.StatusConflict},
		{"infrastructure", validBooking, apperror.Infrastructure("create payment intent", context.DeadlineExceeded), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubBookings{err: tc.serviceErr}
			h := NewBookingHandler(svc, zaptest.NewLogger(t))
			userID := uuid.New()

			req := withUser(httptest.NewRequest(http.MethodPost, "/api/bookings/initiate", strings.NewReader(tc.body)), userID)
			rec := httptest.NewRecorder()
			h.InitiateBooking(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if tc.wantStatus == http.StatusCreated && (svc.gotUser != userID || svc.gotReq.GuestName != "Ada Lovelace") {
				t.Fatal("request not forwarded to the service")
			}
			if tc.wantStatus == http.StatusInternalServerError {
				if msg := decode(t, rec).Message; msg != "Internal server error" {
					t.Fatalf("internal detail leaked: %q", msg)
				}
			}
		})
	}
}

func TestInitiateBookingRequiresUser(t *testing.T) {
	h := NewBookingHandler(&stubBookings{}, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	h.InitiateBooking(rec, httptest.NewRequest(http.MethodPost, "/api/bookings/initiate", strings.NewReader(validBooking)))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCancelBookingHandler(t *testing.T) {
	svc := &stubBookings{}
	h := NewBookingHandler(svc, zaptest.NewLogger(t))
	r := chi.NewRouter()
	r.Post("/api/bookings/{id}/cancel", h.CancelBooking)

	userID, bookingID := uuid.New(), uuid.New()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/bookings/"+bookingID.String()+"/cancel", nil), userID))
	if rec.Code != http.StatusOK || svc.cancelID != bookingID || svc.gotUser != userID {
		t.Fatalf("status = %d, cancelled %s", rec.Code, svc.cancelID)
	}

	svc.err = apperror.IllegalState("too close to check-in")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/bookings/"+bookingID.String()+"/cancel", nil), userID))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/bookings/not-a-uuid/cancel", nil), userID))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPaymentWebhookHandler(t *testing.T) {
	cases := []struct {
		name       string
		signature  string
		serviceErr error
		wantStatus int
	}{
		{"accepted", "t=1,v1=abc", nil, http.StatusOK},
		{"missing signature", "", nil, http.StatusBadRequest},
		{"bad signature", "t=1,v1=abc", apperror.Validation("invalid webhook signature"), http.StatusBadRequest},
		{"unknown booking", "t=1,v1=abc", apperror.NotFound("booking not found"), http.StatusNotFound},
		{"storage down", "t=1,v1=abc", apperror.Infrastructure("reconcile", context.Canceled), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubPayments{err: tc.serviceErr}
			h := NewWebhookHandler(svc, zaptest.NewLogger(t))

			req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(`{"id":"evt_1"}`))
			if tc.signature != "" {
				req.Header.Set(StripeSignatureHeader, tc.signature)
			}
			rec := httptest.NewRecorder()
			h.PaymentWebhook(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.signature != "" && (svc.gotPayload != `{"id":"evt_1"}` || svc.gotSignature != tc.signature) {
				t.Fatal("raw payload and signature must reach the service untouched")
			}
		})
	}
}

func TestAdminHandlerRequiresAdminRole(t *testing.T) {
	cases := []struct {
		name string
		ctx  func(r *http.Request) *http.Request
		want int
	}{
		{"no identity", func(r *http.Request) *http.Request { return r }, http.StatusForbidden},
		{"guest", func(r *http.Request) *http.Request { return withUser(r, uuid.New()) }, http.StatusForbidden},
		{"admin", func(r *http.Request) *http.Request {
			return r.WithContext(utils.SetUserContext(r.Context(), uuid.Nil, utils.RoleAdmin))
		}, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewAdminHandler(&stubBookings{}, zaptest.NewLogger(t))

			req := tc.ctx(httptest.NewRequest(http.MethodPost, "/api/admin/bookings/expire", nil))
			rec := httptest.NewRecorder()
			h.ExpireStalePending(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
