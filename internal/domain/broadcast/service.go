package broadcast

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/db"
	"github.com/medconnect/medconnect/internal/platform/notification"
)

const maxMedicationName = 100

type Service struct {
	broadcasts     BroadcastRepository
	responses      ResponseRepository
	tx             db.TxManager
	notifier       *notification.Notifier
	discountWindow time.Duration
	now            func() time.Time
	logger         zerolog.Logger
}

// NewService returns the broadcast engine. discountWindow bounds how soon a
// broadcast must expire to appear in the near-expiry discount view.
func NewService(broadcasts BroadcastRepository, responses ResponseRepository, tx db.TxManager,
	notifier *notification.Notifier, discountWindow time.Duration, logger zerolog.Logger) *Service {
	if discountWindow <= 0 {
		discountWindow = 90 * 24 * time.Hour
	}
	return &Service{
		broadcasts:     broadcasts,
		responses:      responses,
		tx:             tx,
		notifier:       notifier,
		discountWindow: discountWindow,
		now:            time.Now,
		logger:         logger.With().Str("service", "broadcast").Logger(),
	}
}

// -- Broadcasts --

func (s *Service) CreateBroadcast(ctx context.Context, caller auth.Caller, in CreateInput) (*Broadcast, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("authentication required")
	}
	if !caller.IsPatient() {
		return nil, apperr.Forbidden("only patients can create broadcasts")
	}

	fields := map[string]string{}
	in.MedicationName = strings.TrimSpace(in.MedicationName)
	switch {
	case in.MedicationName == "":
		fields["medication_name"] = "this field is required"
	case len(in.MedicationName) > maxMedicationName:
		fields["medication_name"] = "at most 100 characters"
	}
	switch {
	case in.ExpiryDate == nil:
		fields["expiry_date"] = "this field is required"
	case !in.ExpiryDate.After(s.now()):
		fields["expiry_date"] = "must be in the future"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid broadcast", fields)
	}

	b := &Broadcast{
		PatientID:         caller.UserID,
		MedicationName:    in.MedicationName,
		Dosage:            in.Dosage,
		Frequency:         in.Frequency,
		Duration:          in.Duration,
		Notes:             in.Notes,
		PrescriptionImage: in.PrescriptionImage,
		Status:            StatusActive,
		ExpiryDate:        in.ExpiryDate.UTC(),
	}
	if err := s.broadcasts.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBroadcasts shows patients their own broadcasts in every status and
// pharmacies the active, unexpired ones.
func (s *Service) ListBroadcasts(ctx context.Context, caller auth.Caller, limit, offset int) ([]*Broadcast, int, error) {
	var f BroadcastFilter
	switch {
	case !caller.Authenticated():
		return nil, 0, apperr.AuthenticationRequired("authentication required")
	case caller.IsPatient():
		f.PatientID = &caller.UserID
	case caller.IsPharmacy():
		now := s.now()
		f.VisibleAt = &now
	}
	return s.broadcasts.List(ctx, f, limit, offset)
}

func (s *Service) GetBroadcast(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Broadcast, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("authentication required")
	}
	b, err := s.broadcasts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.visible(caller, b) {
		return nil, apperr.NotFound("broadcast not found")
	}
	return b, nil
}

func (s *Service) visible(caller auth.Caller, b *Broadcast) bool {
	switch {
	case caller.IsAdmin():
		return true
	case caller.IsPatient():
		return b.PatientID == caller.UserID
	case caller.IsPharmacy():
		return b.VisibleToPharmacies(s.now())
	}
	return false
}

// CancelBroadcast withdraws an active broadcast. Cancelling twice is a
// no-op; a completed broadcast cannot be cancelled.
func (s *Service) CancelBroadcast(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Broadcast, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("authentication required")
	}

	var b *Broadcast
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if b, err = s.broadcasts.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if b.PatientID != caller.UserID {
			return apperr.Forbidden("Only the patient can cancel this broadcast")
		}
		switch b.Status {
		case StatusCancelled:
			return nil
		case StatusCompleted:
			return apperr.Conflict("a completed broadcast cannot be cancelled")
		}
		if err := s.broadcasts.UpdateStatus(ctx, id, StatusCancelled); err != nil {
			return err
		}
		b.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// -- Responses --

// Respond records a pharmacy's answer to a visible broadcast. Each pharmacy
// answers a broadcast at most once.
func (s *Service) Respond(ctx context.Context, caller auth.Caller, broadcastID uuid.UUID, in RespondInput) (*Response, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("authentication required")
	}
	if !caller.IsPharmacy() {
		return nil, apperr.Forbidden("Only pharmacies can respond to broadcasts")
	}

	b, err := s.broadcasts.GetByID(ctx, broadcastID)
	if err != nil {
		return nil, err
	}
	if !b.VisibleToPharmacies(s.now()) {
		return nil, apperr.NotFound("broadcast not found")
	}

	fields := map[string]string{}
	if in.Status == "" {
		in.Status = ResponsePending
	}
	if in.Status != ResponsePending && in.Status != ResponseRejected {
		fields["status"] = "must be pending or rejected"
	}
	if in.Price != nil && in.Price.IsNegative() {
		fields["price"] = "price cannot be negative"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid response", fields)
	}

	resp := &Response{
		BroadcastID:           b.ID,
		PharmacyID:            caller.UserID,
		Status:                in.Status,
		EstimatedDeliveryTime: in.EstimatedDeliveryTime,
		Notes:                 in.Notes,
	}
	if in.Price != nil {
		p := in.Price.Round(2)
		resp.Price = &p
	}
	if err := s.responses.Create(ctx, resp); err != nil {
		return nil, err
	}

	s.notify(notification.TypeResponseReceived, b.PatientID, b, resp)
	return resp, nil
}

// ListResponses shows pharmacies their own responses and patients the
// responses to their broadcasts.
// ListResponses lists the responses the caller may see, optionally limited
// to one broadcast.
func (s *Service) ListResponses(ctx context.Context, caller auth.Caller, broadcastID *uuid.UUID, limit, offset int) ([]*Response, int, error) {
	f := ResponseFilter{BroadcastID: broadcastID}
	switch {
	case !caller.Authenticated():
		return nil, 0, apperr.AuthenticationRequired("authentication required")
	case caller.IsPharmacy():
		f.PharmacyID = &caller.UserID
	case caller.IsPatient():
		f.PatientID = &caller.UserID
	}
	return s.responses.List(ctx, f, limit, offset)
}

// AcceptResponse accepts a response and completes its broadcast. The
// broadcast row is locked so that of two concurrent accepts exactly one
// succeeds; the other sees a completed broadcast and gets Conflict.
func (s *Service) AcceptResponse(ctx context.Context, caller auth.Caller, responseID uuid.UUID) (*AcceptResult, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("authentication required")
	}

	var res AcceptResult
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		resp, err := s.responses.GetByID(ctx, responseID)
		if err != nil {
			return err
		}
		b, err := s.broadcasts.GetForUpdate(ctx, resp.BroadcastID)
		if err != nil {
			return err
		}
		if b.PatientID != caller.UserID {
			return apperr.Forbidden("Only the patient can accept responses")
		}
		if b.Status != StatusActive {
			return apperr.Conflict("broadcast is " + b.Status)
		}
		if resp.Status != ResponsePending {
			return apperr.Conflict("response is " + resp.Status)
		}

		if err := s.responses.UpdateStatus(ctx, resp.ID, ResponseAccepted); err != nil {
			return err
		}
		if err := s.broadcasts.UpdateStatus(ctx, b.ID, StatusCompleted); err != nil {
			return err
		}
		resp.Status = ResponseAccepted
		b.Status = StatusCompleted
		res = AcceptResult{Response: resp, Broadcast: b}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(notification.TypeResponseAccepted, res.Response.PharmacyID, res.Broadcast, res.Response)
	return &res, nil
}

// NearExpiryDiscounts lists the caller's open responses to broadcasts that
// expire within the discount window, with a half-price suggestion.
func (s *Service) NearExpiryDiscounts(ctx context.Context, caller auth.Caller) ([]*Discount, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("authentication required")
	}
	if !caller.IsPharmacy() {
		return nil, apperr.Forbidden("only pharmacies have discount suggestions")
	}
	now := s.now()
	items, err := s.responses.NearExpiry(ctx, caller.UserID, now, now.Add(s.discountWindow))
	if err != nil {
		return nil, err
	}
	for _, d := range items {
		d.DiscountedPrice = discounted(d.Price)
	}
	if items == nil {
		items = []*Discount{}
	}
	return items, nil
}

func (s *Service) notify(eventType string, userID uuid.UUID, b *Broadcast, resp *Response) {
	if s.notifier == nil {
		return
	}
	ev, err := notification.NewEvent(eventType, userID, responsePayload{
		BroadcastID:    b.ID,
		ResponseID:     resp.ID,
		PharmacyID:     resp.PharmacyID,
		MedicationName: b.MedicationName,
		Status:         resp.Status,
		Price:          resp.Price,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("type", eventType).Msg("build notification")
		return
	}
	s.notifier.Notify(ev)
}
