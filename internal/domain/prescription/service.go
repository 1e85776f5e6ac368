package prescription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medconnect/medconnect/internal/domain/chat"
	"github.com/medconnect/medconnect/internal/domain/pharmacy"
	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/db"
	"github.com/medconnect/medconnect/internal/platform/notification"
)

// RoomProvisioner opens the chat room between a patient and a pharmacy.
// *chat.Registry implements it.
type RoomProvisioner interface {
	GetOrCreateRoom(ctx context.Context, a, b uuid.UUID) (*chat.Room, error)
}

// Service covers prescriptions after submission and the order lifecycle.
type Service struct {
	prescriptions PrescriptionRepository
	orders        OrderRepository
	directory     Directory
	medicines     MedicineLookup
	rooms         RoomProvisioner
	tx            db.TxManager
	notifier      *notification.Notifier
	logger        zerolog.Logger
}

func NewService(prescriptions PrescriptionRepository, orders OrderRepository, directory Directory,
	medicines MedicineLookup, rooms RoomProvisioner, tx db.TxManager, notifier *notification.Notifier,
	logger zerolog.Logger) *Service {
	return &Service{
		prescriptions: prescriptions,
		orders:        orders,
		directory:     directory,
		medicines:     medicines,
		rooms:         rooms,
		tx:            tx,
		notifier:      notifier,
		logger:        logger.With().Str("service", "prescription").Logger(),
	}
}

// -- Prescriptions --

// ListPrescriptions shows pharmacies the pending prescriptions nobody has
// accepted yet and patients their own.
func (s *Service) ListPrescriptions(ctx context.Context, caller auth.Caller, limit, offset int) ([]*Prescription, int, error) {
	var f PrescriptionFilter
	switch {
	case !caller.Authenticated():
		return nil, 0, apperr.AuthenticationRequired("authentication required")
	case caller.IsPharmacy():
		f.Unassigned = true
	case caller.IsPatient():
		f.PatientID = &caller.UserID
	}
	return s.prescriptions.List(ctx, f, limit, offset)
}

func (s *Service) GetPrescription(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Prescription, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("authentication required")
	}
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.canSeePrescription(ctx, caller, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("prescription not found")
	}
	return p, nil
}

func (s *Service) canSeePrescription(ctx context.Context, caller auth.Caller, p *Prescription) (bool, error) {
	switch {
	case caller.IsAdmin():
		return true, nil
	case caller.IsPatient():
		return p.PatientID == caller.UserID, nil
	case caller.IsPharmacy():
		if p.PharmacyID == nil {
			return p.Status == StatusPending, nil
		}
		loc, err := s.directory.ForUser(ctx, caller.UserID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return *p.PharmacyID == loc.ID, nil
	}
	return false, nil
}

// AcceptPrescription assigns the prescription to the caller's pharmacy and
// opens the chat room with the patient, in one transaction. A second
// acceptance fails with Conflict.
func (s *Service) AcceptPrescription(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Acceptance, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("authentication required")
	}
	if !caller.IsPharmacy() {
		return nil, apperr.Forbidden("Only pharmacies can accept prescriptions.")
	}
	loc, err := s.directory.ForUser(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Forbidden("pharmacy profile missing")
		}
		return nil, err
	}

	var (
		p    *Prescription
		room *chat.Room
	)
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.prescriptions.Assign(ctx, id, loc.ID); err != nil {
			return err
		}
		if _, err = s.orders.ReassignPending(ctx, p.ID, loc.ID); err != nil {
			return err
		}
		room, err = s.rooms.GetOrCreateRoom(ctx, p.PatientID, caller.UserID)
		if err != nil {
			return fmt.Errorf("provision chat room: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(notification.TypePrescriptionAccepted, p.PatientID, acceptedPayload{
		PrescriptionID: p.ID,
		PharmacyID:     loc.ID,
		ChatRoomID:     room.ID,
	})
	return &Acceptance{Prescription: p, ChatRoomID: room.ID, ChatRoomURL: chat.RoomURL(room.ID)}, nil
}

// -- Orders --

func (s *Service) ListOrders(ctx context.Context, caller auth.Caller, limit, offset int) ([]*Order, int, error) {
	var f OrderFilter
	switch {
	case !caller.Authenticated():
		return nil, 0, apperr.AuthenticationRequired("authentication required")
	case caller.IsPharmacy():
		loc, err := s.directory.ForUser(ctx, caller.UserID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return []*Order{}, 0, nil
			}
			return nil, 0, err
		}
		f.PharmacyID = &loc.ID
	case caller.IsPatient():
		f.PatientID = &caller.UserID
	}
	return s.orders.List(ctx, f, limit, offset)
}

// GetOrder returns an order visible to caller. Orders of other users are
// reported as missing.
func (s *Service) GetOrder(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Order, error) {
	o, _, err := s.visibleOrder(ctx, caller, id)
	return o, err
}

// MaxItemQuantity caps the quantity of a single order line.
const MaxItemQuantity = 10000

// maxOrderTotal is the largest amount the order total column holds.
var maxOrderTotal = decimal.RequireFromString("99999999.99")

// AddItem adds a medicine from the order's pharmacy to an open order. The
// unit price is captured from the medicine at this moment.
func (s *Service) AddItem(ctx context.Context, caller auth.Caller, orderID uuid.UUID, in AddItemInput) (*Order, error) {
	o, _, err := s.visibleOrder(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	if in.Quantity <= 0 {
		fields["quantity"] = "quantity must be greater than zero"
	} else if in.Quantity > MaxItemQuantity {
		fields["quantity"] = fmt.Sprintf("quantity must be at most %d", MaxItemQuantity)
	}
	if in.MedicineID == uuid.Nil {
		fields["medicine_id"] = "this field is required"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid order item", fields)
	}

	med, err := s.medicines.GetByID(ctx, in.MedicineID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Field("medicine_id", "medicine not found")
		}
		return nil, err
	}
	if med.PharmacyID != o.PharmacyID {
		return nil, apperr.Field("medicine_id", "medicine is not stocked by this order's pharmacy")
	}

	item := &OrderItem{OrderID: o.ID, MedicineID: med.ID, Quantity: in.Quantity, Price: med.Price}
	if o.TotalAmount.Add(item.Subtotal()).GreaterThan(maxOrderTotal) {
		return nil, apperr.Field("quantity", "order total would exceed "+maxOrderTotal.StringFixed(2))
	}
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.orders.AddItem(ctx, item); err != nil {
			return err
		}
		o, err = s.orders.GetByID(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

type actor int

const (
	actorNone actor = iota
	actorPatient
	actorPharmacy
)

// orderTransitions lists, per actor, the statuses reachable from each
// status.
var orderTransitions = map[actor]map[string][]string{
	actorPharmacy: {
		OrderPending:    {OrderProcessing, OrderCancelled},
		OrderProcessing: {OrderShipped, OrderCancelled},
		OrderShipped:    {OrderDelivered},
	},
	actorPatient: {
		OrderPending: {OrderCancelled},
	},
}

func validOrderStatus(s string) bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// TransitionOrder moves an order along its lifecycle. The pharmacy drives
// fulfilment; the patient may only cancel a pending order.
func (s *Service) TransitionOrder(ctx context.Context, caller auth.Caller, id uuid.UUID, to string) (*Order, error) {
	if !validOrderStatus(to) {
		return nil, apperr.Field("status", "unknown order status")
	}
	o, who, err := s.visibleOrder(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, next := range orderTransitions[who][o.Status] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		if caller.IsAdmin() {
			return nil, apperr.Forbidden("order status is changed by its pharmacy or patient")
		}
		return nil, apperr.Conflict(fmt.Sprintf("cannot move order from %s to %s", o.Status, to))
	}

	if err := s.orders.UpdateStatus(ctx, o.ID, o.Status, to); err != nil {
		return nil, err
	}
	return s.orders.GetByID(ctx, o.ID)
}

// visibleOrder loads an order and reports how the caller relates to it.
func (s *Service) visibleOrder(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Order, actor, error) {
	if !caller.Authenticated() {
		return nil, actorNone, apperr.AuthenticationRequired("authentication required")
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, actorNone, err
	}
	switch {
	case caller.IsPatient() && o.PatientID == caller.UserID:
		return o, actorPatient, nil
	case caller.IsPharmacy():
		loc, err := s.directory.ForUser(ctx, caller.UserID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, actorNone, err
		}
		if loc != nil && loc.ID == o.PharmacyID {
			return o, actorPharmacy, nil
		}
	case caller.IsAdmin():
		return o, actorNone, nil
	}
	return nil, actorNone, apperr.NotFound("order not found")
}

func (s *Service) notify(eventType string, userID uuid.UUID, data interface{}) {
	if s.notifier == nil {
		return
	}
	ev, err := notification.NewEvent(eventType, userID, data)
	if err != nil {
		s.logger.Error().Err(err).Str("type", eventType).Msg("build notification")
		return
	}
	s.notifier.Notify(ev)
}

var (
	_ Directory       = (*pharmacy.Directory)(nil)
	_ RoomProvisioner = (*chat.Registry)(nil)
)
