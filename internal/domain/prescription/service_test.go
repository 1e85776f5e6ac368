package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medconnect/medconnect/internal/domain/chat"
	"github.com/medconnect/medconnect/internal/domain/identity"
	"github.com/medconnect/medconnect/internal/domain/pharmacy"
	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/geo"
	"github.com/medconnect/medconnect/internal/platform/notification"
)

// -- Mock Repositories --

type mockPrescriptionRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Prescription
}

func newMockPrescriptionRepo() *mockPrescriptionRepo {
	return &mockPrescriptionRepo{items: make(map[uuid.UUID]*Prescription)}
}

func (m *mockPrescriptionRepo) Create(_ context.Context, p *Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.items[p.ID] = p
	return nil
}

func (m *mockPrescriptionRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("prescription not found")
	}
	cp := *p
	return &cp, nil
}

func (m *mockPrescriptionRepo) List(_ context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Prescription
	for _, p := range m.items {
		if f.PatientID != nil && p.PatientID != *f.PatientID {
			continue
		}
		if f.Unassigned && (p.PharmacyID != nil || p.Status != StatusPending) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockPrescriptionRepo) Assign(_ context.Context, id, pharmacyID uuid.UUID) (*Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("prescription not found")
	}
	if p.PharmacyID != nil {
		return nil, apperr.Conflict("prescription already assigned to a pharmacy")
	}
	p.PharmacyID = &pharmacyID
	p.Status = StatusAccepted
	cp := *p
	return &cp, nil
}

type mockOrderRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Order
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{items: make(map[uuid.UUID]*Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = uuid.New()
	o.Items = []OrderItem{}
	m.items[o.ID] = o
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("order not found")
	}
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context, f OrderFilter, limit, offset int) ([]*Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.items {
		if f.PatientID != nil && o.PatientID != *f.PatientID {
			continue
		}
		if f.PharmacyID != nil && o.PharmacyID != *f.PharmacyID {
			continue
		}
		out = append(out, o)
	}
	return out, len(out), nil
}

func (m *mockOrderRepo) AddItem(_ context.Context, item *OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.items[item.OrderID]
	if !ok {
		return apperr.NotFound("order not found")
	}
	if o.Status != OrderPending && o.Status != OrderProcessing {
		return apperr.Conflict("order no longer accepts items")
	}
	item.ID = uuid.New()
	o.Items = append(o.Items, *item)
	o.TotalAmount = o.TotalAmount.Add(item.Subtotal())
	return nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.items[id]
	if !ok {
		return apperr.NotFound("order not found")
	}
	if o.Status != from {
		return apperr.Conflict("order is no longer " + from)
	}
	o.Status = to
	return nil
}

func (m *mockOrderRepo) ReassignPending(_ context.Context, prescriptionID, pharmacyID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, o := range m.items {
		if o.PrescriptionID != nil && *o.PrescriptionID == prescriptionID && o.Status == OrderPending && o.PharmacyID != pharmacyID {
			o.PharmacyID = pharmacyID
			n++
		}
	}
	return n, nil
}

func (m *mockOrderRepo) all() []*Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Order, 0, len(m.items))
	for _, o := range m.items {
		out = append(out, o)
	}
	return out
}

type mockLocations struct {
	locs []pharmacy.Location
}

func (m *mockLocations) ListGeocoded(_ context.Context, f pharmacy.Filter) ([]pharmacy.Location, error) {
	var out []pharmacy.Location
	for _, l := range m.locs {
		if l.Geocoded() && (!f.VerifiedOnly || l.IsVerified) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockLocations) First(_ context.Context, f pharmacy.Filter) (*pharmacy.Location, error) {
	for _, l := range m.locs {
		if !f.VerifiedOnly || l.IsVerified {
			l := l
			return &l, nil
		}
	}
	return nil, apperr.NotFound("pharmacy not found")
}

func (m *mockLocations) GetByID(_ context.Context, id uuid.UUID) (*pharmacy.Location, error) {
	for _, l := range m.locs {
		if l.ID == id {
			l := l
			return &l, nil
		}
	}
	return nil, apperr.NotFound("pharmacy not found")
}

func (m *mockLocations) GetByUserID(_ context.Context, userID uuid.UUID) (*pharmacy.Location, error) {
	for _, l := range m.locs {
		if l.UserID == userID {
			l := l
			return &l, nil
		}
	}
	return nil, apperr.NotFound("pharmacy not found")
}

type mockUsers map[uuid.UUID]*identity.User

func (m mockUsers) GetByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

type mockMedicines map[uuid.UUID]*pharmacy.Medicine

func (m mockMedicines) GetByID(_ context.Context, id uuid.UUID) (*pharmacy.Medicine, error) {
	med, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("medicine not found")
	}
	return med, nil
}

type mockRooms struct {
	mu    sync.Mutex
	rooms map[[2]uuid.UUID]*chat.Room
	fail  error
}

func (m *mockRooms) GetOrCreateRoom(_ context.Context, a, b uuid.UUID) (*chat.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	key := [2]uuid.UUID{a, b}
	if a.String() > b.String() {
		key = [2]uuid.UUID{b, a}
	}
	if r, ok := m.rooms[key]; ok {
		return r, nil
	}
	r := &chat.Room{ID: uuid.New(), Participants: key[:]}
	m.rooms[key] = r
	return r, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notification.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev notification.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) recipients(eventType string) []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []uuid.UUID
	for _, ev := range p.events {
		if ev.Type == eventType {
			out = append(out, ev.UserID)
		}
	}
	return out
}

// -- Test env --

const originLat, originLon = 9.019, 38.752

type testEnv struct {
	prescriptions *mockPrescriptionRepo
	orders        *mockOrderRepo
	locations     *mockLocations
	users         mockUsers
	medicines     mockMedicines
	rooms         *mockRooms
	published     *recordingPublisher
	notifier      *notification.Notifier
	matcher       *Matcher
	svc           *Service
}

func newTestEnv() *testEnv {
	env := &testEnv{
		prescriptions: newMockPrescriptionRepo(),
		orders:        newMockOrderRepo(),
		locations:     &mockLocations{},
		users:         mockUsers{},
		medicines:     mockMedicines{},
		rooms:         &mockRooms{rooms: make(map[[2]uuid.UUID]*chat.Room)},
		published:     &recordingPublisher{},
	}
	env.notifier = notification.NewNotifier(env.published, zerolog.Nop())
	dir := pharmacy.NewDirectory(env.locations)
	env.matcher = NewMatcher(env.prescriptions, env.orders, dir, env.users, env.medicines,
		passthroughTx{}, env.notifier, MatchConfig{RadiusKm: 10}, zerolog.Nop())
	env.svc = NewService(env.prescriptions, env.orders, dir, env.medicines, env.rooms,
		passthroughTx{}, env.notifier, zerolog.Nop())
	return env
}

func (env *testEnv) addPatient(address string) auth.Caller {
	u := &identity.User{ID: uuid.New(), Username: "patient", Role: auth.RolePatient, Address: address}
	env.users[u.ID] = u
	return auth.Caller{UserID: u.ID, Role: auth.RolePatient}
}

// addPharmacy registers a pharmacy km kilometres due north of the origin,
// or without coordinates when km is negative.
func (env *testEnv) addPharmacy(name string, km float64) (pharmacy.Location, auth.Caller) {
	l := pharmacy.Location{ID: uuid.New(), UserID: uuid.New(), BusinessName: name, IsVerified: true}
	if km >= 0 {
		lat := originLat + km/(geo.EarthRadiusKm*math.Pi/180)
		lon := originLon
		l.Latitude, l.Longitude = &lat, &lon
	}
	env.locations.locs = append(env.locations.locs, l)
	return l, auth.Caller{UserID: l.UserID, Role: auth.RolePharmacy}
}

func ptr[T any](v T) *T { return &v }

func submitInput(lat, lon *float64) SubmitInput {
	return SubmitInput{PrescriptionImage: "https://img.example.com/rx/1.jpg", Notes: "twice daily", Latitude: lat, Longitude: lon}
}

func sortedIDs(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	sort.Strings(out)
	return out
}

// -- SubmitPrescription --

func TestSubmitPrescription_NearestWithinRadius(t *testing.T) {
	env := newTestEnv()
	_, _ = env.addPharmacy("fifteen", 15)
	eight, _ := env.addPharmacy("eight", 8)
	two, _ := env.addPharmacy("two", 2)
	patient := env.addPatient("Bole, Addis Ababa")

	sub, err := env.matcher.SubmitPrescription(context.Background(), patient, submitInput(ptr(originLat), ptr(originLon)))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Order == nil || sub.Order.PharmacyID != two.ID {
		t.Fatalf("expected order at the 2 km pharmacy, got %+v", sub.Order)
	}
	if sub.Order.Status != OrderPending || !sub.Order.TotalAmount.Equal(decimal.Zero) {
		t.Errorf("unexpected order state %s / %s", sub.Order.Status, sub.Order.TotalAmount)
	}
	if sub.Order.ShippingAddress != "Bole, Addis Ababa" {
		t.Errorf("expected patient address, got %q", sub.Order.ShippingAddress)
	}
	if *sub.Order.PrescriptionID != sub.Prescription.ID {
		t.Error("order should reference the prescription")
	}
	if sub.Prescription.PharmacyID != nil || sub.Prescription.Status != StatusPending {
		t.Error("prescription should stay pending and unassigned until accepted")
	}

	env.notifier.Wait()
	got := sortedIDs(env.published.recipients(notification.TypePrescriptionNearby))
	want := sortedIDs([]uuid.UUID{two.UserID, eight.UserID})
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected notifications to pharmacies within 10 km, got %v", got)
	}
}

func TestSubmitPrescription_FallbackWithoutCoordinates(t *testing.T) {
	env := newTestEnv()
	first, _ := env.addPharmacy("first", -1)
	env.addPharmacy("second", 1)
	patient := env.addPatient("")

	sub, err := env.matcher.SubmitPrescription(context.Background(), patient, submitInput(nil, nil))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Order == nil || sub.Order.PharmacyID != first.ID {
		t.Fatal("expected fallback to the first registered pharmacy")
	}
	if sub.Order.TotalAmount.StringFixed(2) != "0.00" || sub.Order.ShippingAddress != "N/A" {
		t.Errorf("expected total 0.00 and N/A address, got %s / %q", sub.Order.TotalAmount, sub.Order.ShippingAddress)
	}
	env.notifier.Wait()
	if n := len(env.published.recipients(notification.TypePrescriptionNearby)); n != 0 {
		t.Errorf("no pharmacy should be notified without coordinates, got %d", n)
	}
}

func TestSubmitPrescription_FallbackWhenNoneInRadius(t *testing.T) {
	env := newTestEnv()
	far, _ := env.addPharmacy("far", 40)
	patient := env.addPatient("Piassa")

	sub, err := env.matcher.SubmitPrescription(context.Background(), patient, submitInput(ptr(originLat), ptr(originLon)))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Order == nil || sub.Order.PharmacyID != far.ID {
		t.Fatal("expected fallback pharmacy when none is within the radius")
	}
}

func TestSubmitPrescription_NoPharmacies(t *testing.T) {
	env := newTestEnv()
	patient := env.addPatient("Piassa")

	sub, err := env.matcher.SubmitPrescription(context.Background(), patient, submitInput(ptr(originLat), ptr(originLon)))
	if err != nil {
		t.Fatalf("no pharmacies is not an error: %v", err)
	}
	if sub.Order != nil || len(env.orders.all()) != 0 {
		t.Error("no order should be created")
	}
	if sub.Prescription == nil {
		t.Error("prescription should still be stored")
	}
}

func TestSubmitPrescription_VerifiedOnly(t *testing.T) {
	env := newTestEnv()
	env.matcher.cfg.VerifiedOnly = true
	unverified, _ := env.addPharmacy("unverified", 1)
	env.locations.locs[0].IsVerified = false
	verified, _ := env.addPharmacy("verified", 5)
	patient := env.addPatient("Piassa")

	sub, err := env.matcher.SubmitPrescription(context.Background(), patient, submitInput(ptr(originLat), ptr(originLon)))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Order.PharmacyID != verified.ID || sub.Order.PharmacyID == unverified.ID {
		t.Error("unverified pharmacies must be skipped")
	}
}

func TestSubmitPrescription_Rejections(t *testing.T) {
	env := newTestEnv()
	patient := env.addPatient("x")
	_, ph := env.addPharmacy("ph", 1)
	ctx := context.Background()

	if _, err := env.matcher.SubmitPrescription(ctx, auth.Caller{}, submitInput(nil, nil)); !errors.Is(err, apperr.ErrAuthenticationRequired) {
		t.Errorf("expected authentication error, got %v", err)
	}
	if _, err := env.matcher.SubmitPrescription(ctx, ph, submitInput(nil, nil)); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for pharmacy, got %v", err)
	}

	bad := []SubmitInput{
		{PrescriptionImage: ""},
		{PrescriptionImage: "not a url"},
		submitInput(ptr(1.0), nil),
		submitInput(ptr(120.0), ptr(1.0)),
		{PrescriptionImage: "https://x.example/a.png", MedicineID: ptr(uuid.New())},
	}
	for i, in := range bad {
		if _, err := env.matcher.SubmitPrescription(ctx, patient, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
	if len(env.prescriptions.items) != 0 {
		t.Error("rejected submissions must not be stored")
	}
}

// -- AcceptPrescription --

func TestAcceptPrescription(t *testing.T) {
	env := newTestEnv()
	near, _ := env.addPharmacy("near", 1)
	accepting, accCaller := env.addPharmacy("accepting", 3)
	patient := env.addPatient("Piassa")
	ctx := context.Background()

	sub, _ := env.matcher.SubmitPrescription(ctx, patient, submitInput(ptr(originLat), ptr(originLon)))
	if sub.Order.PharmacyID != near.ID {
		t.Fatal("setup: expected order at nearest pharmacy")
	}

	acc, err := env.svc.AcceptPrescription(ctx, accCaller, sub.Prescription.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if acc.Status != StatusAccepted || *acc.PharmacyID != accepting.ID {
		t.Errorf("unexpected prescription state %+v", acc.Prescription)
	}
	if acc.ChatRoomID == uuid.Nil || acc.ChatRoomURL != "/api/v1/chat/rooms/"+acc.ChatRoomID.String() {
		t.Errorf("unexpected chat room %s %s", acc.ChatRoomID, acc.ChatRoomURL)
	}
	o, _ := env.orders.GetByID(ctx, sub.Order.ID)
	if o.PharmacyID != accepting.ID {
		t.Error("pending order should follow the accepting pharmacy")
	}

	raw, _ := json.Marshal(acc)
	var body map[string]interface{}
	json.Unmarshal(raw, &body)
	if body["chat_room_url"] == nil || body["status"] != "accepted" {
		t.Errorf("unexpected acceptance body %s", raw)
	}

	env.notifier.Wait()
	if got := env.published.recipients(notification.TypePrescriptionAccepted); len(got) != 1 || got[0] != patient.UserID {
		t.Errorf("patient should be notified of acceptance, got %v", got)
	}
}

func TestAcceptPrescription_SecondAcceptConflicts(t *testing.T) {
	env := newTestEnv()
	_, first := env.addPharmacy("first", 1)
	_, second := env.addPharmacy("second", 2)
	patient := env.addPatient("Piassa")
	ctx := context.Background()
	sub, _ := env.matcher.SubmitPrescription(ctx, patient, submitInput(nil, nil))

	if _, err := env.svc.AcceptPrescription(ctx, first, sub.Prescription.ID); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if _, err := env.svc.AcceptPrescription(ctx, second, sub.Prescription.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if _, err := env.svc.AcceptPrescription(ctx, first, sub.Prescription.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict on repeat, got %v", err)
	}
}

func TestAcceptPrescription_Rejections(t *testing.T) {
	env := newTestEnv()
	_, ph := env.addPharmacy("ph", 1)
	patient := env.addPatient("Piassa")
	ctx := context.Background()
	sub, _ := env.matcher.SubmitPrescription(ctx, patient, submitInput(nil, nil))

	if _, err := env.svc.AcceptPrescription(ctx, patient, sub.Prescription.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for patient, got %v", err)
	}
	if _, err := env.svc.AcceptPrescription(ctx, ph, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	env.rooms.fail = errors.New("db down")
	if _, err := env.svc.AcceptPrescription(ctx, ph, sub.Prescription.ID); err == nil {
		t.Error("room provisioning failure should fail the acceptance")
	}
}

func TestListPrescriptions_ByRole(t *testing.T) {
	env := newTestEnv()
	_, ph := env.addPharmacy("ph", 1)
	alice := env.addPatient("a")
	bob := env.addPatient("b")
	ctx := context.Background()

	s1, _ := env.matcher.SubmitPrescription(ctx, alice, submitInput(nil, nil))
	env.matcher.SubmitPrescription(ctx, alice, submitInput(nil, nil))
	env.matcher.SubmitPrescription(ctx, bob, submitInput(nil, nil))
	env.svc.AcceptPrescription(ctx, ph, s1.Prescription.ID)

	if _, total, _ := env.svc.ListPrescriptions(ctx, alice, 20, 0); total != 2 {
		t.Errorf("alice should see their 2 prescriptions, got %d", total)
	}
	if _, total, _ := env.svc.ListPrescriptions(ctx, ph, 20, 0); total != 2 {
		t.Errorf("pharmacy should see 2 unassigned prescriptions, got %d", total)
	}
	if _, err := env.svc.GetPrescription(ctx, bob, s1.Prescription.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("bob must not see alice's prescription, got %v", err)
	}
	if _, err := env.svc.GetPrescription(ctx, ph, s1.Prescription.ID); err != nil {
		t.Errorf("accepting pharmacy should see the prescription: %v", err)
	}
}

// -- Orders --

func TestAddItem_SnapshotsPrice(t *testing.T) {
	env := newTestEnv()
	loc, ph := env.addPharmacy("ph", 1)
	patient := env.addPatient("Piassa")
	ctx := context.Background()
	sub, _ := env.matcher.SubmitPrescription(ctx, patient, submitInput(nil, nil))

	med := &pharmacy.Medicine{ID: uuid.New(), PharmacyID: loc.ID, Name: "Amoxicillin", Price: decimal.RequireFromString("12.50")}
	env.medicines[med.ID] = med

	o, err := env.svc.AddItem(ctx, ph, sub.Order.ID, AddItemInput{MedicineID: med.ID, Quantity: 3})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	med.Price = decimal.RequireFromString("99.00")
	o, _ = env.svc.AddItem(ctx, patient, sub.Order.ID, AddItemInput{MedicineID: med.ID, Quantity: 1})

	if len(o.Items) != 2 || !o.Items[0].Price.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("first item should keep its price snapshot, got %+v", o.Items)
	}
	if !o.TotalAmount.Equal(decimal.RequireFromString("136.50")) {
		t.Errorf("expected total 136.50, got %s", o.TotalAmount)
	}
}

func TestAddItem_Rejections(t *testing.T) {
	env := newTestEnv()
	loc, ph := env.addPharmacy("ph", 1)
	other, _ := env.addPharmacy("other", 2)
	patient := env.addPatient("Piassa")
	ctx := context.Background()
	sub, _ := env.matcher.SubmitPrescription(ctx, patient, submitInput(nil, nil))

	own := &pharmacy.Medicine{ID: uuid.New(), PharmacyID: loc.ID, Price: decimal.NewFromInt(1)}
	foreign := &pharmacy.Medicine{ID: uuid.New(), PharmacyID: other.ID, Price: decimal.NewFromInt(1)}
	env.medicines[own.ID], env.medicines[foreign.ID] = own, foreign

	if _, err := env.svc.AddItem(ctx, ph, sub.Order.ID, AddItemInput{MedicineID: own.ID, Quantity: 0}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation for zero quantity, got %v", err)
	}
	if _, err := env.svc.AddItem(ctx, ph, sub.Order.ID, AddItemInput{MedicineID: own.ID, Quantity: MaxItemQuantity + 1}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation for oversized quantity, got %v", err)
	}
	if _, err := env.svc.AddItem(ctx, ph, sub.Order.ID, AddItemInput{MedicineID: foreign.ID, Quantity: 1}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation for foreign medicine, got %v", err)
	}
	if _, err := env.svc.AddItem(ctx, env.addPatient("z"), sub.Order.ID, AddItemInput{MedicineID: own.ID, Quantity: 1}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for stranger, got %v", err)
	}

	env.svc.TransitionOrder(ctx, patient, sub.Order.ID, OrderCancelled)
	if _, err := env.svc.AddItem(ctx, ph, sub.Order.ID, AddItemInput{MedicineID: own.ID, Quantity: 1}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict on cancelled order, got %v", err)
	}
}

func TestAddItem_TotalBounded(t *testing.T) {
	env := newTestEnv()
	loc, ph := env.addPharmacy("ph", 1)
	patient := env.addPatient("Piassa")
	ctx := context.Background()
	sub, _ := env.matcher.SubmitPrescription(ctx, patient, submitInput(nil, nil))

	pricey := &pharmacy.Medicine{ID: uuid.New(), PharmacyID: loc.ID, Name: "Biologic", Price: decimal.RequireFromString("99999.99")}
	env.medicines[pricey.ID] = pricey

	_, err := env.svc.AddItem(ctx, ph, sub.Order.ID, AddItemInput{MedicineID: pricey.ID, Quantity: MaxItemQuantity})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation when the total overflows, got %v", err)
	}
	o, err := env.svc.GetOrder(ctx, patient, sub.Order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(o.Items) != 0 || !o.TotalAmount.IsZero() {
		t.Errorf("rejected item must not be stored, got %+v", o)
	}

	o, err = env.svc.AddItem(ctx, ph, sub.Order.ID, AddItemInput{MedicineID: pricey.ID, Quantity: 1000})
	if err != nil {
		t.Fatalf("add item within bounds: %v", err)
	}
	if o.TotalAmount.StringFixed(2) != "99999990.00" {
		t.Errorf("expected total 99999990.00, got %s", o.TotalAmount.StringFixed(2))
	}
}

func TestTransitionOrder(t *testing.T) {
	env := newTestEnv()
	_, ph := env.addPharmacy("ph", 1)
	patient := env.addPatient("Piassa")
	ctx := context.Background()
	sub, _ := env.matcher.SubmitPrescription(ctx, patient, submitInput(nil, nil))
	id := sub.Order.ID

	if _, err := env.svc.TransitionOrder(ctx, patient, id, OrderProcessing); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("patient cannot start processing, got %v", err)
	}
	if _, err := env.svc.TransitionOrder(ctx, ph, id, OrderShipped); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("cannot skip processing, got %v", err)
	}
	for _, to := range []string{OrderProcessing, OrderShipped, OrderDelivered} {
		o, err := env.svc.TransitionOrder(ctx, ph, id, to)
		if err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
		if o.Status != to {
			t.Errorf("expected %s, got %s", to, o.Status)
		}
	}
	if _, err := env.svc.TransitionOrder(ctx, ph, id, OrderCancelled); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("delivered order cannot be cancelled, got %v", err)
	}
	if _, err := env.svc.TransitionOrder(ctx, ph, id, "lost"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation for unknown status, got %v", err)
	}
}

func TestListOrders_ByRole(t *testing.T) {
	env := newTestEnv()
	_, first := env.addPharmacy("first", -1)
	_, second := env.addPharmacy("second", -1)
	patient := env.addPatient("Piassa")
	ctx := context.Background()
	env.matcher.SubmitPrescription(ctx, patient, submitInput(nil, nil))
	env.matcher.SubmitPrescription(ctx, patient, submitInput(nil, nil))

	if _, total, _ := env.svc.ListOrders(ctx, patient, 20, 0); total != 2 {
		t.Errorf("patient should see 2 orders, got %d", total)
	}
	if _, total, _ := env.svc.ListOrders(ctx, first, 20, 0); total != 2 {
		t.Errorf("fallback pharmacy should see 2 orders, got %d", total)
	}
	if _, total, _ := env.svc.ListOrders(ctx, second, 20, 0); total != 0 {
		t.Errorf("other pharmacy should see none, got %d", total)
	}
}
