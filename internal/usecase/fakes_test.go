package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hotel-booking/internal/data/entity"
	"hotel-booking/internal/data/repository"
	"hotel-booking/pkg/payment"
	"hotel-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap/zaptest"
)

var (
	fixedNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	errBoom  = errors.New("connection reset by peer")
)

func day(offset int) time.Time {
	return entity.DateOf(fixedNow).AddDate(0, 0, offset)
}

// store is an in-memory stand-in for Postgres. Units of work run one at a
// time and are rolled back on error; Booking.Create enforces the same
// no-overlap rule as the bookings_no_overlap constraint.
type store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	hotels    map[uuid.UUID]entity.Hotel
	roomTypes map[uuid.UUID]entity.RoomType
	rooms     []entity.Room
	bookings  map[uuid.UUID]entity.Booking
	payments  map[uuid.UUID]entity.Payment
	outbox    []entity.OutboxEvent

	// test hooks
	blindOverlapReads bool
	failBookingUpdate error
}

type snapshot struct {
	bookings map[uuid.UUID]entity.Booking
	payments map[uuid.UUID]entity.Payment
	outbox   []entity.OutboxEvent
}

func newStore() *store {
	return &store{
		hotels:    map[uuid.UUID]entity.Hotel{},
		roomTypes: map[uuid.UUID]entity.RoomType{},
		bookings:  map[uuid.UUID]entity.Booking{},
		payments:  map[uuid.UUID]entity.Payment{},
	}
}

func (st *store) snapshot() snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	snap := snapshot{
		bookings: make(map[uuid.UUID]entity.Booking, len(st.bookings)),
		payments: make(map[uuid.UUID]entity.Payment, len(st.payments)),
		outbox:   append([]entity.OutboxEvent(nil), st.outbox...),
	}
	for k, v := range st.bookings {
		snap.bookings[k] = v
	}
	for k, v := range st.payments {
		snap.payments[k] = v
	}
	return snap
}

func (st *store) restore(snap snapshot) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.bookings = snap.bookings
	st.payments = snap.payments
	st.outbox = snap.outbox
}

func (st *store) repository() *repository.Repository {
	repo := &repository.Repository{
		Hotel:    hotelRepo{st},
		RoomType: roomTypeRepo{st},
		Room:     roomRepo{st},
		Booking:  bookingRepo{st},
		Payment:  paymentRepo{st},
		Outbox:   outboxRepo{st},
	}
	repo.Tx = &fakeTransactor{st: st, repo: repo}
	return repo
}

func (st *store) booking(id uuid.UUID) *entity.Booking {
	st.mu.Lock()
	defer st.mu.Unlock()
	b, ok := st.bookings[id]
	if !ok {
		return nil
	}
	return &b
}

func (st *store) paymentCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.payments)
}

func (st *store) outboxTypes() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	types := make([]string, len(st.outbox))
	for i, e := range st.outbox {
		types[i] = e.EventType
	}
	return types
}

func (st *store) seedBooking(t *testing.T, roomID uuid.UUID, in, out int, createdAt time.Time) *entity.Booking {
	t.Helper()
	b, err := entity.NewBooking(entity.NewBookingParams{
		RoomID:     roomID,
		UserID:     uuid.New(),
		Stay:       entity.DateRange{CheckIn: day(in), CheckOut: day(out)},
		TotalPrice: 10000,
		Currency:   "usd",
		GuestName:  "Seeded Guest",
	}, createdAt)
	if err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	st.mu.Lock()
	st.bookings[b.ID] = *b
	st.mu.Unlock()
	return b
}

type fakeTransactor struct {
	st   *store
	repo *repository.Repository
}

func (f *fakeTransactor) WithinTx(ctx context.Context, _ pgx.TxOptions, fn func(tx *repository.Repository) error) error {
	f.st.txMu.Lock()
	defer f.st.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := f.st.snapshot()
	if err := fn(f.repo); err != nil {
		f.st.restore(snap)
		return err
	}
	if err := ctx.Err(); err != nil {
		f.st.restore(snap)
		return err
	}
	return nil
}

type hotelRepo struct{ st *store }

func (r hotelRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Hotel, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	h, ok := r.st.hotels[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

type roomTypeRepo struct{ st *store }

func (r roomTypeRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.RoomType, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	rt, ok := r.st.roomTypes[id]
	if !ok {
		return nil, nil
	}
	return &rt, nil
}

type roomRepo struct{ st *store }

func (r roomRepo) FindActiveByType(_ context.Context, hotelID, roomTypeID uuid.UUID) ([]*entity.Room, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var rooms []*entity.Room
	for _, room := range r.st.rooms {
		if room.HotelID == hotelID && room.RoomTypeID == roomTypeID && room.IsActive {
			room := room
			rooms = append(rooms, &room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomNumber < rooms[j].RoomNumber })
	return rooms, nil
}

type bookingRepo struct{ st *store }

func (r bookingRepo) Create(_ context.Context, b *entity.Booking) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, existing := range r.st.bookings {
		if existing.RoomID == b.RoomID && existing.Status() != entity.BookingStatusCancelled && existing.Stay().Overlaps(b.Stay()) {
			return repository.ErrBookingOverlap
		}
	}
	r.st.bookings[b.ID] = *b
	return nil
}

func (r bookingRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.st.booking(id), nil
}

func (r bookingRepo) FindByIDForUpdate(_ context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.st.booking(id), nil
}

func (r bookingRepo) FindByUserID(_ context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var all []*entity.Booking
	for _, b := range r.st.bookings {
		if b.UserID == userID {
			b := b
			all = append(all, &b)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r bookingRepo) CountByUserID(_ context.Context, userID uuid.UUID) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for _, b := range r.st.bookings {
		if b.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r bookingRepo) Update(_ context.Context, b *entity.Booking) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.failBookingUpdate != nil {
		return r.st.failBookingUpdate
	}
	if _, ok := r.st.bookings[b.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.st.bookings[b.ID] = *b
	return nil
}

func (r bookingRepo) FindOverlapping(_ context.Context, roomIDs []uuid.UUID, stay entity.DateRange) ([]*entity.Booking, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.blindOverlapReads {
		return nil, nil
	}
	wanted := make(map[uuid.UUID]bool, len(roomIDs))
	for _, id := range roomIDs {
		wanted[id] = true
	}
	var out []*entity.Booking
	for _, b := range r.st.bookings {
		if wanted[b.RoomID] && b.Status() != entity.BookingStatusCancelled && b.Stay().Overlaps(stay) {
			b := b
			out = append(out, &b)
		}
	}
	return out, nil
}

func (r bookingRepo) FindStalePending(_ context.Context, createdBefore time.Time, limit int) ([]*entity.Booking, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []*entity.Booking
	for _, b := range r.st.bookings {
		if b.Status() == entity.BookingStatusPendingPayment && b.CreatedAt.Before(createdBefore) {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type paymentRepo struct{ st *store }

func (r paymentRepo) Create(_ context.Context, p *entity.Payment) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, existing := range r.st.payments {
		if existing.BookingID == p.BookingID || existing.ProviderReference == p.ProviderReference {
			return repository.ErrDuplicate
		}
	}
	r.st.payments[p.ID] = *p
	return nil
}

func (r paymentRepo) FindByBookingID(_ context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, p := range r.st.payments {
		if p.BookingID == bookingID {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

type outboxRepo struct{ st *store }

func (r outboxRepo) Create(_ context.Context, e *entity.OutboxEvent) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.outbox = append(r.st.outbox, *e)
	return nil
}

func (r outboxRepo) FetchDue(context.Context, time.Time, int) ([]*entity.OutboxEvent, error) {
	return nil, nil
}

func (r outboxRepo) MarkPublished(context.Context, uuid.UUID, time.Time) error { return nil }

func (r outboxRepo) MarkRetry(context.Context, uuid.UUID, int, time.Time, string) error { return nil }

func (r outboxRepo) MarkFailed(context.Context, uuid.UUID, int, string) error { return nil }

type fakeGateway struct {
	mu        sync.Mutex
	created   []uuid.UUID
	cancelled []string
	createErr error
	cancelErr error
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, _ int64, _ string, bookingID uuid.UUID) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, bookingID)
	return &payment.Intent{ID: "pi_" + bookingID.String()[:8], ClientSecret: "secret_" + bookingID.String()[:8]}, nil
}

func (g *fakeGateway) CancelPaymentIntent(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, intentID)
	return nil
}

func (g *fakeGateway) createdCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.created)
}

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Notify() { c.n.Add(1) }

// catalog is one hotel with a single room type.
type catalog struct {
	hotelID    uuid.UUID
	roomTypeID uuid.UUID
	roomIDs    []uuid.UUID
	price      int64
}

func seedCatalog(st *store, rooms int) catalog {
	hotel := entity.Hotel{Base: entity.Base{ID: uuid.New()}, Name: "Harbour View", City: "Lisbon", IsActive: true}
	rt := entity.RoomType{
		Base:          entity.Base{ID: uuid.New()},
		HotelID:       hotel.ID,
		Name:          "Double",
		PricePerNight: 12000,
		MaxAdults:     2,
		MaxChildren:   1,
	}
	st.hotels[hotel.ID] = hotel
	st.roomTypes[rt.ID] = rt

	c := catalog{hotelID: hotel.ID, roomTypeID: rt.ID, price: rt.PricePerNight}
	for i := 0; i < rooms; i++ {
		room := entity.Room{
			Base:       entity.Base{ID: uuid.New()},
			HotelID:    hotel.ID,
			RoomTypeID: rt.ID,
			RoomNumber: string(rune('A'+i)) + "01",
			IsActive:   true,
		}
		st.rooms = append(st.rooms, room)
		c.roomIDs = append(c.roomIDs, room.ID)
	}
	return c
}

type fixture struct {
	st       *store
	cat      catalog
	gateway  *fakeGateway
	notifier *countingNotifier
	booking  *bookingService
	payments *paymentService
	oracle   AvailabilityService
}

func newFixture(t *testing.T, rooms int) *fixture {
	t.Helper()
	st := newStore()
	cat := seedCatalog(st, rooms)
	repo := st.repository()
	log := zaptest.NewLogger(t)
	gateway := &fakeGateway{}
	notifier := &countingNotifier{}

	config := &utils.Config{
		Payment: utils.PaymentConfig{Currency: "usd"},
		Booking: utils.BookingConfig{PendingTTL: 30 * time.Minute, ReaperBatch: 10},
	}

	bs := NewBookingService(repo, gateway, notifier, config, log).(*bookingService)
	bs.now = func() time.Time { return fixedNow }
	ps := NewPaymentService(repo, gateway, nil, notifier, log).(*paymentService)
	ps.now = func() time.Time { return fixedNow }

	return &fixture{
		st:       st,
		cat:      cat,
		gateway:  gateway,
		notifier: notifier,
		booking:  bs,
		payments: ps,
		oracle:   NewAvailabilityService(repo, log),
	}
}
