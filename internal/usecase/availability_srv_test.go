package usecase

import (
	"context"
	"testing"

	"hotel-booking/internal/data/entity"
	"hotel-booking/internal/dto/request"
	"hotel-booking/pkg/apperror"

	"github.com/google/uuid"
)

func query(c catalog, in, out, adults, children int) AvailabilityQuery {
	return AvailabilityQuery{
		HotelID:    c.hotelID,
		RoomTypeID: c.roomTypeID,
		Stay:       entity.DateRange{CheckIn: day(in), CheckOut: day(out)},
		Adults:     adults,
		Children:   children,
	}
}

func TestFindAvailableRoomsOrderAndConflicts(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	// A01 is taken for nights 5 and 6; C01 checks out on day 5.
	f.st.seedBooking(t, f.cat.roomIDs[0], 5, 7, fixedNow)
	f.st.seedBooking(t, f.cat.roomIDs[2], 3, 5, fixedNow)

	got, err := f.oracle.FindAvailableRooms(ctx, query(f.cat, 5, 7, 2, 0))
	if err != nil {
		t.Fatal(err)
	}

	want := []uuid.UUID{f.cat.roomIDs[1], f.cat.roomIDs[2]}
	if len(got) != len(want) {
		t.Fatalf("got %d rooms, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("room %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestFindAvailableRoomsIgnoresCancelledBookings(t *testing.T) {
	f := newFixture(t, 1)

	b := f.st.seedBooking(t, f.cat.roomIDs[0], 5, 7, fixedNow)
	if err := b.Cancel(fixedNow); err != nil {
		t.Fatal(err)
	}
	f.st.bookings[b.ID] = *b

	got, err := f.oracle.FindAvailableRooms(context.Background(), query(f.cat, 5, 7, 1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("cancelled booking must not block the room, got %d rooms", len(got))
	}
}

func TestFindAvailableRoomsCapacity(t *testing.T) {
	f := newFixture(t, 2)

	got, err := f.oracle.FindAvailableRooms(context.Background(), query(f.cat, 5, 7, 3, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rooms for 3 adults, got %d", len(got))
	}
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t, 2)
	f.st.seedBooking(t, f.cat.roomIDs[0], 5, 6, fixedNow)

	resp, err := f.oracle.CheckAvailability(context.Background(), &request.AvailabilityRequest{
		HotelID:    f.cat.hotelID.String(),
		RoomTypeID: f.cat.roomTypeID.String(),
		CheckIn:    day(5).Format(entity.DateLayout),
		CheckOut:   day(8).Format(entity.DateLayout),
		Adults:     2,
		Children:   1,
	})
	if err != nil {
		t.Fatal(err)
	}

	if resp.Available != 1 || resp.RoomIDs[0] != f.cat.roomIDs[1].String() {
		t.Fatalf("unexpected availability %+v", resp)
	}
	if resp.Nights != 3 || resp.TotalPrice != 3*f.cat.price {
		t.Fatalf("unexpected pricing: nights=%d total=%d", resp.Nights, resp.TotalPrice)
	}
}

func TestCheckAvailabilityErrors(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	base := request.AvailabilityRequest{
		HotelID:    f.cat.hotelID.String(),
		RoomTypeID: f.cat.roomTypeID.String(),
		CheckIn:    day(5).Format(entity.DateLayout),
		CheckOut:   day(7).Format(entity.DateLayout),
		Adults:     2,
	}

	cases := []struct {
		name   string
		mutate func(r *request.AvailabilityRequest)
		want   apperror.Kind
	}{
		{"unknown hotel", func(r *request.AvailabilityRequest) { r.HotelID = uuid.NewString() }, apperror.KindNotFound},
		{"unknown room type", func(r *request.AvailabilityRequest) { r.RoomTypeID = uuid.NewString() }, apperror.KindNotFound},
		{"too many guests", func(r *request.AvailabilityRequest) { r.Children = 2 }, apperror.KindValidation},
		{"reversed dates", func(r *request.AvailabilityRequest) { r.CheckIn, r.CheckOut = r.CheckOut, r.CheckIn }, apperror.KindValidation},
		{"bad hotel id", func(r *request.AvailabilityRequest) { r.HotelID = "abc" }, apperror.KindValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := f.oracle.CheckAvailability(ctx, &req)
			if got := apperror.KindOf(err); err == nil || got != tc.want {
				t.Fatalf("error kind = %v (%v), want %s", got, err, tc.want)
			}
		})
	}
}
