package usecase

import (
	"context"

	"hotel-booking/internal/data/entity"
	"hotel-booking/internal/data/repository"
	"hotel-booking/internal/dto/request"
	"hotel-booking/internal/dto/response"
	"hotel-booking/pkg/apperror"
	"hotel-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AvailabilityQuery struct {
	HotelID    uuid.UUID
	RoomTypeID uuid.UUID
	Stay       entity.DateRange
	Adults     int
	Children   int
}

type AvailabilityService interface {
	// FindAvailableRooms returns the ids of rooms of the requested type that
	// have no active booking intersecting the stay, in room-number order.
	// Unknown hotels or room types simply yield no rooms.
	FindAvailableRooms(ctx context.Context, q AvailabilityQuery) ([]uuid.UUID, error)
	CheckAvailability(ctx context.Context, req *request.AvailabilityRequest) (*response.AvailabilityResponse, error)
}

type availabilityService struct {
	repo *repository.Repository
	log  *zap.Logger
}

func NewAvailabilityService(repo *repository.Repository, log *zap.Logger) AvailabilityService {
	return &availabilityService{
		repo: repo,
		log:  log.With(zap.String("service", "availability")),
	}
}

func (s *availabilityService) FindAvailableRooms(ctx context.Context, q AvailabilityQuery) ([]uuid.UUID, error) {
	roomType, err := s.repo.RoomType.FindByID(ctx, q.RoomTypeID)
	if err != nil {
		return nil, apperror.Infrastructure("load room type", err)
	}
	if roomType == nil || roomType.HotelID != q.HotelID || !roomType.Accommodates(q.Adults, q.Children) {
		return nil, nil
	}

	return findAvailableRooms(ctx, s.repo, q.HotelID, roomType.ID, q.Stay)
}

func (s *availabilityService) CheckAvailability(ctx context.Context, req *request.AvailabilityRequest) (*response.AvailabilityResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, apperror.Validation("validation failed: %s", utils.FormatValidationErrors(errs))
	}

	hotelID := uuid.MustParse(req.HotelID)
	roomTypeID := uuid.MustParse(req.RoomTypeID)

	stay, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}

	_, roomType, err := loadRoomType(ctx, s.repo, hotelID, roomTypeID)
	if err != nil {
		return nil, err
	}

	if !roomType.Accommodates(req.Adults, req.Children) {
		return nil, capacityError(roomType)
	}

	roomIDs, err := findAvailableRooms(ctx, s.repo, hotelID, roomTypeID, stay)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(roomIDs))
	for i, id := range roomIDs {
		ids[i] = id.String()
	}

	return &response.AvailabilityResponse{
		HotelID:       hotelID.String(),
		RoomTypeID:    roomTypeID.String(),
		CheckIn:       stay.CheckIn.Format(entity.DateLayout),
		CheckOut:      stay.CheckOut.Format(entity.DateLayout),
		Nights:        stay.Nights(),
		PricePerNight: roomType.PricePerNight,
		TotalPrice:    roomType.PriceFor(stay),
		Available:     len(ids),
		RoomIDs:       ids,
	}, nil
}

// findAvailableRooms runs against whatever repo it is given, so the
// reservation workflow can call it inside its transaction.
func findAvailableRooms(ctx context.Context, repo *repository.Repository, hotelID, roomTypeID uuid.UUID, stay entity.DateRange) ([]uuid.UUID, error) {
	rooms, err := repo.Room.FindActiveByType(ctx, hotelID, roomTypeID)
	if err != nil {
		return nil, apperror.Infrastructure("load rooms", err)
	}
	if len(rooms) == 0 {
		return nil, nil
	}

	roomIDs := make([]uuid.UUID, len(rooms))
	for i, room := range rooms {
		roomIDs[i] = room.ID
	}

	conflicts, err := repo.Booking.FindOverlapping(ctx, roomIDs, stay)
	if err != nil {
		return nil, apperror.Infrastructure("load overlapping bookings", err)
	}

	taken := make(map[uuid.UUID]bool, len(conflicts))
	for _, b := range conflicts {
		if b.Status() != entity.BookingStatusCancelled && b.Stay().Overlaps(stay) {
			taken[b.RoomID] = true
		}
	}

	available := make([]uuid.UUID, 0, len(roomIDs))
	for _, id := range roomIDs {
		if !taken[id] {
			available = append(available, id)
		}
	}

	return available, nil
}

func loadRoomType(ctx context.Context, repo *repository.Repository, hotelID, roomTypeID uuid.UUID) (*entity.Hotel, *entity.RoomType, error) {
	hotel, err := repo.Hotel.FindByID(ctx, hotelID)
	if err != nil {
		return nil, nil, apperror.Infrastructure("load hotel", err)
	}
	if hotel == nil || !hotel.IsActive {
		return nil, nil, apperror.NotFound("hotel %s not found", hotelID)
	}

	roomType, err := repo.RoomType.FindByID(ctx, roomTypeID)
	if err != nil {
		return nil, nil, apperror.Infrastructure("load room type", err)
	}
	if roomType == nil || roomType.HotelID != hotel.ID {
		return nil, nil, apperror.NotFound("room type %s not found", roomTypeID)
	}

	return hotel, roomType, nil
}

func parseStay(checkIn, checkOut string) (entity.DateRange, error) {
	in, err := entity.ParseDate(checkIn)
	if err != nil {
		return entity.DateRange{}, err
	}
	out, err := entity.ParseDate(checkOut)
	if err != nil {
		return entity.DateRange{}, err
	}
	return entity.NewDateRange(in, out)
}

func capacityError(rt *entity.RoomType) error {
	return apperror.Validation("room type %s accommodates at most %d adults and %d children",
		rt.Name, rt.MaxAdults, rt.MaxChildren)
}
