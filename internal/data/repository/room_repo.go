package repository

import (
	"context"
	"errors"
	"fmt"

	"hotel-booking/internal/data/entity"
	"hotel-booking/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type RoomTypeRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.RoomType, error)
}

type roomTypeRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewRoomTypeRepository(db database.Querier, log *zap.Logger) RoomTypeRepository {
	return &roomTypeRepository{
		db:  db,
		log: log.With(zap.String("repository", "room_type")),
	}
}

func (r *roomTypeRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.RoomType, error) {
	query := `
		SELECT id, hotel_id, name, price_per_night, max_adults, max_children, created_at, updated_at
		FROM room_types
		WHERE id = $1
	`

	var rt entity.RoomType
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rt.ID,
		&rt.HotelID,
		&rt.Name,
		&rt.PricePerNight,
		&rt.MaxAdults,
		&rt.MaxChildren,
		&rt.CreatedAt,
		&rt.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find room type by ID",
			zap.Error(err),
			zap.String("room_type_id", id.String()),
		)
		return nil, fmt.Errorf("find room type by ID %s: %w", id.String(), err)
	}

	return &rt, nil
}

type RoomRepository interface {
	// FindActiveByType lists active rooms ordered by room number, then id.
	FindActiveByType(ctx context.Context, hotelID, roomTypeID uuid.UUID) ([]*entity.Room, error)
}

type roomRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewRoomRepository(db database.Querier, log *zap.Logger) RoomRepository {
	return &roomRepository{
		db:  db,
		log: log.With(zap.String("repository", "room")),
	}
}

func (r *roomRepository) FindActiveByType(ctx context.Context, hotelID, roomTypeID uuid.UUID) ([]*entity.Room, error) {
	query := `
		SELECT id, hotel_id, room_type_id, room_number, is_active, created_at, updated_at
		FROM rooms
		WHERE hotel_id = $1 AND room_type_id = $2 AND is_active = TRUE
		ORDER BY room_number ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, hotelID, roomTypeID)
	if err != nil {
		r.log.Error("Failed to find rooms by type",
			zap.Error(err),
			zap.String("hotel_id", hotelID.String()),
			zap.String("room_type_id", roomTypeID.String()),
		)
		return nil, fmt.Errorf("find rooms for type %s: %w", roomTypeID.String(), err)
	}
	defer rows.Close()

	var rooms []*entity.Room
	for rows.Next() {
		var room entity.Room
		err := rows.Scan(
			&room.ID,
			&room.HotelID,
			&room.RoomTypeID,
			&room.RoomNumber,
			&room.IsActive,
			&room.CreatedAt,
			&room.UpdatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan room row", zap.Error(err))
			return nil, fmt.Errorf("scan room row: %w", err)
		}
		rooms = append(rooms, &room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room rows: %w", err)
	}

	return rooms, nil
}
