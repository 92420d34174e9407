package entity

import (
	"github.com/google/uuid"
)

type Hotel struct {
	Base
	Name     string `db:"name"`
	City     string `db:"city"`
	Address  string `db:"address"`
	IsActive bool   `db:"is_active"`
}

type RoomType struct {
	Base
	HotelID       uuid.UUID `db:"hotel_id"`
	Name          string    `db:"name"`
	PricePerNight int64     `db:"price_per_night"`
	MaxAdults     int       `db:"max_adults"`
	MaxChildren   int       `db:"max_children"`
}

// Accommodates checks the party against the room type's occupancy limits.
func (rt *RoomType) Accommodates(adults, children int) bool {
	return adults >= 1 && adults <= rt.MaxAdults && children >= 0 && children <= rt.MaxChildren
}

func (rt *RoomType) PriceFor(stay DateRange) int64 {
	return int64(stay.Nights()) * rt.PricePerNight
}

type Room struct {
	Base
	HotelID    uuid.UUID `db:"hotel_id"`
	RoomTypeID uuid.UUID `db:"room_type_id"`
	RoomNumber string    `db:"room_number"`
	IsActive   bool      `db:"is_active"`
}
