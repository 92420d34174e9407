package request

type InitiateBookingRequest struct {
	HotelID         string  `json:"hotel_id" validate:"required,uuid"`
	RoomTypeID      string  `json:"room_type_id" validate:"required,uuid"`
	CheckIn         string  `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut        string  `json:"check_out" validate:"required,datetime=2006-01-02"`
	Adults          int     `json:"adults" validate:"min=1,max=20"`
	Children        int     `json:"children" validate:"min=0,max=20"`
	GuestName       string  `json:"guest_name" validate:"required,max=200"`
	SpecialRequests *string `json:"special_requests,omitempty" validate:"omitempty,max=1000"`
}

// AvailabilityRequest is read from the query string; the path carries the
// hotel and room type.
type AvailabilityRequest struct {
	HotelID    string `validate:"required,uuid"`
	RoomTypeID string `validate:"required,uuid"`
	CheckIn    string `validate:"required,datetime=2006-01-02"`
	CheckOut   string `validate:"required,datetime=2006-01-02"`
	Adults     int    `validate:"min=1,max=20"`
	Children   int    `validate:"min=0,max=20"`
}
