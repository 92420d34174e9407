package database

import (
	"context"
	"fmt"
)

// schemaSQL is idempotent and safe to run on every deploy.
//
// bookings_no_overlap is the storage-level guard against double booking: two
// non-cancelled bookings of one room can never hold intersecting [check_in, check_out)
// ranges, whatever the isolation level of the writers.
const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS btree_gist;

CREATE TABLE IF NOT EXISTS hotels (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	city TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS room_types (
	id UUID PRIMARY KEY,
	hotel_id UUID NOT NULL REFERENCES hotels(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	price_per_night BIGINT NOT NULL CHECK (price_per_night > 0),
	max_adults INT NOT NULL CHECK (max_adults > 0),
	max_children INT NOT NULL DEFAULT 0 CHECK (max_children >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rooms (
	id UUID PRIMARY KEY,
	hotel_id UUID NOT NULL REFERENCES hotels(id) ON DELETE CASCADE,
	room_type_id UUID NOT NULL REFERENCES room_types(id) ON DELETE CASCADE,
	room_number TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (hotel_id, room_number)
);

CREATE INDEX IF NOT EXISTS idx_rooms_hotel_type ON rooms(hotel_id, room_type_id);

-- user_id has no foreign key: identity lives in another service.
CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY,
	room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	user_id UUID NOT NULL,
	check_in_date DATE NOT NULL,
	check_out_date DATE NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('pending_payment', 'confirmed', 'cancelled')),
	total_price BIGINT NOT NULL CHECK (total_price > 0),
	currency TEXT NOT NULL,
	guest_name TEXT NOT NULL CHECK (guest_name <> ''),
	special_requests TEXT,
	payment_id UUID,
	payment_intent_id TEXT,
	is_reviewed BOOLEAN NOT NULL DEFAULT FALSE,
	pdf_url TEXT,
	pdf_failed BOOLEAN NOT NULL DEFAULT FALSE,
	pdf_error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (check_in_date < check_out_date)
);

DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'bookings_no_overlap') THEN
		ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap EXCLUDE USING gist (
			room_id WITH =,
			daterange(check_in_date, check_out_date, '[)') WITH &&
		) WHERE (status <> 'cancelled');
	END IF;
END
$$;

CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_bookings_pending ON bookings(created_at) WHERE status = 'pending_payment';

CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	booking_id UUID NOT NULL UNIQUE REFERENCES bookings(id) ON DELETE CASCADE,
	amount BIGINT NOT NULL,
	currency TEXT NOT NULL,
	provider_reference TEXT NOT NULL UNIQUE,
	payment_method TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outbox_events (
	id UUID PRIMARY KEY,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INT NOT NULL DEFAULT 0,
	last_error TEXT,
	next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox_events(next_attempt_at) WHERE status = 'pending';
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db Querier) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
