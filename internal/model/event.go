package model

import "time"

// Event is a sellable occasion.  It owns items, quotas and a single
// advisory lock row.  Events become live to permit sales and are
// soft-archived rather than deleted, so the model carries boolean
// flags instead of a lifecycle status enum.
//
// Fields:
//  ID           – primary key identifier.
//  Organizer    – slug of the organizer owning the event.
//  Name         – display name of the event.
//  Live         – whether the event currently permits sales.
//  HasSubevents – whether quota consumption is partitioned per
//                 date/session.
//  CreatedAt    – timestamp when the record was created.
type Event struct {
	ID           int64     // events.id
	Organizer    string    // events.organizer
	Name         string    // events.name
	Live         bool      // events.live
	HasSubevents bool      // events.has_subevents
	CreatedAt    time.Time // events.created_at
}

// Subevent is an independent date or session within a recurring
// event.  When the parent event has subevents, carts, order positions
// and subevent-scoped quotas each reference one, and capacity is
// counted per subevent rather than event-wide.
type Subevent struct {
	ID       int64     // subevents.id
	EventID  int64     // subevents.event_id
	Name     string    // subevents.name
	StartsAt time.Time // subevents.starts_at
}
