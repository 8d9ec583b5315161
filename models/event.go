package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Category         string          `json:"category"` // concert, conference, exhibition, festival, sports, theater, other
	Venue            string          `json:"venue"`
	Location         string          `json:"location"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          time.Time       `json:"end_date"`
	ImageURL         string          `json:"image_url,omitempty"`
	OrganizerID      string          `json:"organizer_id"`
	IsPublished      bool            `json:"is_published"`
	Featured         bool            `json:"featured"`
	TotalTicketsSold int             `json:"total_tickets_sold"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TicketTypes      []TicketType    `json:"ticket_types,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TicketType is one sellable tier of an event. Each tier lives in its own
// record so that the quantity decrement is a single-row conditional update.
type TicketType struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Description string          `json:"description,omitempty"`
	IsAvailable bool            `json:"is_available"`
}

var EventCategories = []string{
	"concert",
	"conference",
	"exhibition",
	"festival",
	"sports",
	"theater",
	"other",
}

type EventFilter struct {
	Query       string
	Category    string
	Location    string
	IsPublished *bool
	Page        int
	Size        int
}
