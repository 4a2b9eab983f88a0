package domain

import "time"

type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusCancelled ListingStatus = "cancelled"
)

// Listing offers specific parts at a unit price. PartIDs is derived from the
// parts that currently reference the listing, ordered by mint sequence.
type Listing struct {
	ID         string
	Seller     string
	ItemID     string
	UnitPrice  string
	Bundle     bool
	PartIDs    []string
	Status     ListingStatus
	TerminalTx *int64
	Version    int64
	CreatedAt  time.Time
}

func (l Listing) Active() bool {
	return l.Status == ListingStatusActive
}
