package domain

// Part is one fractional unit of an item. Owner is lowercase. A part
// references at most one listing, and while a reservation or gift is
// pending it is pinned to it.
type Part struct {
	ID            string
	ItemID        string
	Seq           int
	Owner         string
	ListingID     *string
	ReservationID *string
	GiftID        *string
	Version       int64
}

func (p Part) Listed() bool {
	return p.ListingID != nil
}

func (p Part) Pinned() bool {
	return p.ReservationID != nil || p.GiftID != nil
}

// PartFilter selects parts for the query surface. Empty fields do not filter.
type PartFilter struct {
	Owner     string
	ItemID    string
	ListingID string
	Skip      int
	Limit     int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Page clamps skip/limit to sane bounds.
func (f PartFilter) Page() (skip, limit int) {
	skip, limit = f.Skip, f.Limit
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return skip, limit
}
