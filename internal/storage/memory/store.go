// Package memory is an in-process implementation of the service store. A
// transaction holds a single store-wide lock and works on the live state;
// a snapshot taken at begin is restored if the transaction fails.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cimillas/partmarket/internal/domain"
)

type txKey struct{}

type Store struct {
	mu    sync.Mutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

type state struct {
	items        map[string]domain.Item
	parts        map[string]domain.Part
	listings     map[string]domain.Listing
	reservations map[string]domain.Reservation
	gifts        map[string]domain.Gift
	ledger       []domain.Transaction
	head         int64
}

func newState() *state {
	return &state{
		items:        map[string]domain.Item{},
		parts:        map[string]domain.Part{},
		listings:     map[string]domain.Listing{},
		reservations: map[string]domain.Reservation{},
		gifts:        map[string]domain.Gift{},
	}
}

func (st *state) clone() *state {
	out := newState()
	for k, v := range st.items {
		out.items[k] = v
	}
	for k, v := range st.parts {
		out.parts[k] = clonePart(v)
	}
	for k, v := range st.listings {
		out.listings[k] = v
	}
	for k, v := range st.reservations {
		out.reservations[k] = cloneReservation(v)
	}
	for k, v := range st.gifts {
		out.gifts[k] = cloneGift(v)
	}
	out.ledger = make([]domain.Transaction, len(st.ledger))
	for i, tx := range st.ledger {
		out.ledger[i] = cloneTransaction(tx)
	}
	out.head = st.head
	return out
}

// WithTx runs fn under the store lock. Calls made with the ctx handed to fn
// join the transaction instead of taking the lock again.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// view runs fn against the state, locking unless ctx is inside WithTx.
func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if ctx.Value(txKey{}) == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.state)
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) error {
	return s.view(ctx, func(st *state) error {
		if _, ok := st.items[item.ID]; ok {
			return fmt.Errorf("item %s already exists", item.ID)
		}
		st.items[item.ID] = item
		return nil
	})
}

func (s *Store) GetItem(ctx context.Context, id string) (domain.Item, error) {
	var item domain.Item
	err := s.view(ctx, func(st *state) error {
		var ok bool
		if item, ok = st.items[id]; !ok {
			return domain.ErrItemNotFound
		}
		return nil
	})
	return item, err
}

func (s *Store) CreateParts(ctx context.Context, parts []domain.Part) error {
	return s.view(ctx, func(st *state) error {
		for _, p := range parts {
			if _, ok := st.parts[p.ID]; ok {
				return fmt.Errorf("part %s already exists", p.ID)
			}
		}
		for _, p := range parts {
			st.parts[p.ID] = clonePart(p)
		}
		return nil
	})
}

func (s *Store) GetPart(ctx context.Context, id string) (domain.Part, error) {
	var p domain.Part
	err := s.view(ctx, func(st *state) error {
		stored, ok := st.parts[id]
		if !ok {
			return domain.ErrPartNotFound
		}
		p = clonePart(stored)
		return nil
	})
	return p, err
}

// GetParts returns the parts in the order of ids.
func (s *Store) GetParts(ctx context.Context, ids []string) ([]domain.Part, error) {
	var out []domain.Part
	err := s.view(ctx, func(st *state) error {
		out = make([]domain.Part, 0, len(ids))
		for _, id := range ids {
			p, ok := st.parts[id]
			if !ok {
				return fmt.Errorf("%w: %s", domain.ErrPartNotFound, id)
			}
			out = append(out, clonePart(p))
		}
		return nil
	})
	return out, err
}

func (s *Store) ListParts(ctx context.Context, filter domain.PartFilter) ([]domain.Part, error) {
	skip, limit := filter.Page()
	var out []domain.Part
	err := s.view(ctx, func(st *state) error {
		matched := st.selectParts(func(p domain.Part) bool {
			if filter.Owner != "" && p.Owner != filter.Owner {
				return false
			}
			if filter.ItemID != "" && p.ItemID != filter.ItemID {
				return false
			}
			if filter.ListingID != "" && (p.ListingID == nil || *p.ListingID != filter.ListingID) {
				return false
			}
			return true
		})
		if skip >= len(matched) {
			out = []domain.Part{}
			return nil
		}
		matched = matched[skip:]
		if len(matched) > limit {
			matched = matched[:limit]
		}
		out = matched
		return nil
	})
	return out, err
}

func (s *Store) UnlistedParts(ctx context.Context, itemID, owner string) ([]domain.Part, error) {
	var out []domain.Part
	err := s.view(ctx, func(st *state) error {
		out = st.selectParts(func(p domain.Part) bool {
			return p.ItemID == itemID && p.Owner == owner && p.ListingID == nil
		})
		return nil
	})
	return out, err
}

func (s *Store) UpdatePart(ctx context.Context, part domain.Part, expectedVersion int64) error {
	return s.view(ctx, func(st *state) error {
		cur, ok := st.parts[part.ID]
		if !ok {
			return domain.ErrPartNotFound
		}
		if cur.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
		part.Version = expectedVersion + 1
		st.parts[part.ID] = clonePart(part)
		return nil
	})
}

// selectParts returns matching parts ordered by item then sequence.
func (st *state) selectParts(match func(domain.Part) bool) []domain.Part {
	out := []domain.Part{}
	for _, p := range st.parts {
		if match(p) {
			out = append(out, clonePart(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (s *Store) CreateListing(ctx context.Context, listing domain.Listing) error {
	return s.view(ctx, func(st *state) error {
		if _, ok := st.listings[listing.ID]; ok {
			return fmt.Errorf("listing %s already exists", listing.ID)
		}
		listing.PartIDs = nil
		st.listings[listing.ID] = listing
		return nil
	})
}

// GetListing derives PartIDs from the parts that reference the listing.
func (s *Store) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	var l domain.Listing
	err := s.view(ctx, func(st *state) error {
		var ok bool
		if l, ok = st.listings[id]; !ok {
			return domain.ErrListingNotFound
		}
		parts := st.selectParts(func(p domain.Part) bool {
			return p.ListingID != nil && *p.ListingID == id
		})
		l.PartIDs = make([]string, len(parts))
		for i, p := range parts {
			l.PartIDs[i] = p.ID
		}
		return nil
	})
	return l, err
}

func (s *Store) UpdateListing(ctx context.Context, listing domain.Listing, expectedVersion int64) error {
	return s.view(ctx, func(st *state) error {
		cur, ok := st.listings[listing.ID]
		if !ok {
			return domain.ErrListingNotFound
		}
		if cur.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
		listing.PartIDs = nil
		listing.Version = expectedVersion + 1
		st.listings[listing.ID] = listing
		return nil
	})
}

// LockListing only checks existence; transactions already run one at a time.
func (s *Store) LockListing(ctx context.Context, id string) error {
	return s.view(ctx, func(st *state) error {
		if _, ok := st.listings[id]; !ok {
			return domain.ErrListingNotFound
		}
		return nil
	})
}

func (s *Store) CreateReservation(ctx context.Context, res domain.Reservation) error {
	return s.view(ctx, func(st *state) error {
		if _, ok := st.reservations[res.ID]; ok {
			return fmt.Errorf("reservation %s already exists", res.ID)
		}
		st.reservations[res.ID] = cloneReservation(res)
		return nil
	})
}

func (s *Store) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	var res domain.Reservation
	err := s.view(ctx, func(st *state) error {
		stored, ok := st.reservations[id]
		if !ok {
			return domain.ErrReservationNotFound
		}
		res = cloneReservation(stored)
		return nil
	})
	return res, err
}

func (s *Store) UpdateReservation(ctx context.Context, res domain.Reservation, expectedVersion int64) error {
	return s.view(ctx, func(st *state) error {
		cur, ok := st.reservations[res.ID]
		if !ok {
			return domain.ErrReservationNotFound
		}
		if cur.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
		res.Version = expectedVersion + 1
		st.reservations[res.ID] = cloneReservation(res)
		return nil
	})
}

func (s *Store) PendingReservations(ctx context.Context, listingID string) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := s.view(ctx, func(st *state) error {
		for _, r := range st.reservations {
			if r.ListingID == listingID && r.Status == domain.ReservationStatusPending {
				out = append(out, cloneReservation(r))
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

func (s *Store) OverdueReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := s.view(ctx, func(st *state) error {
		for _, r := range st.reservations {
			if r.Overdue(now) {
				out = append(out, cloneReservation(r))
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (s *Store) CreateGift(ctx context.Context, gift domain.Gift) error {
	return s.view(ctx, func(st *state) error {
		if _, ok := st.gifts[gift.ID]; ok {
			return fmt.Errorf("gift %s already exists", gift.ID)
		}
		st.gifts[gift.ID] = cloneGift(gift)
		return nil
	})
}

func (s *Store) GetGift(ctx context.Context, id string) (domain.Gift, error) {
	var g domain.Gift
	err := s.view(ctx, func(st *state) error {
		stored, ok := st.gifts[id]
		if !ok {
			return domain.ErrGiftNotFound
		}
		g = cloneGift(stored)
		return nil
	})
	return g, err
}

func (s *Store) UpdateGift(ctx context.Context, gift domain.Gift, expectedVersion int64) error {
	return s.view(ctx, func(st *state) error {
		cur, ok := st.gifts[gift.ID]
		if !ok {
			return domain.ErrGiftNotFound
		}
		if cur.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
		gift.Version = expectedVersion + 1
		st.gifts[gift.ID] = cloneGift(gift)
		return nil
	})
}

func (s *Store) OverdueGifts(ctx context.Context, now time.Time, limit int) ([]domain.Gift, error) {
	var out []domain.Gift
	err := s.view(ctx, func(st *state) error {
		for _, g := range st.gifts {
			if g.Overdue(now) {
				out = append(out, cloneGift(g))
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (s *Store) NextTransactionNumber(ctx context.Context) (int64, error) {
	var n int64
	err := s.view(ctx, func(st *state) error {
		st.head++
		n = st.head
		return nil
	})
	return n, err
}

func (s *Store) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	return s.view(ctx, func(st *state) error {
		if n := len(st.ledger); n > 0 && st.ledger[n-1].Number >= tx.Number {
			return fmt.Errorf("transaction %d out of order", tx.Number)
		}
		st.ledger = append(st.ledger, cloneTransaction(tx))
		return nil
	})
}

func (s *Store) GetTransaction(ctx context.Context, number int64) (domain.Transaction, error) {
	var out domain.Transaction
	err := s.view(ctx, func(st *state) error {
		i := st.find(number)
		if i < 0 {
			return domain.ErrTransactionNotFound
		}
		out = cloneTransaction(st.ledger[i])
		return nil
	})
	return out, err
}

func (s *Store) ListTransactions(ctx context.Context, from, to int64) ([]domain.Transaction, error) {
	out := []domain.Transaction{}
	err := s.view(ctx, func(st *state) error {
		for _, tx := range st.ledger {
			if tx.Number >= from && tx.Number <= to {
				out = append(out, cloneTransaction(tx))
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) UnanchoredTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := s.view(ctx, func(st *state) error {
		for _, tx := range st.ledger {
			if limit > 0 && len(out) == limit {
				break
			}
			if tx.AnchorReceipt == nil {
				out = append(out, cloneTransaction(tx))
			}
		}
		return nil
	})
	return out, err
}

// SetAnchorReceipt records the receipt once; later calls keep the first.
func (s *Store) SetAnchorReceipt(ctx context.Context, number int64, receipt string) error {
	return s.view(ctx, func(st *state) error {
		i := st.find(number)
		if i < 0 {
			return domain.ErrTransactionNotFound
		}
		if st.ledger[i].AnchorReceipt == nil {
			st.ledger[i].AnchorReceipt = &receipt
		}
		return nil
	})
}

func (st *state) find(number int64) int {
	i := sort.Search(len(st.ledger), func(i int) bool { return st.ledger[i].Number >= number })
	if i < len(st.ledger) && st.ledger[i].Number == number {
		return i
	}
	return -1
}

func clonePart(p domain.Part) domain.Part {
	p.ListingID = cloneString(p.ListingID)
	p.ReservationID = cloneString(p.ReservationID)
	p.GiftID = cloneString(p.GiftID)
	return p
}

func cloneReservation(r domain.Reservation) domain.Reservation {
	r.PartIDs = append([]string(nil), r.PartIDs...)
	r.TxNumber = cloneInt(r.TxNumber)
	return r
}

func cloneGift(g domain.Gift) domain.Gift {
	g.PartIDs = append([]string(nil), g.PartIDs...)
	g.TxNumber = cloneInt(g.TxNumber)
	return g
}

func cloneTransaction(tx domain.Transaction) domain.Transaction {
	tx.AnchorReceipt = cloneString(tx.AnchorReceipt)
	return tx
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(n *int64) *int64 {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
