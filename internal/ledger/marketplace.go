package ledger

import "time"

// SaleOffer is the single listing slot for a credit. Listing again overwrites
// the previous offer.
type SaleOffer struct {
	CreditID CreditID  `json:"credit_id"`
	Seller   Principal `json:"seller"`
	Price    int64     `json:"price"`
	Expiry   time.Time `json:"expiry"`
	Active   bool      `json:"active"`
	ListedAt time.Time `json:"listed_at"`
}

// Marketplace tracks sale offers and pending seller withdrawals. Cross-entity
// preconditions (ownership, transferability) live in the orchestrator; this
// type only keeps the books. All methods assume the orchestrator lock is held.
type Marketplace struct {
	offers      map[CreditID]*SaleOffer
	withdrawals map[Principal]int64
	now         func() time.Time
}

// NewMarketplace creates an empty marketplace ledger.
func NewMarketplace(now func() time.Time) *Marketplace {
	return &Marketplace{
		offers:      map[CreditID]*SaleOffer{},
		withdrawals: map[Principal]int64{},
		now:         now,
	}
}

func (m *Marketplace) putOffer(id CreditID, seller Principal, price int64, duration time.Duration) *SaleOffer {
	listedAt := m.now()
	offer := &SaleOffer{
		CreditID: id,
		Seller:   seller,
		Price:    price,
		Expiry:   listedAt.Add(duration),
		Active:   true,
		ListedAt: listedAt,
	}
	m.offers[id] = offer
	return offer
}

// activeOffer returns the offer for id if it is active and unexpired.
func (m *Marketplace) activeOffer(id CreditID) *SaleOffer {
	offer, ok := m.offers[id]
	if !ok || !offer.Active || !m.now().Before(offer.Expiry) {
		return nil
	}
	return offer
}

// offer returns the stored offer regardless of state, for read-only queries.
func (m *Marketplace) offer(id CreditID) *SaleOffer {
	return m.offers[id]
}

// deactivate clears the offer for id if one is active. Returns whether an
// active offer was cleared.
func (m *Marketplace) deactivate(id CreditID) bool {
	offer, ok := m.offers[id]
	if !ok || !offer.Active {
		return false
	}
	offer.Active = false
	return true
}

// creditProceeds accumulates sale proceeds owed to seller.
func (m *Marketplace) creditProceeds(seller Principal, amount int64) {
	m.withdrawals[seller] += amount
}

// takeBalance zeroes and returns the caller's full pending balance. The
// balance is consumed before any payout is dispatched, so a re-entrant
// observer can never see it nonzero while the payout is in flight.
func (m *Marketplace) takeBalance(p Principal) (int64, error) {
	amount := m.withdrawals[p]
	if amount == 0 {
		return 0, ErrNothingToWithdraw
	}
	delete(m.withdrawals, p)
	return amount, nil
}

// pendingWithdrawal reports the accrued balance for p.
func (m *Marketplace) pendingWithdrawal(p Principal) int64 {
	return m.withdrawals[p]
}

// expiredOffers returns ids of offers still flagged active whose expiry has
// passed. Used by the maintenance sweep; buy checks expiry lazily on its own.
func (m *Marketplace) expiredOffers() []CreditID {
	var ids []CreditID
	cutoff := m.now()
	for id, offer := range m.offers {
		if offer.Active && !cutoff.Before(offer.Expiry) {
			ids = append(ids, id)
		}
	}
	return ids
}
