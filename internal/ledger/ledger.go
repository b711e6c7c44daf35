package ledger

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config tunes the orchestrator.
type Config struct {
	// MaxBatchSize bounds batch-mint cost; larger batches fail with
	// ErrMalformedBatch.
	MaxBatchSize int
	// Now supplies the clock; defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize: 100,
		Now:          time.Now,
	}
}

// Ledger is the lifecycle orchestrator: the public operation surface over the
// access gate, the credit registry and the marketplace. A single mutex
// serializes every operation, so each entry point is all-or-nothing and no
// transfer can interleave with a withdrawal on the same keys. Every
// precondition is checked before any mutation is applied.
type Ledger struct {
	mu       sync.Mutex
	gate     *Gate
	registry *Registry
	market   *Marketplace
	sink     Sink
	logger   *zap.Logger
	now      func() time.Time
	maxBatch int
}

// New creates a ledger whose initializer holds ADMIN and MINTER.
func New(admin Principal, cfg Config, sink Sink, logger *zap.Logger) *Ledger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		gate:     NewGate(admin),
		registry: NewRegistry(cfg.Now),
		market:   NewMarketplace(cfg.Now),
		sink:     sink,
		logger:   logger,
		now:      cfg.Now,
		maxBatch: cfg.MaxBatchSize,
	}
}

// Mint creates a new credit owned by req.Owner. Caller must hold MINTER.
func (l *Ledger) Mint(caller Principal, req MintRequest) (CreditID, error) {
	l.mu.Lock()
	id, ev, err := l.mintLocked(caller, req)
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	l.emit(ev)
	return id, nil
}

func (l *Ledger) mintLocked(caller Principal, req MintRequest) (CreditID, Event, error) {
	if err := l.gate.requireActive(); err != nil {
		return 0, Event{}, err
	}
	if err := l.gate.require(RoleMinter, caller); err != nil {
		return 0, Event{}, err
	}
	id, err := l.registry.mint(req)
	if err != nil {
		return 0, Event{}, err
	}
	ev := newEvent(EventCreditMinted, caller, l.now())
	ev.CreditID = &id
	ev.Counterparty = req.Owner
	ev.ProjectID = req.ProjectID
	ev.CarbonAmount = req.CarbonAmount
	ev.VintageYear = req.VintageYear
	return id, ev, nil
}

// BatchMint mints one credit per request, in order, atomically: if any
// precondition fails nothing is minted. The batch size is caller-bounded.
func (l *Ledger) BatchMint(caller Principal, reqs []MintRequest) ([]CreditID, error) {
	l.mu.Lock()
	ids, evs, err := l.batchMintLocked(caller, reqs)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, ev := range evs {
		l.emit(ev)
	}
	return ids, nil
}

func (l *Ledger) batchMintLocked(caller Principal, reqs []MintRequest) ([]CreditID, []Event, error) {
	if err := l.gate.requireActive(); err != nil {
		return nil, nil, err
	}
	if err := l.gate.require(RoleMinter, caller); err != nil {
		return nil, nil, err
	}
	if len(reqs) == 0 || len(reqs) > l.maxBatch {
		return nil, nil, ErrMalformedBatch
	}
	for _, req := range reqs {
		if req.CarbonAmount <= 0 {
			return nil, nil, ErrInvalidAmount
		}
	}
	ids := make([]CreditID, 0, len(reqs))
	evs := make([]Event, 0, len(reqs))
	for _, req := range reqs {
		id, err := l.registry.mint(req)
		if err != nil {
			// Unreachable after prevalidation; kept so a future
			// precondition cannot silently half-apply a batch.
			return nil, nil, err
		}
		ev := newEvent(EventCreditMinted, caller, l.now())
		creditID := id
		ev.CreditID = &creditID
		ev.Counterparty = req.Owner
		ev.ProjectID = req.ProjectID
		ev.CarbonAmount = req.CarbonAmount
		ev.VintageYear = req.VintageYear
		ids = append(ids, id)
		evs = append(evs, ev)
	}
	return ids, evs, nil
}

// Verify marks a credit verified under the given standard. Caller must hold
// VERIFIER. Verification unlocks transferability.
func (l *Ledger) Verify(caller Principal, id CreditID, standard string) error {
	l.mu.Lock()
	ev, err := func() (Event, error) {
		if err := l.gate.requireActive(); err != nil {
			return Event{}, err
		}
		if err := l.gate.require(RoleVerifier, caller); err != nil {
			return Event{}, err
		}
		c, err := l.registry.verify(id, standard)
		if err != nil {
			return Event{}, err
		}
		ev := newEvent(EventCreditVerified, caller, l.now())
		ev.CreditID = &c.ID
		ev.ProjectID = c.ProjectID
		ev.Standard = standard
		return ev, nil
	}()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.emit(ev)
	return nil
}

// Transfer moves ownership of id from the caller to recipient. Any active
// sale offer is invalidated by the owner change.
func (l *Ledger) Transfer(caller Principal, to Principal, id CreditID) error {
	l.mu.Lock()
	ev, err := func() (Event, error) {
		if err := l.gate.requireActive(); err != nil {
			return Event{}, err
		}
		c, err := l.registry.transfer(caller, to, id)
		if err != nil {
			return Event{}, err
		}
		l.market.deactivate(id)
		ev := newEvent(EventCreditTransferred, caller, l.now())
		ev.CreditID = &c.ID
		ev.Counterparty = to
		ev.ProjectID = c.ProjectID
		return ev, nil
	}()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.emit(ev)
	return nil
}

// Retire permanently removes a credit from circulation. Owner only. The record
// persists for historical queries but leaves the live ownership set, and any
// active sale offer is cancelled.
func (l *Ledger) Retire(caller Principal, id CreditID, reason string) error {
	l.mu.Lock()
	ev, err := func() (Event, error) {
		if err := l.gate.requireActive(); err != nil {
			return Event{}, err
		}
		c, err := l.registry.retire(caller, id)
		if err != nil {
			return Event{}, err
		}
		l.market.deactivate(id)
		ev := newEvent(EventCreditRetired, caller, l.now())
		ev.CreditID = &c.ID
		ev.ProjectID = c.ProjectID
		ev.CarbonAmount = c.CarbonAmount
		ev.VintageYear = c.VintageYear
		ev.Reason = reason
		return ev, nil
	}()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.emit(ev)
	return nil
}

// ListForSale creates or overwrites the sale offer for id. Caller must own the
// credit and the credit must be transferable.
func (l *Ledger) ListForSale(caller Principal, id CreditID, price int64, duration time.Duration) error {
	l.mu.Lock()
	ev, err := func() (Event, error) {
		if err := l.gate.requireActive(); err != nil {
			return Event{}, err
		}
		c, ok := l.registry.credits[id]
		if !ok || c.IsRetired {
			return Event{}, ErrNonexistentToken
		}
		if c.Owner != caller {
			return Event{}, ErrNotOwner
		}
		if !c.IsVerified {
			return Event{}, ErrNotTransferable
		}
		if price <= 0 {
			return Event{}, ErrInvalidPrice
		}
		offer := l.market.putOffer(id, caller, price, duration)
		ev := newEvent(EventCreditListed, caller, l.now())
		ev.CreditID = &id
		ev.ProjectID = c.ProjectID
		ev.Price = offer.Price
		return ev, nil
	}()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.emit(ev)
	return nil
}

// Buy purchases a listed credit. Payment must meet the offer price;
// overpayment is accepted but the seller is credited exactly the offer price
// (excess settlement is the payment rail's concern). Ownership transfer,
// proceeds credit and offer deactivation commit as a single unit.
func (l *Ledger) Buy(caller Principal, id CreditID, payment int64) error {
	l.mu.Lock()
	ev, err := func() (Event, error) {
		if err := l.gate.requireActive(); err != nil {
			return Event{}, err
		}
		offer := l.market.activeOffer(id)
		if offer == nil {
			return Event{}, ErrNoActiveOffer
		}
		if payment < offer.Price {
			return Event{}, ErrInsufficientPayment
		}
		c, ok := l.registry.credits[id]
		if !ok || c.IsRetired {
			return Event{}, ErrNonexistentToken
		}
		if !c.IsVerified {
			return Event{}, ErrNotTransferable
		}
		if c.Owner != offer.Seller {
			// Listing went stale via a direct transfer; treat as no offer.
			return Event{}, ErrNoActiveOffer
		}
		// All preconditions hold; commit.
		c.Owner = caller
		l.market.deactivate(id)
		l.market.creditProceeds(offer.Seller, offer.Price)
		ev := newEvent(EventCreditSold, offer.Seller, l.now())
		ev.CreditID = &id
		ev.Counterparty = caller
		ev.ProjectID = c.ProjectID
		ev.Price = offer.Price
		return ev, nil
	}()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.emit(ev)
	return nil
}

// CancelListing deactivates the caller's sale offer for id without any
// balance movement.
func (l *Ledger) CancelListing(caller Principal, id CreditID) error {
	l.mu.Lock()
	ev, err := func() (Event, error) {
		if err := l.gate.requireActive(); err != nil {
			return Event{}, err
		}
		offer := l.market.offer(id)
		if offer == nil || !offer.Active {
			return Event{}, ErrNoActiveOffer
		}
		if offer.Seller != caller {
			return Event{}, ErrNotOwner
		}
		l.market.deactivate(id)
		ev := newEvent(EventListingCancelled, caller, l.now())
		ev.CreditID = &id
		return ev, nil
	}()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.emit(ev)
	return nil
}

// Withdraw consumes the caller's entire pending balance and returns the
// amount owed. The balance is zeroed before the payout event is dispatched,
// so no observer of the payout can see or re-spend it.
func (l *Ledger) Withdraw(caller Principal) (int64, error) {
	l.mu.Lock()
	amount, ev, err := func() (int64, Event, error) {
		if err := l.gate.requireActive(); err != nil {
			return 0, Event{}, err
		}
		amount, err := l.market.takeBalance(caller)
		if err != nil {
			return 0, Event{}, err
		}
		ev := newEvent(EventProceedsWithdrawn, caller, l.now())
		ev.Price = amount
		return amount, ev, nil
	}()
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	l.emit(ev)
	return amount, nil
}

// ExpireListings deactivates every offer whose expiry has passed, emitting a
// cancellation per offer. Purely advisory housekeeping for indexers: Buy
// already refuses expired offers on its own.
func (l *Ledger) ExpireListings() []CreditID {
	l.mu.Lock()
	ids := l.market.expiredOffers()
	evs := make([]Event, 0, len(ids))
	for _, id := range ids {
		l.market.deactivate(id)
		ev := newEvent(EventListingCancelled, "", l.now())
		creditID := id
		ev.CreditID = &creditID
		ev.Reason = "offer expired"
		evs = append(evs, ev)
	}
	l.mu.Unlock()
	for _, ev := range evs {
		l.emit(ev)
	}
	return ids
}

// GrantRole grants role to p. ADMIN only. Role administration stays available
// while paused, otherwise a paused system could never be unpaused.
func (l *Ledger) GrantRole(caller Principal, role Role, p Principal) error {
	l.mu.Lock()
	err := l.gate.Grant(caller, role, p)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	ev := newEvent(EventRoleGranted, caller, l.now())
	ev.Counterparty = p
	ev.Role = role
	l.emit(ev)
	return nil
}

// RevokeRole revokes role from p. ADMIN only.
func (l *Ledger) RevokeRole(caller Principal, role Role, p Principal) error {
	l.mu.Lock()
	err := l.gate.Revoke(caller, role, p)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	ev := newEvent(EventRoleRevoked, caller, l.now())
	ev.Counterparty = p
	ev.Role = role
	l.emit(ev)
	return nil
}

// Pause stops all state-mutating lifecycle operations. ADMIN only.
func (l *Ledger) Pause(caller Principal) error {
	l.mu.Lock()
	err := l.gate.Pause(caller)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.emit(newEvent(EventSystemPaused, caller, l.now()))
	return nil
}

// Unpause resumes normal operation. ADMIN only.
func (l *Ledger) Unpause(caller Principal) error {
	l.mu.Lock()
	err := l.gate.Unpause(caller)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.emit(newEvent(EventSystemUnpaused, caller, l.now()))
	return nil
}

// HasRole reports whether p holds role.
func (l *Ledger) HasRole(role Role, p Principal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gate.HasRole(role, p)
}

// Paused reports the pause flag.
func (l *Ledger) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gate.Paused()
}

// OwnerOf resolves the live owner of id.
func (l *Ledger) OwnerOf(id CreditID) (Principal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.ownerOf(id)
}

// CreditMetadata returns a copy of the credit record, retired credits
// included.
func (l *Ledger) CreditMetadata(id CreditID) (Credit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, err := l.registry.get(id)
	if err != nil {
		return Credit{}, err
	}
	return *c, nil
}

// SaleOfferFor returns a copy of the stored offer for id, if any.
func (l *Ledger) SaleOfferFor(id CreditID) (SaleOffer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	offer := l.market.offer(id)
	if offer == nil {
		return SaleOffer{}, false
	}
	return *offer, true
}

// PendingWithdrawal reports the accrued proceeds owed to p.
func (l *Ledger) PendingWithdrawal(p Principal) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.market.pendingWithdrawal(p)
}

// FarmerCredits returns the ids originated for farmer, in mint order.
func (l *Ledger) FarmerCredits(farmer Principal) []CreditID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.farmerCredits(farmer)
}

// ProjectCredits returns the ids minted under projectID, in mint order.
func (l *Ledger) ProjectCredits(projectID string) []CreditID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.projectCredits(projectID)
}

// IsCreditExpired reports whether the credit's expiration date has passed.
func (l *Ledger) IsCreditExpired(id CreditID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.isExpired(id)
}

// IsTransferable reports whether the credit may change owner.
func (l *Ledger) IsTransferable(id CreditID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.isTransferable(id)
}

// Snapshot returns value copies of every credit in mint order, for exports.
func (l *Ledger) Snapshot() []Credit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.snapshot()
}

func (l *Ledger) emit(ev Event) {
	l.logger.Info("ledger event",
		zap.String("kind", string(ev.Kind)),
		zap.String("actor", string(ev.Actor)),
	)
	if l.sink != nil {
		l.sink.Publish(ev)
	}
}
