package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	admin    = Principal("admin")
	farmer   = Principal("farmer")
	verifier = Principal("verifier")
	buyer    = Principal("buyer")
	other    = Principal("other")
)

// recorder collects published events for assertions.
type recorder struct {
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) last() Event {
	if len(r.events) == 0 {
		return Event{}
	}
	return r.events[len(r.events)-1]
}

func (r *recorder) countOf(kind EventKind) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	ledger *Ledger
	events *recorder
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		events: &recorder{},
		now:    time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
	cfg := Config{
		MaxBatchSize: 100,
		Now:          func() time.Time { return f.now },
	}
	f.ledger = New(admin, cfg, f.events, nil)
	require.NoError(t, f.ledger.GrantRole(admin, RoleVerifier, verifier))
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) mintRequest(owner Principal) MintRequest {
	return MintRequest{
		Owner:          owner,
		ProjectID:      "PROJ001",
		CarbonAmount:   1000000, // 100.0000 tonnes
		VintageYear:    2023,
		Location:       "Tamil Nadu, India",
		Methodology:    "VM0042",
		ExpirationDate: f.now.Add(365 * 24 * time.Hour),
		AdditionalData: "ipfs://QmHash123",
		TokenURI:       "https://api.krishimitra.com/metadata/1",
	}
}

// mintVerified mints a credit for farmer and verifies it.
func (f *fixture) mintVerified(t *testing.T) CreditID {
	t.Helper()
	id, err := f.ledger.Mint(admin, f.mintRequest(farmer))
	require.NoError(t, err)
	require.NoError(t, f.ledger.Verify(verifier, id, "VCS"))
	return id
}

func TestInitializerHoldsAdminAndMinter(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.ledger.HasRole(RoleAdmin, admin))
	assert.True(t, f.ledger.HasRole(RoleMinter, admin))
	assert.False(t, f.ledger.HasRole(RoleAdmin, farmer))
}

func TestMintCarbonCredit(t *testing.T) {
	f := newFixture(t)

	id, err := f.ledger.Mint(admin, f.mintRequest(farmer))
	require.NoError(t, err)
	assert.Equal(t, CreditID(0), id)

	owner, err := f.ledger.OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, farmer, owner)

	credit, err := f.ledger.CreditMetadata(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), credit.CarbonAmount)
	assert.Equal(t, "PROJ001", credit.ProjectID)
	assert.Equal(t, "VM0042", credit.Methodology)
	assert.Equal(t, farmer, credit.Farmer)
	assert.False(t, credit.IsVerified)
	assert.False(t, credit.IsRetired)

	ev := f.events.last()
	assert.Equal(t, EventCreditMinted, ev.Kind)
	require.NotNil(t, ev.CreditID)
	assert.Equal(t, id, *ev.CreditID)
	assert.Equal(t, farmer, ev.Counterparty)
	assert.Equal(t, "PROJ001", ev.ProjectID)
	assert.Equal(t, int64(1000000), ev.CarbonAmount)
	assert.Equal(t, 2023, ev.VintageYear)
}

func TestMintAssignsSequentialIDs(t *testing.T) {
	f := newFixture(t)

	for want := CreditID(0); want < 3; want++ {
		id, err := f.ledger.Mint(admin, f.mintRequest(farmer))
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
}

func TestMintRequiresMinterRole(t *testing.T) {
	f := newFixture(t)

	// Fails with Unauthorized regardless of input validity.
	req := f.mintRequest(farmer)
	req.CarbonAmount = -1
	_, err := f.ledger.Mint(other, req)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.ledger.Mint(other, f.mintRequest(farmer))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, f.ledger.FarmerCredits(farmer))
}

func TestMintRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)

	req := f.mintRequest(farmer)
	req.CarbonAmount = 0
	_, err := f.ledger.Mint(admin, req)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestBatchMint(t *testing.T) {
	f := newFixture(t)

	first := f.mintRequest(farmer)
	second := f.mintRequest(other)
	second.ProjectID = "PROJ002"
	second.CarbonAmount = 2000000

	ids, err := f.ledger.BatchMint(admin, []MintRequest{first, second})
	require.NoError(t, err)
	assert.Equal(t, []CreditID{0, 1}, ids)

	owner0, err := f.ledger.OwnerOf(0)
	require.NoError(t, err)
	assert.Equal(t, farmer, owner0)
	owner1, err := f.ledger.OwnerOf(1)
	require.NoError(t, err)
	assert.Equal(t, other, owner1)

	assert.Equal(t, 2, f.events.countOf(EventCreditMinted))
}

func TestBatchMintIsAtomic(t *testing.T) {
	f := newFixture(t)

	good := f.mintRequest(farmer)
	bad := f.mintRequest(other)
	bad.CarbonAmount = 0

	_, err := f.ledger.BatchMint(admin, []MintRequest{good, bad})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// Nothing minted at all.
	_, err = f.ledger.CreditMetadata(0)
	assert.ErrorIs(t, err, ErrUnknownCredit)
	assert.Empty(t, f.ledger.FarmerCredits(farmer))
	assert.Zero(t, f.events.countOf(EventCreditMinted))
}

func TestBatchMintBounds(t *testing.T) {
	f := &fixture{
		events: &recorder{},
		now:    time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
	f.ledger = New(admin, Config{
		MaxBatchSize: 2,
		Now:          func() time.Time { return f.now },
	}, f.events, nil)

	_, err := f.ledger.BatchMint(admin, nil)
	assert.ErrorIs(t, err, ErrMalformedBatch)

	reqs := []MintRequest{f.mintRequest(farmer), f.mintRequest(farmer), f.mintRequest(farmer)}
	_, err = f.ledger.BatchMint(admin, reqs)
	assert.ErrorIs(t, err, ErrMalformedBatch)
}

func TestVerifyCarbonCredit(t *testing.T) {
	f := newFixture(t)
	id, err := f.ledger.Mint(admin, f.mintRequest(farmer))
	require.NoError(t, err)

	transferable, err := f.ledger.IsTransferable(id)
	require.NoError(t, err)
	assert.False(t, transferable)

	require.NoError(t, f.ledger.Verify(verifier, id, "VCS"))

	credit, err := f.ledger.CreditMetadata(id)
	require.NoError(t, err)
	assert.True(t, credit.IsVerified)
	assert.Equal(t, "VCS", credit.VerificationStandard)

	transferable, err = f.ledger.IsTransferable(id)
	require.NoError(t, err)
	assert.True(t, transferable)

	ev := f.events.last()
	assert.Equal(t, EventCreditVerified, ev.Kind)
	assert.Equal(t, verifier, ev.Actor)
	assert.Equal(t, "VCS", ev.Standard)
}

func TestVerifyRequiresVerifierRole(t *testing.T) {
	f := newFixture(t)
	id, err := f.ledger.Mint(admin, f.mintRequest(farmer))
	require.NoError(t, err)

	err = f.ledger.Verify(other, id, "VCS")
	assert.ErrorIs(t, err, ErrUnauthorized)

	credit, err := f.ledger.CreditMetadata(id)
	require.NoError(t, err)
	assert.False(t, credit.IsVerified)
}

func TestVerifyUnknownAndRetiredCredit(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.Verify(verifier, 42, "VCS")
	assert.ErrorIs(t, err, ErrUnknownCredit)

	id := f.mintVerified(t)
	require.NoError(t, f.ledger.Retire(farmer, id, "offset program"))

	err = f.ledger.Verify(verifier, id, "VCS")
	assert.ErrorIs(t, err, ErrAlreadyRetired)
}

func TestTransferRequiresVerification(t *testing.T) {
	f := newFixture(t)
	id, err := f.ledger.Mint(admin, f.mintRequest(farmer))
	require.NoError(t, err)

	err = f.ledger.Transfer(farmer, buyer, id)
	assert.ErrorIs(t, err, ErrNotTransferable)

	require.NoError(t, f.ledger.Verify(verifier, id, "VCS"))
	require.NoError(t, f.ledger.Transfer(farmer, buyer, id))

	owner, err := f.ledger.OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, buyer, owner)
}

func TestTransferByNonOwner(t *testing.T) {
	f := newFixture(t)
	id := f.mintVerified(t)

	err := f.ledger.Transfer(other, buyer, id)
	assert.ErrorIs(t, err, ErrNotOwner)

	owner, err := f.ledger.OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, farmer, owner)
}

func TestTransferInvalidatesListing(t *testing.T) {
	f := newFixture(t)
	id := f.mintVerified(t)
	require.NoError(t, f.ledger.ListForSale(farmer, id, 500, 7*24*time.Hour))

	require.NoError(t, f.ledger.Transfer(farmer, buyer, id))

	offer, found := f.ledger.SaleOfferFor(id)
	require.True(t, found)
	assert.False(t, offer.Active)
}

func TestRetireCarbonCredit(t *testing.T) {
	f := newFixture(t)
	id := f.mintVerified(t)
	require.NoError(t, f.ledger.ListForSale(farmer, id, 500, 7*24*time.Hour))

	reason := "Corporate offset program"
	require.NoError(t, f.ledger.Retire(farmer, id, reason))

	credit, err := f.ledger.CreditMetadata(id)
	require.NoError(t, err)
	assert.True(t, credit.IsRetired)

	// Burned out of the live ownership set.
	_, err = f.ledger.OwnerOf(id)
	assert.ErrorIs(t, err, ErrNonexistentToken)

	// Listing cancelled.
	offer, found := f.ledger.SaleOfferFor(id)
	require.True(t, found)
	assert.False(t, offer.Active)

	ev := f.events.last()
	assert.Equal(t, EventCreditRetired, ev.Kind)
	assert.Equal(t, farmer, ev.Actor)
	assert.Equal(t, reason, ev.Reason)
}

func TestRetireByNonOwner(t *testing.T) {
	f := newFixture(t)
	id := f.mintVerified(t)

	err := f.ledger.Retire(other, id, "reason")
	assert.ErrorIs(t, err, ErrNotOwner)

	credit, err := f.ledger.CreditMetadata(id)
	require.NoError(t, err)
	assert.False(t, credit.IsRetired)
	owner, err := f.ledger.OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, farmer, owner)
}

func TestRetireIsTerminal(t *testing.T) {
	f := newFixture(t)
	id := f.mintVerified(t)
	require.NoError(t, f.ledger.Retire(farmer, id, "done"))

	assert.ErrorIs(t, f.ledger.Retire(farmer, id, "again"), ErrAlreadyRetired)
	assert.ErrorIs(t, f.ledger.Transfer(farmer, buyer, id), ErrNonexistentToken)
	assert.ErrorIs(t, f.ledger.ListForSale(farmer, id, 500, time.Hour), ErrNonexistentToken)

	transferable, err := f.ledger.IsTransferable(id)
	require.NoError(t, err)
	assert.False(t, transferable)
}

func TestListCreditForSale(t *testing.T) {
	f := newFixture(t)
	id := f.mintVerified(t)

	require.NoError(t, f.ledger.ListForSale(farmer, id, 500, 7*24*time.Hour))

	offer, found := f.ledger.SaleOfferFor(id)
	require.True(t, found)
	assert.Equal(t, farmer, offer.Seller)
	assert.Equal(t, int64(500), offer.Price)
	assert.True(t, offer.Active)
	assert.Equal(t, f.now.Add(7*24*time.Hour), offer.Expiry)

	ev := f.events.last()
	assert.Equal(t, EventCreditListed, ev.Kind)
	assert.Equal(t, int64(500), ev.Price)
}

func TestListForSalePreconditions(t *testing.T) {
	f := newFixture(t)
	id, err := f.ledger.Mint(admin, f.mintRequest(farmer))
	require.NoError(t, err)

	// Unverified.
	assert.ErrorIs(t, f.ledger.ListForSale(farmer, id, 500, time.Hour), ErrNotTransferable)

	require.NoError(t, f.ledger.Verify(verifier, id, "VCS"))

	// Non-owner.
	assert.ErrorIs(t, f.ledger.ListForSale(other, id, 500, time.Hour), ErrNotOwner)
	// Non-positive price.
	assert.ErrorIs(t, f.ledger.ListForSale(farmer, id, 0, time.Hour), ErrInvalidPrice)
}

func TestBuyCarbonCredit(t *testing.T) {
	f := newFixture(t)
	id := f.mintVerified(t)
	require.NoError(t, f.ledger.ListForSale(farmer, id, 500, 7*24*time.Hour))

	require.NoError(t, f.ledger.Buy(buyer, id, 500))

	owner, err := f.ledger.OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, buyer, owner)
	assert.Equal(t, int64(500), f.ledger.PendingWithdrawal(farmer))

	offer, found := f.ledger.SaleOfferFor(id)
	require.True(t, found)
	assert.False(t, offer.Active)

	ev := f.events.last()
	assert.Equal(t, EventCreditSold, ev.Kind)
	assert.Equal(t, farmer, ev.Actor)
	assert.Equal(t, buyer, ev.Counterparty)
	assert.Equal(t, int64(500), ev.Price)

	// Offer was consumed.
	assert.ErrorIs(t, f.ledger.Buy(other, id, 500), ErrNoActiveOffer)
}

func TestBuyInsufficientPayment(t *testing.T) {
	f := newFixture(t)
	id := f.mintVerified(t)
	require.NoError(t, f.ledger.ListForSale(farmer, id, 500, 7*24*time.Hour))

	err := f.ledger.Buy(buyer, id, 499)
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	owner, err := f.ledger.OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, farmer, owner)
	assert.Zero(t, f.ledger.PendingWithdrawal(farmer))
}

func TestBuyAcceptsOverpayment(t *testing.T) {
	f := newFixture(t)
	id := f.mintVerified(t)
	require.NoError(t, f.ledger.ListForSale(farmer, id, 500, 7*24*time.Hour))

	// Overpayment is accepted; the seller is credited exactly the offer price.
	require.NoError(t, f.ledger.Buy(buyer, id, 600))
	assert.Equal(t, int64(500), f.ledger.PendingWithdrawal(farmer))
}

func TestBuyExpiredOffer(t *testing.T) {
	f := newFixture(t)
	id := f.mintVerified(t)
	require.NoError(t, f.ledger.ListForSale(farmer, id, 500, time.Hour))

	f.advance(2 * time.Hour)

	assert.ErrorIs(t, f.ledger.Buy(buyer, id, 500), ErrNoActiveOffer)
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t)
	id := f.mintVerified(t)
	require.NoError(t, f.ledger.ListForSale(farmer, id, 500, time.Hour))

	assert.ErrorIs(t, f.ledger.CancelListing(other, id), ErrNotOwner)
	require.NoError(t, f.ledger.CancelListing(farmer, id))

	offer, found := f.ledger.SaleOfferFor(id)
	require.True(t, found)
	assert.False(t, offer.Active)
	assert.Zero(t, f.ledger.PendingWithdrawal(farmer))

	assert.ErrorIs(t, f.ledger.CancelListing(farmer, id), ErrNoActiveOffer)
}

func TestWithdrawProceeds(t *testing.T) {
	f := newFixture(t)

	// Two sales accumulate on the same seller.
	first := f.mintVerified(t)
	require.NoError(t, f.ledger.ListForSale(farmer, first, 500, time.Hour))
	require.NoError(t, f.ledger.Buy(buyer, first, 500))

	second := f.mintVerified(t)
	require.NoError(t, f.ledger.ListForSale(farmer, second, 300, time.Hour))
	require.NoError(t, f.ledger.Buy(other, second, 300))

	assert.Equal(t, int64(800), f.ledger.PendingWithdrawal(farmer))

	amount, err := f.ledger.Withdraw(farmer)
	require.NoError(t, err)
	assert.Equal(t, int64(800), amount)
	assert.Zero(t, f.ledger.PendingWithdrawal(farmer))

	ev := f.events.last()
	assert.Equal(t, EventProceedsWithdrawn, ev.Kind)
	assert.Equal(t, int64(800), ev.Price)

	_, err = f.ledger.Withdraw(farmer)
	assert.ErrorIs(t, err, ErrNothingToWithdraw)
}

func TestFarmerCreditsInMintOrder(t *testing.T) {
	f := newFixture(t)

	// Interleave mints for two farmers.
	_, err := f.ledger.Mint(admin, f.mintRequest(farmer)) // 0
	require.NoError(t, err)
	_, err = f.ledger.Mint(admin, f.mintRequest(other)) // 1
	require.NoError(t, err)
	_, err = f.ledger.Mint(admin, f.mintRequest(farmer)) // 2
	require.NoError(t, err)
	_, err = f.ledger.Mint(admin, f.mintRequest(farmer)) // 3
	require.NoError(t, err)

	assert.Equal(t, []CreditID{0, 2, 3}, f.ledger.FarmerCredits(farmer))
	assert.Equal(t, []CreditID{1}, f.ledger.FarmerCredits(other))
	assert.Empty(t, f.ledger.FarmerCredits(buyer))
}

func TestProjectCredits(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.Mint(admin, f.mintRequest(farmer))
	require.NoError(t, err)
	req := f.mintRequest(other)
	_, err = f.ledger.Mint(admin, req)
	require.NoError(t, err)
	req2 := f.mintRequest(farmer)
	req2.ProjectID = "PROJ002"
	_, err = f.ledger.Mint(admin, req2)
	require.NoError(t, err)

	assert.Equal(t, []CreditID{0, 1}, f.ledger.ProjectCredits("PROJ001"))
	assert.Equal(t, []CreditID{2}, f.ledger.ProjectCredits("PROJ002"))
}

func TestCreditExpiration(t *testing.T) {
	f := newFixture(t)

	expired := f.mintRequest(farmer)
	expired.ExpirationDate = f.now.Add(-24 * time.Hour)
	expiredID, err := f.ledger.Mint(admin, expired)
	require.NoError(t, err)

	fresh := f.mintRequest(farmer)
	fresh.ExpirationDate = f.now.Add(365 * 24 * time.Hour)
	freshID, err := f.ledger.Mint(admin, fresh)
	require.NoError(t, err)

	isExpired, err := f.ledger.IsCreditExpired(expiredID)
	require.NoError(t, err)
	assert.True(t, isExpired)

	isExpired, err = f.ledger.IsCreditExpired(freshID)
	require.NoError(t, err)
	assert.False(t, isExpired)

	// Expiration is informational; it does not block transfer.
	require.NoError(t, f.ledger.Verify(verifier, expiredID, "VCS"))
	transferable, err := f.ledger.IsTransferable(expiredID)
	require.NoError(t, err)
	assert.True(t, transferable)
}

func TestPauseBlocksLifecycleOperations(t *testing.T) {
	f := newFixture(t)
	id := f.mintVerified(t)

	assert.ErrorIs(t, f.ledger.Pause(other), ErrUnauthorized)
	require.NoError(t, f.ledger.Pause(admin))
	assert.True(t, f.ledger.Paused())

	_, err := f.ledger.Mint(admin, f.mintRequest(farmer))
	assert.ErrorIs(t, err, ErrSystemPaused)
	assert.ErrorIs(t, f.ledger.Verify(verifier, id, "VCS"), ErrSystemPaused)
	assert.ErrorIs(t, f.ledger.ListForSale(farmer, id, 500, time.Hour), ErrSystemPaused)
	assert.ErrorIs(t, f.ledger.Retire(farmer, id, "r"), ErrSystemPaused)
	_, err = f.ledger.Withdraw(farmer)
	assert.ErrorIs(t, err, ErrSystemPaused)

	// Role administration remains available while paused.
	require.NoError(t, f.ledger.GrantRole(admin, RoleMinter, other))

	require.NoError(t, f.ledger.Unpause(admin))
	_, err = f.ledger.Mint(admin, f.mintRequest(farmer))
	assert.NoError(t, err)
}

func TestGrantRevokeRoleRoundTrip(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.ledger.GrantRole(other, RoleMinter, other), ErrUnauthorized)

	require.NoError(t, f.ledger.GrantRole(admin, RoleMinter, other))
	assert.True(t, f.ledger.HasRole(RoleMinter, other))

	_, err := f.ledger.Mint(other, f.mintRequest(farmer))
	require.NoError(t, err)

	require.NoError(t, f.ledger.RevokeRole(admin, RoleMinter, other))
	assert.False(t, f.ledger.HasRole(RoleMinter, other))

	_, err = f.ledger.Mint(other, f.mintRequest(farmer))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestExpireListingsSweep(t *testing.T) {
	f := newFixture(t)
	first := f.mintVerified(t)
	second := f.mintVerified(t)
	require.NoError(t, f.ledger.ListForSale(farmer, first, 500, time.Hour))
	require.NoError(t, f.ledger.ListForSale(farmer, second, 500, 48*time.Hour))

	f.advance(2 * time.Hour)

	expired := f.ledger.ExpireListings()
	assert.Equal(t, []CreditID{first}, expired)

	offer, _ := f.ledger.SaleOfferFor(first)
	assert.False(t, offer.Active)
	offer, _ = f.ledger.SaleOfferFor(second)
	assert.True(t, offer.Active)
	assert.Equal(t, 1, f.events.countOf(EventListingCancelled))

	// Idempotent.
	assert.Empty(t, f.ledger.ExpireListings())
}
