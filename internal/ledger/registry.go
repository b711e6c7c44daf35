package ledger

import "time"

// CreditID is the sequential identifier assigned at mint time, starting at 0.
type CreditID uint64

// Credit is the canonical record for a minted carbon credit.
// CarbonAmount is fixed-point with 4 implied decimal places (units of
// 0.0001 tCO2e), matching how quantities arrive from the calculation
// pipeline.
type Credit struct {
	ID                   CreditID  `json:"id"`
	Owner                Principal `json:"owner"`
	ProjectID            string    `json:"project_id"`
	CarbonAmount         int64     `json:"carbon_amount"`
	VintageYear          int       `json:"vintage_year"`
	Location             string    `json:"location"`
	Methodology          string    `json:"methodology"` // 'VM0042', 'VM0007', etc.
	ExpirationDate       time.Time `json:"expiration_date"`
	AdditionalData       string    `json:"additional_data"` // opaque content address
	TokenURI             string    `json:"token_uri"`
	Farmer               Principal `json:"farmer"`
	IsVerified           bool      `json:"is_verified"`
	VerificationStandard string    `json:"verification_standard,omitempty"`
	IsRetired            bool      `json:"is_retired"`
	MintedAt             time.Time `json:"minted_at"`
}

// MintRequest carries the parameters of a single mint.
type MintRequest struct {
	Owner          Principal `json:"owner"`
	ProjectID      string    `json:"project_id"`
	CarbonAmount   int64     `json:"carbon_amount"`
	VintageYear    int       `json:"vintage_year"`
	Location       string    `json:"location"`
	Methodology    string    `json:"methodology"`
	ExpirationDate time.Time `json:"expiration_date"`
	AdditionalData string    `json:"additional_data"`
	TokenURI       string    `json:"token_uri"`
}

// Registry owns every credit record plus the farmer and project indexes.
// Indexes are appended on mint, never recomputed by scanning. All methods
// assume the orchestrator lock is held.
type Registry struct {
	credits      map[CreditID]*Credit
	nextID       CreditID
	farmerIndex  map[Principal][]CreditID
	projectIndex map[string][]CreditID
	now          func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(now func() time.Time) *Registry {
	return &Registry{
		credits:      map[CreditID]*Credit{},
		farmerIndex:  map[Principal][]CreditID{},
		projectIndex: map[string][]CreditID{},
		now:          now,
	}
}

func (r *Registry) mint(req MintRequest) (CreditID, error) {
	if req.CarbonAmount <= 0 {
		return 0, ErrInvalidAmount
	}
	id := r.nextID
	r.nextID++
	r.credits[id] = &Credit{
		ID:             id,
		Owner:          req.Owner,
		ProjectID:      req.ProjectID,
		CarbonAmount:   req.CarbonAmount,
		VintageYear:    req.VintageYear,
		Location:       req.Location,
		Methodology:    req.Methodology,
		ExpirationDate: req.ExpirationDate,
		AdditionalData: req.AdditionalData,
		TokenURI:       req.TokenURI,
		Farmer:         req.Owner,
		MintedAt:       r.now(),
	}
	r.farmerIndex[req.Owner] = append(r.farmerIndex[req.Owner], id)
	r.projectIndex[req.ProjectID] = append(r.projectIndex[req.ProjectID], id)
	return id, nil
}

// get returns the record for id including retired credits (they persist for
// historical queries).
func (r *Registry) get(id CreditID) (*Credit, error) {
	c, ok := r.credits[id]
	if !ok {
		return nil, ErrUnknownCredit
	}
	return c, nil
}

// ownerOf resolves the live owner. Retired credits are burned out of the live
// ownership set.
func (r *Registry) ownerOf(id CreditID) (Principal, error) {
	c, ok := r.credits[id]
	if !ok || c.IsRetired {
		return "", ErrNonexistentToken
	}
	return c.Owner, nil
}

func (r *Registry) verify(id CreditID, standard string) (*Credit, error) {
	c, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if c.IsRetired {
		return nil, ErrAlreadyRetired
	}
	c.IsVerified = true
	c.VerificationStandard = standard
	return c, nil
}

// transfer moves ownership from caller to recipient. Transferability is
// governed solely by verification and retirement; expiration is informational.
func (r *Registry) transfer(caller Principal, to Principal, id CreditID) (*Credit, error) {
	c, ok := r.credits[id]
	if !ok || c.IsRetired {
		return nil, ErrNonexistentToken
	}
	if c.Owner != caller {
		return nil, ErrNotOwner
	}
	if !c.IsVerified {
		return nil, ErrNotTransferable
	}
	c.Owner = to
	return c, nil
}

func (r *Registry) retire(caller Principal, id CreditID) (*Credit, error) {
	c, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if c.IsRetired {
		return nil, ErrAlreadyRetired
	}
	if c.Owner != caller {
		return nil, ErrNotOwner
	}
	c.IsRetired = true
	return c, nil
}

func (r *Registry) isTransferable(id CreditID) (bool, error) {
	c, err := r.get(id)
	if err != nil {
		return false, err
	}
	return c.IsVerified && !c.IsRetired, nil
}

func (r *Registry) isExpired(id CreditID) (bool, error) {
	c, err := r.get(id)
	if err != nil {
		return false, err
	}
	return !r.now().Before(c.ExpirationDate), nil
}

func (r *Registry) farmerCredits(farmer Principal) []CreditID {
	ids := r.farmerIndex[farmer]
	out := make([]CreditID, len(ids))
	copy(out, ids)
	return out
}

func (r *Registry) projectCredits(projectID string) []CreditID {
	ids := r.projectIndex[projectID]
	out := make([]CreditID, len(ids))
	copy(out, ids)
	return out
}

// snapshot returns value copies of every credit in mint order.
func (r *Registry) snapshot() []Credit {
	out := make([]Credit, 0, len(r.credits))
	for id := CreditID(0); id < r.nextID; id++ {
		if c, ok := r.credits[id]; ok {
			out = append(out, *c)
		}
	}
	return out
}
