package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"krishimitra/carbon-registry/registry-backend/internal/certificates"
	"krishimitra/carbon-registry/registry-backend/internal/export"
	"krishimitra/carbon-registry/registry-backend/internal/journal"
	"krishimitra/carbon-registry/registry-backend/internal/ledger"
	"krishimitra/carbon-registry/registry-backend/internal/stream"
)

// Handler exposes the ledger operations over HTTP. Read-only queries are
// public; mutations require an authenticated principal.
type Handler struct {
	ledger   *ledger.Ledger
	exporter *export.ExcelExporter
	journal  *journal.Service
	certs    *certificates.Service
	stream   *stream.Manager
	logger   *zap.Logger
}

func NewHandler(l *ledger.Ledger, jr *journal.Service, certs *certificates.Service, sm *stream.Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ledger:   l,
		exporter: export.NewExcelExporter(),
		journal:  jr,
		certs:    certs,
		stream:   sm,
		logger:   logger,
	}
}

// RegisterRoutes wires the operation surface under the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, jwtSecret string) {
	r.GET("/credits/:id", h.CreditMetadata)
	r.GET("/credits/:id/owner", h.OwnerOf)
	r.GET("/credits/:id/offer", h.SaleOffer)
	r.GET("/credits/:id/expired", h.IsExpired)
	r.GET("/credits/:id/transferable", h.IsTransferable)
	r.GET("/credits/:id/certificate", h.Certificate)
	r.GET("/credits/:id/certificate/download", h.CertificateDownload)
	r.GET("/credits/export", h.ExportCredits)
	r.GET("/farmers/:farmer/credits", h.FarmerCredits)
	r.GET("/farmers/:farmer/certificates", h.FarmerCertificates)
	r.GET("/projects/:project/credits", h.ProjectCredits)
	r.GET("/marketplace/withdrawals/:principal", h.PendingWithdrawal)
	r.GET("/events", h.Events)
	r.GET("/stream", h.Stream)

	authed := r.Group("", AuthRequired(jwtSecret))
	authed.POST("/credits", h.Mint)
	authed.POST("/credits/batch", h.BatchMint)
	authed.POST("/credits/:id/verify", h.Verify)
	authed.POST("/credits/:id/transfer", h.Transfer)
	authed.POST("/credits/:id/retire", h.Retire)
	authed.POST("/marketplace/:id/list", h.ListForSale)
	authed.POST("/marketplace/:id/buy", h.Buy)
	authed.POST("/marketplace/:id/cancel", h.CancelListing)
	authed.POST("/marketplace/withdraw", h.Withdraw)
	authed.POST("/admin/roles/grant", h.GrantRole)
	authed.POST("/admin/roles/revoke", h.RevokeRole)
	authed.POST("/admin/pause", h.Pause)
	authed.POST("/admin/unpause", h.Unpause)
}

type mintPayload struct {
	Owner          string `json:"owner" binding:"required"`
	ProjectID      string `json:"project_id" binding:"required"`
	CarbonAmount   int64  `json:"carbon_amount" binding:"required"`
	VintageYear    int    `json:"vintage_year" binding:"required"`
	Location       string `json:"location"`
	Methodology    string `json:"methodology"`
	ExpirationDate int64  `json:"expiration_date"`
	AdditionalData string `json:"additional_data"`
	TokenURI       string `json:"token_uri"`
}

func (p mintPayload) toRequest() ledger.MintRequest {
	return ledger.MintRequest{
		Owner:          ledger.Principal(p.Owner),
		ProjectID:      p.ProjectID,
		CarbonAmount:   p.CarbonAmount,
		VintageYear:    p.VintageYear,
		Location:       p.Location,
		Methodology:    p.Methodology,
		ExpirationDate: time.Unix(p.ExpirationDate, 0),
		AdditionalData: p.AdditionalData,
		TokenURI:       p.TokenURI,
	}
}

func (h *Handler) Mint(c *gin.Context) {
	var payload mintPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.ledger.Mint(callerPrincipal(c), payload.toRequest())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"credit_id": id})
}

// batchMintPayload mirrors the batch operation's parallel-array shape; all
// arrays must have equal length.
type batchMintPayload struct {
	Owners          []string `json:"owners" binding:"required"`
	ProjectIDs      []string `json:"project_ids" binding:"required"`
	CarbonAmounts   []int64  `json:"carbon_amounts" binding:"required"`
	VintageYears    []int    `json:"vintage_years" binding:"required"`
	Locations       []string `json:"locations" binding:"required"`
	Methodologies   []string `json:"methodologies" binding:"required"`
	ExpirationDates []int64  `json:"expiration_dates" binding:"required"`
	AdditionalData  []string `json:"additional_data" binding:"required"`
	TokenURIs       []string `json:"token_uris" binding:"required"`
}

func (p batchMintPayload) toRequests() ([]ledger.MintRequest, error) {
	n := len(p.Owners)
	if len(p.ProjectIDs) != n || len(p.CarbonAmounts) != n || len(p.VintageYears) != n ||
		len(p.Locations) != n || len(p.Methodologies) != n || len(p.ExpirationDates) != n ||
		len(p.AdditionalData) != n || len(p.TokenURIs) != n {
		return nil, ledger.ErrMalformedBatch
	}
	reqs := make([]ledger.MintRequest, n)
	for i := 0; i < n; i++ {
		reqs[i] = ledger.MintRequest{
			Owner:          ledger.Principal(p.Owners[i]),
			ProjectID:      p.ProjectIDs[i],
			CarbonAmount:   p.CarbonAmounts[i],
			VintageYear:    p.VintageYears[i],
			Location:       p.Locations[i],
			Methodology:    p.Methodologies[i],
			ExpirationDate: time.Unix(p.ExpirationDates[i], 0),
			AdditionalData: p.AdditionalData[i],
			TokenURI:       p.TokenURIs[i],
		}
	}
	return reqs, nil
}

func (h *Handler) BatchMint(c *gin.Context) {
	var payload batchMintPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reqs, err := payload.toRequests()
	if err != nil {
		h.fail(c, err)
		return
	}
	ids, err := h.ledger.BatchMint(callerPrincipal(c), reqs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"credit_ids": ids})
}

func (h *Handler) Verify(c *gin.Context) {
	id, ok := h.creditID(c)
	if !ok {
		return
	}
	var payload struct {
		Standard string `json:"standard" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.Verify(callerPrincipal(c), id, payload.Standard); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "verified"})
}

func (h *Handler) Transfer(c *gin.Context) {
	id, ok := h.creditID(c)
	if !ok {
		return
	}
	var payload struct {
		To string `json:"to" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.Transfer(callerPrincipal(c), ledger.Principal(payload.To), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "transferred"})
}

func (h *Handler) Retire(c *gin.Context) {
	id, ok := h.creditID(c)
	if !ok {
		return
	}
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.Retire(callerPrincipal(c), id, payload.Reason); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "retired"})
}

func (h *Handler) ListForSale(c *gin.Context) {
	id, ok := h.creditID(c)
	if !ok {
		return
	}
	var payload struct {
		Price           int64 `json:"price" binding:"required"`
		DurationSeconds int64 `json:"duration_seconds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	duration := time.Duration(payload.DurationSeconds) * time.Second
	if err := h.ledger.ListForSale(callerPrincipal(c), id, payload.Price, duration); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "listed"})
}

func (h *Handler) Buy(c *gin.Context) {
	id, ok := h.creditID(c)
	if !ok {
		return
	}
	var payload struct {
		Payment int64 `json:"payment" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.Buy(callerPrincipal(c), id, payload.Payment); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sold"})
}

func (h *Handler) CancelListing(c *gin.Context) {
	id, ok := h.creditID(c)
	if !ok {
		return
	}
	if err := h.ledger.CancelListing(callerPrincipal(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *Handler) Withdraw(c *gin.Context) {
	amount, err := h.ledger.Withdraw(callerPrincipal(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount})
}

type rolePayload struct {
	Role      string `json:"role" binding:"required"`
	Principal string `json:"principal" binding:"required"`
}

func (h *Handler) GrantRole(c *gin.Context) {
	var payload rolePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.GrantRole(callerPrincipal(c), ledger.Role(payload.Role), ledger.Principal(payload.Principal)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "granted"})
}

func (h *Handler) RevokeRole(c *gin.Context) {
	var payload rolePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ledger.RevokeRole(callerPrincipal(c), ledger.Role(payload.Role), ledger.Principal(payload.Principal)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

func (h *Handler) Pause(c *gin.Context) {
	if err := h.ledger.Pause(callerPrincipal(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (h *Handler) Unpause(c *gin.Context) {
	if err := h.ledger.Unpause(callerPrincipal(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

func (h *Handler) CreditMetadata(c *gin.Context) {
	id, ok := h.creditID(c)
	if !ok {
		return
	}
	credit, err := h.ledger.CreditMetadata(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, credit)
}

func (h *Handler) OwnerOf(c *gin.Context) {
	id, ok := h.creditID(c)
	if !ok {
		return
	}
	owner, err := h.ledger.OwnerOf(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": owner})
}

func (h *Handler) SaleOffer(c *gin.Context) {
	id, ok := h.creditID(c)
	if !ok {
		return
	}
	offer, found := h.ledger.SaleOfferFor(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": ledger.ErrNoActiveOffer.Error()})
		return
	}
	c.JSON(http.StatusOK, offer)
}

func (h *Handler) IsExpired(c *gin.Context) {
	id, ok := h.creditID(c)
	if !ok {
		return
	}
	expired, err := h.ledger.IsCreditExpired(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}

func (h *Handler) IsTransferable(c *gin.Context) {
	id, ok := h.creditID(c)
	if !ok {
		return
	}
	transferable, err := h.ledger.IsTransferable(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transferable": transferable})
}

func (h *Handler) FarmerCredits(c *gin.Context) {
	ids := h.ledger.FarmerCredits(ledger.Principal(c.Param("farmer")))
	c.JSON(http.StatusOK, gin.H{"credit_ids": ids})
}

func (h *Handler) ProjectCredits(c *gin.Context) {
	ids := h.ledger.ProjectCredits(c.Param("project"))
	c.JSON(http.StatusOK, gin.H{"credit_ids": ids})
}

func (h *Handler) PendingWithdrawal(c *gin.Context) {
	amount := h.ledger.PendingWithdrawal(ledger.Principal(c.Param("principal")))
	c.JSON(http.StatusOK, gin.H{"amount": amount})
}

func (h *Handler) ExportCredits(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="credits.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := h.exporter.Export(h.ledger.Snapshot(), c.Writer); err != nil {
		h.logger.Error("credit export failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
	}
}

func (h *Handler) Events(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "journal disabled"})
		return
	}
	filter := journal.EventFilter{
		Kind:  c.Query("kind"),
		Limit: 100,
	}
	if raw := c.Query("credit_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.CreditID = &id
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if raw := c.Query("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		filter.Since = ts
	}
	if raw := c.Query("until"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "until must be RFC3339"})
			return
		}
		filter.Until = ts
	}
	events, err := h.journal.Events(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("event query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) Certificate(c *gin.Context) {
	if h.certs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "certificates disabled"})
		return
	}
	id, ok := h.creditID(c)
	if !ok {
		return
	}
	cert, err := h.certs.Certificate(c.Request.Context(), int64(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
		return
	}
	c.JSON(http.StatusOK, cert)
}

func (h *Handler) CertificateDownload(c *gin.Context) {
	if h.certs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "certificates disabled"})
		return
	}
	id, ok := h.creditID(c)
	if !ok {
		return
	}
	url, err := h.certs.DownloadURL(c.Request.Context(), int64(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) FarmerCertificates(c *gin.Context) {
	if h.certs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "certificates disabled"})
		return
	}
	certs, err := h.certs.CertificatesForOwner(c.Request.Context(), c.Param("farmer"))
	if err != nil {
		h.logger.Error("certificate query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"certificates": certs})
}

func (h *Handler) Stream(c *gin.Context) {
	if h.stream == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "stream disabled"})
		return
	}
	if err := h.stream.HandleConnection(c.Writer, c.Request); err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
	}
}

func (h *Handler) creditID(c *gin.Context) (ledger.CreditID, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credit id"})
		return 0, false
	}
	return ledger.CreditID(id), true
}

func (h *Handler) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrSystemPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrUnknownCredit),
		errors.Is(err, ledger.ErrNonexistentToken),
		errors.Is(err, ledger.ErrNoActiveOffer):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrMalformedBatch),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidPrice):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrAlreadyRetired),
		errors.Is(err, ledger.ErrNotOwner),
		errors.Is(err, ledger.ErrNotTransferable),
		errors.Is(err, ledger.ErrInsufficientPayment),
		errors.Is(err, ledger.ErrNothingToWithdraw):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
