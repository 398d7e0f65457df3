package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stockfarm/internal/auth"
	"stockfarm/internal/farm"
	"stockfarm/internal/guestbook"
	"stockfarm/internal/service"
)

type Handler struct {
	ledger *farm.Ledger
	store  farm.Store
	users  auth.UserStore
	auth   *auth.Service
	prices service.PriceProvider
	guest  *guestbook.Service
	log    *logrus.Logger
}

func NewHandler(ledger *farm.Ledger, store farm.Store, users auth.UserStore, authSvc *auth.Service, prices service.PriceProvider, guest *guestbook.Service, log *logrus.Logger) *Handler {
	return &Handler{ledger: ledger, store: store, users: users, auth: authSvc, prices: prices, guest: guest, log: log}
}

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04", "2006-01-02 15:04:05"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

/* ---- auth ---- */

type credentialsRequest struct {
	Nickname string `json:"nickname" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.auth.Register(c.Request.Context(), req.Nickname, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNicknameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, auth.ErrMissingFields):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.Errorf("register failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": u.ID, "nickname": u.Nickname})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, u, err := h.auth.Login(c.Request.Context(), req.Nickname, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.log.Errorf("login failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "nickname": u.Nickname})
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.auth.Users(c.Request.Context())
	if err != nil {
		h.log.Errorf("list users failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

/* ---- helpers ---- */

// farmOwner resolves which farm the request reads from: the caller's own by
// default, or another user's via ?farm=nickname (read-only visits).
func (h *Handler) farmOwner(c *gin.Context) (string, bool) {
	nick := strings.TrimSpace(c.Query("farm"))
	if nick == "" {
		return auth.UserID(c), true
	}
	u, err := h.users.UserByNickname(c.Request.Context(), nick)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "farm not found"})
		} else {
			h.log.Errorf("resolve farm failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		}
		return "", false
	}
	return u.ID, true
}

func (h *Handler) security(c *gin.Context, ownerID string) (farm.Security, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	sec, err := h.store.SecurityByTicker(c.Request.Context(), ownerID, ticker)
	if err != nil {
		if errors.Is(err, farm.ErrSecurityNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "security not found"})
		} else {
			h.log.Errorf("security lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		}
		return farm.Security{}, false
	}
	return sec, true
}

func limitParam(c *gin.Context, fallback int) int {
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

/* ---- securities ---- */

type securityRequest struct {
	Ticker string `json:"ticker" binding:"required"`
	Name   string `json:"name"`
}

func (h *Handler) UpsertSecurity(c *gin.Context) {
	var req securityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker is required"})
		return
	}
	sec, err := h.store.UpsertSecurity(c.Request.Context(), auth.UserID(c), ticker, strings.TrimSpace(req.Name))
	if err != nil {
		h.log.Errorf("upsert security failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusCreated, sec)
}

func (h *Handler) ListSecurities(c *gin.Context) {
	ownerID, ok := h.farmOwner(c)
	if !ok {
		return
	}
	secs, err := h.store.ListSecurities(c.Request.Context(), ownerID)
	if err != nil {
		h.log.Errorf("list securities failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"securities": secs})
}

/* ---- buy / sell ---- */

type buyRequest struct {
	Date     string `json:"date" binding:"required"`
	Price    string `json:"price" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
	Note     string `json:"note"`
}

func (h *Handler) Buy(c *gin.Context) {
	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	at, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format"})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price format"})
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	sec, err := h.store.UpsertSecurity(c.Request.Context(), auth.UserID(c), ticker, "")
	if err != nil {
		h.log.Errorf("upsert security failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if err := h.ledger.RecordBuy(c.Request.Context(), sec, at, price, req.Quantity, req.Note); err != nil {
		if errors.Is(err, farm.ErrInvalidQuantity) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Errorf("record buy failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "buy failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticker": sec.Ticker, "lots_created": req.Quantity})
}

type sellRequest struct {
	Date     string  `json:"date" binding:"required"`
	Price    string  `json:"price" binding:"required"`
	Quantity int     `json:"quantity" binding:"required"`
	Note     string  `json:"note"`
	LotIDs   []int64 `json:"lot_ids"`
	Rule     string  `json:"rule"`
}

// Sell closes lots either from an explicit id selection or by applying a
// selection rule to the open-lot set. The count check runs before the ledger
// is touched.
func (h *Handler) Sell(c *gin.Context) {
	var req sellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	at, err := parseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format"})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price format"})
		return
	}

	sec, ok := h.security(c, auth.UserID(c))
	if !ok {
		return
	}

	lotIDs := req.LotIDs
	if len(lotIDs) == 0 && req.Rule != "" {
		rule, err := farm.ParseRule(req.Rule)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		open, err := h.ledger.OpenLots(c.Request.Context(), sec)
		if err != nil {
			h.log.Errorf("open lots failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			return
		}
		var current *decimal.Decimal
		if quote, err := h.store.Quote(c.Request.Context(), sec.ID); err == nil && quote != nil {
			current = &quote.Price
		}
		ids := farm.SelectLots(open, rule, current)
		if len(ids) > req.Quantity {
			ids = ids[:req.Quantity]
		}
		lotIDs = ids
	}

	if err := farm.ValidateSelection(req.Quantity, lotIDs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	closed, err := h.ledger.RecordSell(c.Request.Context(), sec, lotIDs, at, price, req.Note)
	if err != nil {
		if errors.Is(err, farm.ErrNoLotsSelected) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Errorf("record sell failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sell failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticker": sec.Ticker, "requested": req.Quantity, "closed": closed})
}

/* ---- lots, batches, report ---- */

func (h *Handler) Lots(c *gin.Context) {
	ownerID, ok := h.farmOwner(c)
	if !ok {
		return
	}
	sec, ok := h.security(c, ownerID)
	if !ok {
		return
	}
	switch c.DefaultQuery("status", "open") {
	case "open":
		var lots []farm.Lot
		var err error
		// ?buy_at= and ?buy_price= narrow the listing to one purchase batch.
		if buyAt, buyPrice := c.Query("buy_at"), c.Query("buy_price"); buyAt != "" && buyPrice != "" {
			at, perr := parseDate(buyAt)
			if perr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid buy_at format"})
				return
			}
			price, perr := decimal.NewFromString(buyPrice)
			if perr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid buy_price format"})
				return
			}
			lots, err = h.ledger.OpenLotsInBatch(c.Request.Context(), sec, at, price)
		} else {
			lots, err = h.ledger.OpenLots(c.Request.Context(), sec)
		}
		if err != nil {
			h.log.Errorf("open lots failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"lots": lots})
	case "closed":
		lots, err := h.ledger.ClosedLots(c.Request.Context(), sec, limitParam(c, 200))
		if err != nil {
			h.log.Errorf("closed lots failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"lots": farm.BuildClosedLotViews(lots)})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be open or closed"})
	}
}

func (h *Handler) Batches(c *gin.Context) {
	ownerID, ok := h.farmOwner(c)
	if !ok {
		return
	}
	sec, ok := h.security(c, ownerID)
	if !ok {
		return
	}
	batches, err := h.ledger.OpenLotBatches(c.Request.Context(), sec)
	if err != nil {
		h.log.Errorf("open lot batches failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

func (h *Handler) Report(c *gin.Context) {
	ownerID, ok := h.farmOwner(c)
	if !ok {
		return
	}
	sec, ok := h.security(c, ownerID)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	open, err := h.ledger.OpenLots(ctx, sec)
	if err != nil {
		h.log.Errorf("open lots failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	batches, err := h.ledger.OpenLotBatches(ctx, sec)
	if err != nil {
		h.log.Errorf("open lot batches failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	quote, err := h.store.Quote(ctx, sec.ID)
	if err != nil {
		h.log.Errorf("quote lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, farm.BuildReport(sec, open, batches, quote, time.Now().UTC()))
}

/* ---- prices ---- */

type priceRequest struct {
	Price string `json:"price" binding:"required"`
	AsOf  string `json:"asof"`
}

func (h *Handler) SetPrice(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price format"})
		return
	}
	asOf := time.Now().UTC().Truncate(time.Second)
	if req.AsOf != "" {
		if asOf, err = parseDate(req.AsOf); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asof format"})
			return
		}
	}
	sec, ok := h.security(c, auth.UserID(c))
	if !ok {
		return
	}
	if err := h.store.SetQuote(c.Request.Context(), sec.ID, price, asOf); err != nil {
		h.log.Errorf("set quote failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticker": sec.Ticker, "price": price, "as_of": asOf})
}

// RefreshPrice fetches the current price from the external source. A fetch
// failure degrades to "price unavailable" and never touches the ledger.
func (h *Handler) RefreshPrice(c *gin.Context) {
	sec, ok := h.security(c, auth.UserID(c))
	if !ok {
		return
	}
	price, asOf, err := h.prices.GetPrice(c.Request.Context(), sec.Ticker)
	if err != nil {
		h.log.Warnf("price fetch for %s failed: %v", sec.Ticker, err)
		if errors.Is(err, service.ErrUnsupportedTicker) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": farm.ErrPriceUnavailable.Error()})
		return
	}
	if err := h.store.SetQuote(c.Request.Context(), sec.ID, price, asOf); err != nil {
		h.log.Errorf("set quote failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticker": sec.Ticker, "price": price, "as_of": asOf})
}

/* ---- transactions, portfolio ---- */

func (h *Handler) Transactions(c *gin.Context) {
	ownerID, ok := h.farmOwner(c)
	if !ok {
		return
	}
	var securityID int64
	if ticker := strings.ToUpper(strings.TrimSpace(c.Query("ticker"))); ticker != "" {
		sec, err := h.store.SecurityByTicker(c.Request.Context(), ownerID, ticker)
		if err != nil {
			if errors.Is(err, farm.ErrSecurityNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "security not found"})
			} else {
				h.log.Errorf("security lookup failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			}
			return
		}
		securityID = sec.ID
	}
	entries, err := h.ledger.Transactions(c.Request.Context(), ownerID, securityID, limitParam(c, 300))
	if err != nil {
		h.log.Errorf("list transactions failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": entries})
}

func (h *Handler) Portfolio(c *gin.Context) {
	ownerID, ok := h.farmOwner(c)
	if !ok {
		return
	}
	summary, err := h.ledger.Summary(c.Request.Context(), ownerID)
	if err != nil {
		h.log.Errorf("portfolio summary failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"realized":       summary.Realized.StringFixed(4),
		"unrealized":     summary.Unrealized.StringFixed(4),
		"total":          summary.Total.StringFixed(4),
		"missing_quotes": summary.MissingQuotes,
	})
}

/* ---- guestbook ---- */

func (h *Handler) guestbookFarm(c *gin.Context) (auth.User, bool) {
	nick := strings.TrimSpace(c.Param("nick"))
	u, err := h.users.UserByNickname(c.Request.Context(), nick)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "farm not found"})
		} else {
			h.log.Errorf("resolve farm failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		}
		return auth.User{}, false
	}
	return u, true
}

func (h *Handler) GuestbookList(c *gin.Context) {
	owner, ok := h.guestbookFarm(c)
	if !ok {
		return
	}
	messages, err := h.guest.List(c.Request.Context(), owner.ID)
	if err != nil {
		h.log.Errorf("guestbook list failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type guestbookRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *Handler) GuestbookPost(c *gin.Context) {
	owner, ok := h.guestbookFarm(c)
	if !ok {
		return
	}
	var req guestbookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.guest.Post(c.Request.Context(), owner.ID, auth.UserID(c), auth.Nickname(c), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, guestbook.ErrEmptyMessage), errors.Is(err, guestbook.ErrOwnFarm):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.Errorf("guestbook post failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		}
		return
	}
	c.JSON(http.StatusCreated, msg)
}
