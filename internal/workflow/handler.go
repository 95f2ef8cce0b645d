package workflow

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-textile/internal/authz"
	"github.com/odyssey-erp/odyssey-textile/internal/inventory"
	"github.com/odyssey-erp/odyssey-textile/internal/ledger"
	"github.com/odyssey-erp/odyssey-textile/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-textile/internal/procurement"
	"github.com/odyssey-erp/odyssey-textile/internal/shared"
)

// HeaderSignature carries the hex HMAC-SHA256 of a webhook body.
const HeaderSignature = "X-Webhook-Signature"

const maxWebhookBytes = 64 << 10

// Handler exposes the orchestrating service over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	binder  *httpx.Binder

	webhookSecret []byte
	webhookLimit  int
}

// HandlerOption customises Handler.
type HandlerOption func(*Handler)

// WithWebhookSecret enables signature checks on payout callbacks.
func WithWebhookSecret(secret string) HandlerOption {
	return func(h *Handler) {
		if secret != "" {
			h.webhookSecret = []byte(secret)
		}
	}
}

// WithWebhookRateLimit caps payout callbacks per minute and source address.
func WithWebhookRateLimit(perMinute int) HandlerOption {
	return func(h *Handler) {
		if perMinute > 0 {
			h.webhookLimit = perMinute
		}
	}
}

// NewHandler builds the HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{logger: logger, service: service, binder: httpx.NewBinder(), webhookLimit: 120}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MountRoutes registers the document endpoints. The router must resolve the
// actor before these handlers run.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-requests", func(r chi.Router) {
		r.Post("/", h.createPR)
		r.Get("/{id}", h.getPR)
		r.Post("/{id}/submit", h.submitPR)
		r.Post("/{id}/approve", h.approvePR)
		r.Post("/{id}/reject", h.rejectPR)
		r.Post("/{id}/convert", h.convertPR)
		r.Post("/{id}/release", h.releasePR)
	})
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Post("/", h.createPO)
		r.Get("/{id}", h.getPO)
		r.Post("/{id}/submit", h.submitPO)
		r.Post("/{id}/confirm", h.confirmPO)
		r.Post("/{id}/cancel", h.cancelPO)
		r.Post("/{id}/receipts", h.createGRN)
	})
	r.Route("/goods-receipts", func(r chi.Router) {
		r.Get("/{id}", h.getGRN)
		r.Put("/{id}/received", h.updateReceived)
		r.Post("/{id}/inspect", h.startInspection)
		r.Put("/{id}/inspection", h.recordInspection)
		r.Post("/{id}/rework", h.reworkGRN)
		r.Post("/{id}/accept", h.acceptGRN)
	})
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.createInvoice)
		r.Get("/{id}", h.getInvoice)
		r.Post("/{id}/issue", h.issueInvoice)
		r.Post("/{id}/cancel", h.cancelInvoice)
		r.Post("/{id}/void", h.voidInvoice)
		r.Post("/{id}/overdue", h.markOverdue)
		r.Post("/{id}/payments", h.registerPayment)
		r.Post("/{id}/settle", h.settleInvoice)
	})
	r.Get("/stock/{productID}", h.stockStatus)
	r.Get("/stock/{productID}/warehouses/{warehouseID}", h.stockLevel)
	r.Get("/ledger/balances/{bucket}", h.accountBalance)
	r.Get("/ledger/trial-balance", h.trialBalance)
}

// MountWebhooks registers the unauthenticated gateway callbacks.
func (h *Handler) MountWebhooks(r chi.Router) {
	limiter := httprate.Limit(h.webhookLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)
	r.With(limiter).Post("/webhooks/payouts", h.payoutWebhook)
}

type resultBody[T any] struct {
	Data     T    `json:"data"`
	Replayed bool `json:"replayed"`
}

func respondResult[T any](w http.ResponseWriter, res Result[T], err error) {
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resultBody[T]{Data: res.Document, Replayed: res.Replayed})
}

func respond[T any](w http.ResponseWriter, status int, data T, err error) {
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, map[string]any{"data": data})
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	actor, ok := authz.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", "actor identity required")
		return authz.Actor{}, false
	}
	return actor, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Validation("invalid %s", name))
		return 0, false
	}
	return id, true
}

func asOfParam(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("as_of"))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, shared.Validation("as_of must be YYYY-MM-DD")
	}
	return t.Add(24*time.Hour - time.Nanosecond), nil
}

func (h *Handler) bind(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := h.binder.Bind(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

// bindOptional accepts an empty body.
func (h *Handler) bindOptional(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return h.bind(w, r, target)
}

func (h *Handler) createPR(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var input CreatePRInput
	if !h.bind(w, r, &input) {
		return
	}
	pr, err := h.service.CreatePurchaseRequest(r.Context(), actor, input)
	respond(w, http.StatusCreated, pr, err)
}

func (h *Handler) getPR(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	pr, err := h.service.GetPurchaseRequest(r.Context(), id)
	respond(w, http.StatusOK, pr, err)
}

func (h *Handler) submitPR(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.service.SubmitPurchaseRequest(r.Context(), actor, id)
	respondResult(w, res, err)
}

func (h *Handler) approvePR(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var input ApprovePRInput
	if !h.bind(w, r, &input) {
		return
	}
	res, err := h.service.ApprovePurchaseRequest(r.Context(), actor, id, input)
	respondResult(w, res, err)
}

type noteBody struct {
	Note string `json:"note" validate:"max=500"`
}

func (h *Handler) rejectPR(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body noteBody
	if !h.bindOptional(w, r, &body) {
		return
	}
	res, err := h.service.RejectPurchaseRequest(r.Context(), actor, id, body.Note)
	respondResult(w, res, err)
}

func (h *Handler) convertPR(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var input ConvertPRInput
	if !h.bind(w, r, &input) {
		return
	}
	res, err := h.service.ConvertPurchaseRequest(r.Context(), actor, id, input)
	respond(w, http.StatusCreated, res, err)
}

func (h *Handler) releasePR(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var input ReleaseInput
	if !h.bind(w, r, &input) {
		return
	}
	item, err := h.service.ReleaseReservation(r.Context(), actor, id, input)
	respond(w, http.StatusOK, item, err)
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var input CreatePOInput
	if !h.bind(w, r, &input) {
		return
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), actor, input)
	respond(w, http.StatusCreated, po, err)
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	view, err := h.service.GetPurchaseOrder(r.Context(), id)
	respond(w, http.StatusOK, view, err)
}

func (h *Handler) submitPO(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.service.SubmitPurchaseOrder(r.Context(), actor, id)
	respondResult(w, res, err)
}

func (h *Handler) confirmPO(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.service.ConfirmPurchaseOrder(r.Context(), actor, id)
	respondResult(w, res, err)
}

func (h *Handler) cancelPO(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body noteBody
	if !h.bindOptional(w, r, &body) {
		return
	}
	res, err := h.service.CancelPurchaseOrder(r.Context(), actor, id, body.Note)
	respondResult(w, res, err)
}

func (h *Handler) createGRN(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var input CreateGRNInput
	if !h.bind(w, r, &input) {
		return
	}
	grn, err := h.service.CreateGoodsReceipt(r.Context(), actor, id, input)
	respond(w, http.StatusCreated, grn, err)
}

func (h *Handler) getGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	grn, err := h.service.GetGoodsReceipt(r.Context(), id)
	respond(w, http.StatusOK, grn, err)
}

type receivedBody struct {
	Lines []procurement.ReceiptLine `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) updateReceived(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body receivedBody
	if !h.bind(w, r, &body) {
		return
	}
	grn, err := h.service.UpdateReceivedQuantities(r.Context(), actor, id, body.Lines)
	respond(w, http.StatusOK, grn, err)
}

func (h *Handler) startInspection(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.service.StartInspection(r.Context(), actor, id)
	respondResult(w, res, err)
}

type inspectionBody struct {
	Results []procurement.InspectionResult `json:"results" validate:"required,min=1,dive"`
}

func (h *Handler) recordInspection(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body inspectionBody
	if !h.bind(w, r, &body) {
		return
	}
	grn, err := h.service.RecordInspection(r.Context(), actor, id, body.Results)
	respond(w, http.StatusOK, grn, err)
}

func (h *Handler) reworkGRN(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.service.ReworkGoodsReceipt(r.Context(), actor, id)
	respondResult(w, res, err)
}

func (h *Handler) acceptGRN(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.service.AcceptGoodsReceipt(r.Context(), actor, id)
	respondResult(w, res, err)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var input CreateInvoiceInput
	if !h.bind(w, r, &input) {
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), actor, input)
	respond(w, http.StatusCreated, inv, err)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	respond(w, http.StatusOK, inv, err)
}

func (h *Handler) issueInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.service.IssueInvoice(r.Context(), actor, id)
	respondResult(w, res, err)
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.service.CancelInvoice(r.Context(), actor, id)
	respondResult(w, res, err)
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.service.VoidInvoice(r.Context(), actor, id)
	respondResult(w, res, err)
}

func (h *Handler) markOverdue(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.MarkInvoiceOverdue(r.Context(), actor, id, asOf)
	respondResult(w, res, err)
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var input PaymentInput
	if !h.bind(w, r, &input) {
		return
	}
	p, err := h.service.RegisterPayment(r.Context(), actor, id, input)
	respond(w, http.StatusCreated, p, err)
}

func (h *Handler) settleInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var input PaymentInput
	if !h.bind(w, r, &input) {
		return
	}
	res, err := h.service.SettleInvoice(r.Context(), actor, id, input)
	respondResult(w, res, err)
}

func (h *Handler) stockStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	status, err := h.service.StockStatus(r.Context(), id)
	respond(w, http.StatusOK, status, err)
}

func (h *Handler) stockLevel(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	warehouseID, ok := pathID(w, r, "warehouseID")
	if !ok {
		return
	}
	level, err := h.service.StockLevel(r.Context(), inventory.Key{ProductID: productID, WarehouseID: warehouseID})
	respond(w, http.StatusOK, level, err)
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bucket := ledger.Bucket(chi.URLParam(r, "bucket"))
	b, err := h.service.AccountBalance(r.Context(), bucket, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"bucket": bucket, "account_id": b.AccountID, "code": b.Code, "name": b.Name,
			"debit": b.Debit, "credit": b.Credit, "balance": b.Net(),
		},
	})
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.TrialBalance(r.Context(), asOf)
	respond(w, http.StatusOK, rows, err)
}

func (h *Handler) payoutWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "")
		return
	}
	if !h.signed(r.Header.Get(HeaderSignature), body) {
		h.logger.Warn("payout webhook signature mismatch", slog.String("remote", r.RemoteAddr))
		httpx.Problem(w, http.StatusUnauthorized, "Invalid Signature", "")
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	var n PayoutNotification
	if !h.bind(w, r, &n) {
		return
	}
	res, err := h.service.HandlePayoutNotification(r.Context(), n)
	if err != nil {
		h.logger.Warn("payout webhook", slog.String("reference", n.Reference), slog.String("status", n.Status), slog.Any("error", err))
	}
	respondResult(w, res, err)
}

func (h *Handler) signed(signature string, body []byte) bool {
	if len(h.webhookSecret) == 0 {
		return true
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.webhookSecret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
