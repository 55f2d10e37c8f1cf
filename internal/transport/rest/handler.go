// Package rest provides the HTTP API of the stock service.
package rest

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	perrors "github.com/abgdnv/shelfstock/internal/errors"
	"github.com/abgdnv/shelfstock/internal/service"
	"github.com/abgdnv/shelfstock/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const (
	defaultLimit = 20
	maxLimit     = 1000
)

type Handler struct {
	service      service.StockService
	validate     *validator.Validate
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewHandler creates the handler. Request bodies larger than maxBodyBytes are rejected.
func NewHandler(service service.StockService, maxBodyBytes int64, logger *slog.Logger) *Handler {
	return &Handler{
		service:      service,
		validate:     validator.New(),
		logger:       logger.With("component", "rest"),
		maxBodyBytes: maxBodyBytes,
	}
}

// RegisterRoutes registers the HTTP routes of the stock service.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.FindProducts)
			r.Post("/", h.CreateProduct)
			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", h.FindProduct)
				r.Get("/price", h.Quote)
				r.Get("/discounts", h.FindActiveDiscounts)
				r.Get("/batches", h.FindBatches)
			})
		})
		r.Post("/batches", h.ReceiveBatch)
		r.Post("/discounts", h.CreateDiscount)
		r.Route("/shelf/{code}", func(r chi.Router) {
			r.Get("/", h.ShelfStatus)
			r.Post("/replenish", h.Replenish)
			r.Post("/deduct", h.Deduct)
		})
		r.Post("/sales", h.Sell)
	})

	r.Get("/healthz", h.HealthCheck)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var dto service.ProductCreateDto
	if !web.DecodeValid(w, r, h.logger, h.validate, h.maxBodyBytes, &dto) {
		return
	}
	created, err := h.service.CreateProduct(r.Context(), dto)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to create product")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusCreated, created)
}

func (h *Handler) FindProducts(w http.ResponseWriter, r *http.Request) {
	limit, ok := web.ParseValidateBetween(r, w, h.logger, "limit", 1, maxLimit, defaultLimit)
	if !ok {
		return
	}
	offset, ok := web.ParseValidateGte(r, w, h.logger, "offset", 0, 0)
	if !ok {
		return
	}
	list, err := h.service.FindProducts(r.Context(), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to fetch products")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, list)
}

func (h *Handler) FindProduct(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	found, err := h.service.FindProduct(r.Context(), code)
	if err != nil {
		h.respondServiceError(w, r, err, fmt.Sprintf("Failed to retrieve product %s", code))
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, found)
}

// Quote prices ?quantity=N units (default 1) of a product without selling them.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	quantity, ok := web.ParseValidateGte(r, w, h.logger, "quantity", 1, 1)
	if !ok {
		return
	}
	quote, err := h.service.Quote(r.Context(), code, quantity)
	if err != nil {
		h.respondServiceError(w, r, err, fmt.Sprintf("Failed to price product %s", code))
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, quote)
}

func (h *Handler) FindActiveDiscounts(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	list, err := h.service.FindActiveDiscounts(r.Context(), code)
	if err != nil {
		h.respondServiceError(w, r, err, fmt.Sprintf("Failed to fetch discounts of %s", code))
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, list)
}

func (h *Handler) FindBatches(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	list, err := h.service.FindBatches(r.Context(), code)
	if err != nil {
		h.respondServiceError(w, r, err, fmt.Sprintf("Failed to fetch batches of %s", code))
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, list)
}

func (h *Handler) ReceiveBatch(w http.ResponseWriter, r *http.Request) {
	var dto service.BatchReceiveDto
	if !web.DecodeValid(w, r, h.logger, h.validate, h.maxBodyBytes, &dto) {
		return
	}
	created, err := h.service.ReceiveBatch(r.Context(), dto)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to receive batch")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusCreated, created)
}

func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	var dto service.DiscountCreateDto
	if !web.DecodeValid(w, r, h.logger, h.validate, h.maxBodyBytes, &dto) {
		return
	}
	created, err := h.service.CreateDiscount(r.Context(), dto)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to create discount")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusCreated, created)
}

func (h *Handler) ShelfStatus(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	status, err := h.service.ShelfStatus(r.Context(), code)
	if err != nil {
		h.respondServiceError(w, r, err, fmt.Sprintf("Failed to read shelf of %s", code))
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, status)
}

func (h *Handler) Replenish(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var dto service.QuantityDto
	if !web.DecodeValid(w, r, h.logger, h.validate, h.maxBodyBytes, &dto) {
		return
	}
	res, err := h.service.Replenish(r.Context(), code, dto.Quantity)
	if err != nil {
		h.respondServiceError(w, r, err, fmt.Sprintf("Failed to replenish %s", code))
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, res)
}

func (h *Handler) Deduct(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var dto service.QuantityDto
	if !web.DecodeValid(w, r, h.logger, h.validate, h.maxBodyBytes, &dto) {
		return
	}
	res, err := h.service.Deduct(r.Context(), code, dto.Quantity)
	if err != nil {
		h.respondServiceError(w, r, err, fmt.Sprintf("Failed to deduct %s", code))
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, res)
}

func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	var dto service.SaleDto
	if !web.DecodeValid(w, r, h.logger, h.validate, h.maxBodyBytes, &dto) {
		return
	}
	bill, err := h.service.Sell(r.Context(), dto)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to complete sale")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusCreated, bill)
}

// HealthCheck is a simple liveness endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// respondServiceError maps service errors to HTTP statuses. Domain errors carry their own message;
// anything else is logged and answered with fallback.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, perrors.ErrInvalidQuantity),
		errors.Is(err, perrors.ErrInvalidProductCode),
		errors.Is(err, perrors.ErrInvalidArgument):
		h.logger.WarnContext(r.Context(), "Invalid request", "error", err)
		web.RespondError(w, h.logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, perrors.ErrProductNotFound),
		errors.Is(err, perrors.ErrBatchNotFound):
		h.logger.WarnContext(r.Context(), "Not found", "error", err)
		web.RespondError(w, h.logger, http.StatusNotFound, err.Error())
	case errors.Is(err, perrors.ErrProductAlreadyExists),
		errors.Is(err, perrors.ErrInsufficientShelfStock):
		h.logger.WarnContext(r.Context(), "Conflict", "error", err)
		web.RespondError(w, h.logger, http.StatusConflict, err.Error())
	case errors.Is(err, perrors.ErrDataUnavailable):
		h.logger.ErrorContext(r.Context(), "Storage unavailable", "error", err)
		web.RespondError(w, h.logger, http.StatusServiceUnavailable, "Storage is temporarily unavailable")
	default:
		h.logger.ErrorContext(r.Context(), fallback, "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, fallback)
	}
}
