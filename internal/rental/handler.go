package rental

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"rentalnexus/internal/interval"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Response is the envelope every rental endpoint answers with.
type Response struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes mounts the rental endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.Post("/", h.handleCreateItem)
		r.Get("/", h.handleSearchItems)
		r.Put("/rent", h.handleRentItem)
		r.Put("/return", h.handleReturnItem)
		r.Get("/{id}", h.handleGetItem)
		r.Get("/{id}/availability", h.handleAvailability)
	})
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, invalid("body", "Invalid request body: %v", err))
		return
	}

	item, err := h.service.CreateItem(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Data: item, Message: "Item created successfully"})
}

func (h *Handler) handleSearchItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.service.SearchItems(r.Context(), SearchCriteria{
		ItemName: q.Get("itemName"),
		MinPrice: q.Get("minPrice"),
		MaxPrice: q.Get("maxPrice"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(items) == 0 {
		writeJSON(w, http.StatusNotFound, Response{Data: []*Item{}, Message: "No items found matching criteria"})
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: items, Message: "Items found"})
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: item, Message: "Item found"})
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	report, err := h.service.Availability(r.Context(), id, queryDate(q.Get("from")), queryDate(q.Get("to")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: report, Message: "Availability computed"})
}

func (h *Handler) handleRentItem(w http.ResponseWriter, r *http.Request) {
	var req RentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, invalid("body", "Invalid request body: %v", err))
		return
	}

	details, err := h.service.RentItem(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msg := "Item rental scheduled successfully"
	if details.Immediate {
		msg = "Item rented successfully"
	}
	writeJSON(w, http.StatusOK, Response{
		Data:    map[string]any{"rentalDetails": details},
		Message: msg,
	})
}

func (h *Handler) handleReturnItem(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, invalid("body", "Invalid request body: %v", err))
		return
	}

	details, err := h.service.ReturnItem(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Data:    map[string]any{"returnDetails": details},
		Message: "Item returned successfully",
	})
}

func (h *Handler) itemID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, Response{Message: "Item not found", Code: "NOT_FOUND"})
		return uuid.Nil, false
	}
	return id, true
}

// queryDate accepts either a date string or all-digit epoch milliseconds.
func queryDate(raw string) DateInput {
	raw = strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && len(raw) > len("20060102") {
		return DateMillis(ms)
	}
	return DateText(raw)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	var rej *RejectionError
	switch {
	case errors.As(err, &rej):
		msg = rej.Message
	case errors.Is(err, ErrItemNotFound):
		msg = "Item not found"
	case status == http.StatusInternalServerError:
		h.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "Internal server error"
	}

	resp := Response{Message: msg, Code: code}
	if rej != nil && rej.Window != nil {
		resp.Data = map[string]interval.Range{"conflict": *rej.Window}
	}
	writeJSON(w, status, resp)
}

// StatusFor maps a service error to its HTTP status and machine-readable code.
func StatusFor(err error) (int, string) {
	var (
		rej *RejectionError
		ve  *ValidationError
	)
	switch {
	case errors.As(err, &rej):
		return http.StatusBadRequest, string(rej.Kind)
	case errors.As(err, &ve):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, ErrItemNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ErrContention):
		return http.StatusConflict, "CONTENTION"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
