package rental_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"rentalnexus/internal/rental"
	"rentalnexus/internal/storage/memory"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

func newTestRouter(today string) http.Handler {
	svc := rental.NewService(memory.NewStore(), rental.FixedClock(today), rental.ULIDGenerator{}, discardLogger())
	r := chi.NewRouter()
	rental.NewHandler(svc, discardLogger()).Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestHandler_RentalFlow(t *testing.T) {
	h := newTestRouter("2024-06-01")

	rec, env := do(t, h, http.MethodPost, "/items", map[string]any{
		"itemName": "Tent", "description": "Four person tent", "pricePerDay": 12.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Item created successfully", env.Message)

	var item struct {
		ID         string `json:"id"`
		IsRented   bool   `json:"isRented"`
		IsReturned bool   `json:"isReturned"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.False(t, item.IsRented)
	assert.True(t, item.IsReturned)

	rec, env = do(t, h, http.MethodPut, "/items/rent", map[string]any{"id": item.ID, "rentalEnd": "2024-06-05"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Item rented successfully", env.Message)
	assert.Contains(t, string(env.Data), `"rentalDetails"`)

	rec, env = do(t, h, http.MethodPut, "/items/rent", map[string]any{
		"id": item.ID, "rentalStart": "2024-07-01", "rentalEnd": "2024-07-05",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Item rental scheduled successfully", env.Message)

	rec, env = do(t, h, http.MethodPut, "/items/rent", map[string]any{
		"id": item.ID, "rentalStart": "2024-07-03", "rentalEnd": "2024-07-10",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "SCHEDULE_CONFLICT", env.Code)
	assert.Equal(t, "Item is already scheduled for rental during this period", env.Message)
	assert.Contains(t, string(env.Data), `"conflict"`)

	rec, env = do(t, h, http.MethodPut, "/items/rent", map[string]any{"id": item.ID, "rentalEnd": "2024-06-03"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "OCCUPIED_TODAY", env.Code)

	rec, env = do(t, h, http.MethodGet, fmt.Sprintf("/items/%s/availability?to=2024-07-10", item.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report rental.AvailabilityReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.NotNil(t, report.AvailableFrom)
	assert.Equal(t, "2024-06-05", report.AvailableFrom.String())

	rec, env = do(t, h, http.MethodPut, "/items/return", map[string]any{"id": item.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Item returned successfully", env.Message)
	assert.Contains(t, string(env.Data), `"returnDate":"2024-06-01"`)

	rec, env = do(t, h, http.MethodPut, "/items/return", map[string]any{"id": item.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NOT_CURRENTLY_RENTED", env.Code)
	assert.Equal(t, "Item is not currently rented", env.Message)
}

func TestHandler_Search(t *testing.T) {
	h := newTestRouter("2024-06-01")
	do(t, h, http.MethodPost, "/items", map[string]any{"itemName": "Kayak", "description": "Two seats", "pricePerDay": "40"})

	rec, env := do(t, h, http.MethodGet, "/items?itemName=kay", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Items found", env.Message)

	rec, env = do(t, h, http.MethodGet, "/items?itemName=bike", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No items found matching criteria", env.Message)
	assert.JSONEq(t, `[]`, string(env.Data))

	rec, env = do(t, h, http.MethodGet, "/items?minPrice=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", env.Code)
}

func TestHandler_NotFoundAndValidation(t *testing.T) {
	h := newTestRouter("2024-06-01")

	rec, env := do(t, h, http.MethodGet, "/items/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Item not found", env.Message)

	rec, env = do(t, h, http.MethodPut, "/items/rent", map[string]any{
		"id": "2b1d4a3e-7a0c-4f5e-9d55-0e4f6a7b8c9d", "rentalEnd": "2024-06-05",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Code)

	rec, env = do(t, h, http.MethodPut, "/items/rent", map[string]any{"rentalEnd": "2024-06-05"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid id - must provide a valid item id", env.Message)

	rec, _ = do(t, h, http.MethodPost, "/items", map[string]any{"itemName": "Kayak"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_BrokenClockIsInternal(t *testing.T) {
	h := newTestRouter("not-a-date")
	_, env := do(t, h, http.MethodPost, "/items", map[string]any{"itemName": "Kayak", "description": "Two seats", "pricePerDay": 40})

	var item struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &item))

	rec, env := do(t, h, http.MethodPut, "/items/return", map[string]any{"id": item.ID})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL", env.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{rental.ErrOccupiedToday, http.StatusBadRequest, "OCCUPIED_TODAY"},
		{fmt.Errorf("wrapped: %w", rental.ErrAlreadyReturned), http.StatusBadRequest, "ALREADY_RETURNED"},
		{rental.ErrItemNotFound, http.StatusNotFound, "NOT_FOUND"},
		{rental.ErrContention, http.StatusConflict, "CONTENTION"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		status, code := rental.StatusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
