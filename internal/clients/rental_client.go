package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"rentalnexus/internal/rental"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrCircuitOpen is returned while the breaker rejects calls to a failing
// rental service.
var ErrCircuitOpen = errors.New("rental service unavailable: circuit open")

// APIError is a non-2xx answer from the rental service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rental api %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap exposes the domain error matching Code, so callers can test
// errors.Is(err, rental.ErrScheduleConflict) across the wire.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case string(rental.KindOccupiedToday):
		return rental.ErrOccupiedToday
	case string(rental.KindScheduleConflict):
		return rental.ErrScheduleConflict
	case string(rental.KindNotCurrentlyRented):
		return rental.ErrNotCurrentlyRented
	case string(rental.KindAlreadyReturned):
		return rental.ErrAlreadyReturned
	case "NOT_FOUND":
		return rental.ErrItemNotFound
	case "CONTENTION":
		return rental.ErrContention
	default:
		return nil
	}
}

// serverFault reports whether err says the service itself is unhealthy.
// Business rejections and bad requests do not count against the breaker.
func serverFault(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError || apiErr.Status == http.StatusTooManyRequests
	}
	return err != nil
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

type RentalClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*envelope]
	logger  *slog.Logger
}

func NewRentalClient(baseURL string, timeout time.Duration, bc BreakerConfig, logger *slog.Logger) *RentalClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &RentalClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*envelope](gobreaker.Settings{
		Name:        "rental-service",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.FailureThreshold
		},
		IsSuccessful: func(err error) bool { return !serverFault(err) },
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return c
}

// BreakerState reports the breaker's current state.
func (c *RentalClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *RentalClient) CreateItem(ctx context.Context, name, description string, pricePerDay float64) (*rental.Item, error) {
	var item rental.Item
	if _, err := c.call(ctx, http.MethodPost, "/items", map[string]any{
		"itemName":    name,
		"description": description,
		"pricePerDay": pricePerDay,
	}, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *RentalClient) GetItem(ctx context.Context, id uuid.UUID) (*rental.Item, error) {
	var item rental.Item
	if _, err := c.call(ctx, http.MethodGet, "/items/"+id.String(), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// SearchItems returns the matching items. No match is an empty result, not an
// error.
func (c *RentalClient) SearchItems(ctx context.Context, criteria rental.SearchCriteria) ([]*rental.Item, error) {
	q := url.Values{}
	for k, v := range map[string]string{
		"itemName": criteria.ItemName,
		"minPrice": criteria.MinPrice,
		"maxPrice": criteria.MaxPrice,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	path := "/items"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var items []*rental.Item
	_, err := c.call(ctx, http.MethodGet, path, nil, &items)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return []*rental.Item{}, nil
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

// RentItem returns the rental details and the service's message, which tells
// an immediate rental from a scheduled one.
func (c *RentalClient) RentItem(ctx context.Context, req rental.RentRequest) (*rental.RentalDetails, string, error) {
	var out struct {
		RentalDetails rental.RentalDetails `json:"rentalDetails"`
	}
	msg, err := c.call(ctx, http.MethodPut, "/items/rent", req, &out)
	if err != nil {
		return nil, "", err
	}
	return &out.RentalDetails, msg, nil
}

func (c *RentalClient) ReturnItem(ctx context.Context, id uuid.UUID) (*rental.ReturnDetails, error) {
	var out struct {
		ReturnDetails rental.ReturnDetails `json:"returnDetails"`
	}
	if _, err := c.call(ctx, http.MethodPut, "/items/return", rental.ReturnRequest{ID: id.String()}, &out); err != nil {
		return nil, err
	}
	return &out.ReturnDetails, nil
}

// Availability fetches free windows; empty from and to use the service
// defaults.
func (c *RentalClient) Availability(ctx context.Context, id uuid.UUID, from, to string) (*rental.AvailabilityReport, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	path := fmt.Sprintf("/items/%s/availability", id)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var report rental.AvailabilityReport
	if _, err := c.call(ctx, http.MethodGet, path, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// call sends one request through the breaker and decodes the envelope's data
// into out. It returns the envelope message.
func (c *RentalClient) call(ctx context.Context, method, path string, body, out any) (string, error) {
	env, err := c.breaker.Execute(func() (*envelope, error) {
		return c.do(ctx, method, path, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrCircuitOpen
	}
	if err != nil {
		return "", err
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return env.Message, nil
}

func (c *RentalClient) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return nil, &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	return &env, nil
}
