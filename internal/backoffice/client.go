package backoffice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/resilience"
	"github.com/noah-isme/backend-pos/internal/settlement"
	"github.com/noah-isme/backend-pos/internal/shift"
)

// ErrNoActiveShift is returned when the back office has no open shift for the cashier.
var ErrNoActiveShift = errors.New("no active shift on record")

// ShiftRecord is the persisted shift state as the back office reports it.
type ShiftRecord struct {
	ID              string             `json:"id"`
	BranchID        string             `json:"branchId"`
	UserID          string             `json:"userId"`
	StartingBalance pricing.Money      `json:"startingBalance"`
	StartedAt       time.Time          `json:"startedAt"`
	Sales           []shift.SaleRecord `json:"sales"`
}

// ClosedShift is the back office response to a shift close.
type ClosedShift struct {
	ID              string        `json:"id"`
	EndedAt         time.Time     `json:"endedAt"`
	ActualCashAtEnd pricing.Money `json:"actualCashAtEnd"`
	ExpectedCash    pricing.Money `json:"expectedCash"`
	Variance        pricing.Money `json:"variance"`
}

// CommittedSale is the server-acknowledged sale record.
type CommittedSale struct {
	ID        string `json:"id"`
	Reference string `json:"reference"`
}

// Store is the persistence API contract the orchestrator depends on.
type Store interface {
	CreateSale(ctx context.Context, shiftID string, sale settlement.FinalizedSale) (CommittedSale, error)
	OpenShift(ctx context.Context, branchID, userID string, startingBalance pricing.Money) (ShiftRecord, error)
	CloseShift(ctx context.Context, shiftID string, actualCashAtEnd pricing.Money) (ClosedShift, error)
	ActiveShift(ctx context.Context, branchID, userID string) (ShiftRecord, error)
}

// Client talks to the back-office persistence API over REST.
type Client struct {
	BaseURL string
	HTTP    resilience.Client
}

// CreateSale persists a finalized sale. The sale reference is sent as the
// idempotency key so a retried request cannot create a duplicate record.
func (c Client) CreateSale(ctx context.Context, shiftID string, sale settlement.FinalizedSale) (CommittedSale, error) {
	body := map[string]any{
		"reference": sale.Reference,
		"shiftId":   shiftID,
		"lines":     sale.Lines,
		"totals":    sale.Totals,
		"method":    sale.Method,
		"details":   sale.Details,
		"soldAt":    sale.CreatedAt,
	}
	var out struct {
		Data CommittedSale `json:"data"`
	}
	headers := map[string]string{"Idempotency-Key": sale.Reference}
	if err := c.post(ctx, "/api/sales", body, headers, &out); err != nil {
		return CommittedSale{}, fmt.Errorf("create sale: %w", err)
	}
	return out.Data, nil
}

// OpenShift registers a new cash-drawer session.
func (c Client) OpenShift(ctx context.Context, branchID, userID string, startingBalance pricing.Money) (ShiftRecord, error) {
	body := map[string]any{
		"branchId":        branchID,
		"userId":          userID,
		"startingBalance": startingBalance,
	}
	var out struct {
		Data ShiftRecord `json:"data"`
	}
	if err := c.post(ctx, "/api/shifts", body, nil, &out); err != nil {
		return ShiftRecord{}, fmt.Errorf("open shift: %w", err)
	}
	return out.Data, nil
}

// CloseShift records the counted drawer amount and closes the shift.
func (c Client) CloseShift(ctx context.Context, shiftID string, actualCashAtEnd pricing.Money) (ClosedShift, error) {
	body := map[string]any{"actualCashAtEnd": actualCashAtEnd}
	var out struct {
		Data ClosedShift `json:"data"`
	}
	path := fmt.Sprintf("/api/shifts/%s/close", url.PathEscape(shiftID))
	if err := c.post(ctx, path, body, nil, &out); err != nil {
		return ClosedShift{}, fmt.Errorf("close shift: %w", err)
	}
	return out.Data, nil
}

// ActiveShift fetches the authoritative active shift for a cashier, used to
// reinitialise the engine after a reload.
func (c Client) ActiveShift(ctx context.Context, branchID, userID string) (ShiftRecord, error) {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ShiftRecord{}, errors.New("backoffice client not configured")
	}
	endpoint := fmt.Sprintf("%s/api/shifts/active?branchId=%s&userId=%s",
		strings.TrimRight(c.BaseURL, "/"), url.QueryEscape(branchID), url.QueryEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ShiftRecord{}, fmt.Errorf("active shift: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return ShiftRecord{}, fmt.Errorf("active shift: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ShiftRecord{}, ErrNoActiveShift
	}
	if resp.StatusCode != http.StatusOK {
		return ShiftRecord{}, fmt.Errorf("active shift: unexpected status %s", resp.Status)
	}
	var out struct {
		Data ShiftRecord `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ShiftRecord{}, fmt.Errorf("active shift: decode: %w", err)
	}
	return out.Data, nil
}

// Ping probes the back office for readiness checks.
func (c Client) Ping(ctx context.Context) error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("backoffice client not configured")
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/api/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("backoffice: unexpected status %s", resp.Status)
	}
	return nil
}

func (c Client) post(ctx context.Context, path string, body any, headers map[string]string, out any) error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("backoffice client not configured")
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
