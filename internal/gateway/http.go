// internal/gateway/http.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// serviceTypes maps wallet network names to the provider's biller codes.
var serviceTypes = map[string]string{
	"mtn":     "mtn",
	"vodacom": "vodacom",
	"cell c":  "cellc",
	"telkom":  "telkom",
}

// HTTPGateway talks to a PayStack-style bills API.
type HTTPGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
	logger    *slog.Logger
}

// NewHTTPGateway returns a client for baseURL. timeout bounds each call.
func NewHTTPGateway(baseURL, secretKey string, timeout time.Duration, logger *slog.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type billRequest struct {
	Type        string `json:"type"`
	Amount      int64  `json:"amount"` // cents
	Customer    string `json:"customer"`
	ServiceType string `json:"service_type,omitempty"`
	Bundle      string `json:"bundle,omitempty"`
	Reference   string `json:"reference"`
	Currency    string `json:"currency"`
}

type billResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference string `json:"reference"`
		Token     string `json:"token"`
	} `json:"data"`
}

// Purchase posts the request to /bill/pay.
func (g *HTTPGateway) Purchase(ctx context.Context, req Request) (*Response, error) {
	payload := billRequest{
		Type:      string(req.Operation),
		Amount:    req.Amount.Shift(2).Round(0).IntPart(),
		Customer:  req.Target,
		Bundle:    req.Bundle,
		Reference: req.Reference,
		Currency:  "ZAR",
	}
	switch req.Operation {
	case OperationAirtime, OperationData:
		code, ok := serviceTypes[strings.ToLower(req.Network)]
		if !ok {
			return nil, fmt.Errorf("%w: network %q", ErrUnsupportedOperation, req.Network)
		}
		payload.ServiceType = code
	case OperationElectricity, OperationBill, OperationWithdrawal:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, req.Operation)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/bill/pay", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", req.Operation, req.Reference, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded billResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("gateway: failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	out := &Response{
		Success:   decoded.Status && resp.StatusCode < http.StatusBadRequest,
		Reference: decoded.Data.Reference,
		Message:   decoded.Message,
		Token:     decoded.Data.Token,
		Raw:       string(raw),
	}
	if !out.Success {
		g.logger.Warn("gateway declined purchase",
			"operation", req.Operation, "reference", req.Reference, "status", resp.StatusCode, "message", decoded.Message)
	}
	return out, nil
}
