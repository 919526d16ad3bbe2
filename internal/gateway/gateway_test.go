// internal/gateway/gateway_test.go
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func airtimeRequest() Request {
	return Request{
		Operation: OperationAirtime,
		Reference: "CYR-AIR-0123456789AB",
		Amount:    decimal.RequireFromString("25.50"),
		Target:    "+27831234567",
		Network:   "cell c",
	}
}

func TestHTTPGateway_Purchase(t *testing.T) {
	var got billRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bill/pay", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"reference":"PSK-1"}}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL+"/", "sk_test", time.Second, discardLogger())
	resp, err := g.Purchase(context.Background(), airtimeRequest())
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "PSK-1", resp.Reference)
	assert.Contains(t, resp.Raw, "PSK-1")
	assert.Equal(t, int64(2550), got.Amount)
	assert.Equal(t, "cellc", got.ServiceType)
	assert.Equal(t, "airtime", got.Type)
	assert.Equal(t, "CYR-AIR-0123456789AB", got.Reference)
}

func TestHTTPGateway_Declined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"invalid customer"}`))
	}))
	defer srv.Close()

	resp, err := NewHTTPGateway(srv.URL, "sk", time.Second, discardLogger()).Purchase(context.Background(), airtimeRequest())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "invalid customer", resp.Message)
}

func TestHTTPGateway_ServerErrorAndTimeout(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	_, err := NewHTTPGateway(failing.URL, "sk", time.Second, discardLogger()).Purchase(context.Background(), airtimeRequest())
	assert.ErrorIs(t, err, ErrUnavailable)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	_, err = NewHTTPGateway(slow.URL, "sk", 50*time.Millisecond, discardLogger()).Purchase(context.Background(), airtimeRequest())
	assert.Error(t, err)
}

func TestHTTPGateway_UnknownNetwork(t *testing.T) {
	req := airtimeRequest()
	req.Network = "orange"
	_, err := NewHTTPGateway("http://127.0.0.1:1", "sk", time.Second, discardLogger()).Purchase(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestSimulatedGateway(t *testing.T) {
	g := NewSimulatedGateway()
	req := Request{Operation: OperationElectricity, Reference: "CYR-ELEC-AAAA", Amount: decimal.NewFromInt(100), Target: "12345678901"}

	first, err := g.Purchase(context.Background(), req)
	require.NoError(t, err)
	second, err := g.Purchase(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, first.Success)
	assert.Equal(t, first.Reference, second.Reference)
	assert.Regexp(t, `^\d{4}-\d{4}-\d{4}-\d{4}-\d{4}$`, first.Token)

	airtime, err := g.Purchase(context.Background(), airtimeRequest())
	require.NoError(t, err)
	assert.Empty(t, airtime.Token)
	assert.NotEqual(t, first.Reference, airtime.Reference)
}

type failingGateway struct{ calls int }

func (f *failingGateway) Purchase(context.Context, Request) (*Response, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func TestBreakerGateway_OpensAfterFailures(t *testing.T) {
	next := &failingGateway{}
	g := NewBreakerGateway("test", next, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute, HalfOpenRequests: 1}, discardLogger())

	for i := 0; i < 2; i++ {
		_, err := g.Purchase(context.Background(), airtimeRequest())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, "open", g.State())

	_, err := g.Purchase(context.Background(), airtimeRequest())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, next.calls)
}

func TestBreakerGateway_PassesResponses(t *testing.T) {
	g := NewBreakerGateway("sim", NewSimulatedGateway(), DefaultBreakerSettings(), discardLogger())
	resp, err := g.Purchase(context.Background(), airtimeRequest())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "closed", g.State())
}
