// internal/gateway/simulated.go
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var tokenNamespace = uuid.MustParse("6f1d8e0a-3c59-4b7e-9a0d-2f4c8b1e7a55")

// SimulatedGateway approves every purchase without calling out. Its
// references and electricity tokens are derived from the request reference,
// so a replayed request gets the same answer.
type SimulatedGateway struct{}

// NewSimulatedGateway returns a gateway for local runs and tests.
func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

func (SimulatedGateway) Purchase(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.NewSHA1(tokenNamespace, []byte(req.Reference))
	resp := &Response{
		Success:   true,
		Reference: "SIM-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:16]),
		Message:   "approved",
	}
	if req.Operation == OperationElectricity {
		resp.Token = electricityToken(id)
	}

	raw, err := json.Marshal(map[string]string{
		"reference": resp.Reference,
		"operation": string(req.Operation),
		"token":     resp.Token,
	})
	if err != nil {
		return nil, err
	}
	resp.Raw = string(raw)
	return resp, nil
}

// electricityToken renders 20 digits in groups of four.
func electricityToken(id uuid.UUID) string {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		fmt.Fprintf(&b, "%d", id[i%len(id)]%10)
	}
	return b.String()
}
