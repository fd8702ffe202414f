package vendors

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/oyunkod/oyunkod-backend/pkg/db/models"
	"github.com/oyunkod/oyunkod-backend/pkg/enums"
)

// simulator is a deterministic in-memory stand-in for the znet adapter,
// used in test environments behind the znet_simulate flag. Orders are
// accepted as sent and complete on the second status lookup.
type simulator struct {
	kind enums.ProviderType

	mu     sync.Mutex
	polled map[string]int
}

// NewSimulator builds a canned adapter reporting as the given provider type.
func NewSimulator(kind enums.ProviderType) Adapter {
	return &simulator{
		kind:   kind,
		polled: make(map[string]int),
	}
}

func (s *simulator) Kind() enums.ProviderType {
	return s.kind
}

func (s *simulator) PlaceOrder(_ context.Context, _ models.Integration, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	return &PlaceOrderResult{
		ExternalOrderID: "SIM-" + req.Reference,
		Status:          enums.NormalizedStatusSent,
		RawStatus:       "simulated",
		Message:         "simulated order accepted",
	}, nil
}

func (s *simulator) FetchStatus(_ context.Context, _ models.Integration, reference string) (*StatusResult, error) {
	s.mu.Lock()
	s.polled[reference]++
	polls := s.polled[reference]
	s.mu.Unlock()

	if polls < 2 {
		return &StatusResult{
			Status:    enums.NormalizedStatusProcessing,
			RawStatus: "simulated",
		}, nil
	}
	return &StatusResult{
		Status:    enums.NormalizedStatusCompleted,
		RawStatus: "simulated",
		PinCode:   fmt.Sprintf("SIM-PIN-%s", reference),
	}, nil
}

func (s *simulator) FetchBalance(context.Context, models.Integration) (*Balance, error) {
	return &Balance{Amount: decimal.NewFromInt(1000), Currency: "TRY"}, nil
}

func (s *simulator) ListProducts(context.Context, models.Integration) ([]Product, error) {
	return []Product{
		{ExternalID: "sim-1", Name: "Simulated 100", Cost: decimal.NewFromInt(10), Currency: "TRY"},
		{ExternalID: "sim-2", Name: "Simulated 250", Cost: decimal.NewFromInt(25), Currency: "TRY"},
	}, nil
}
