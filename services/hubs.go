package services

import (
	"context"
	"fmt"

	"vendor-desk/gateway"
	"vendor-desk/models"
	"vendor-desk/utils"
)

// HubGateway is the slice of the remote gateway the hub search needs.
type HubGateway interface {
	NearBy(ctx context.Context, q gateway.NearbyQuery) ([]map[string]any, error)
	InsertHubRequest(ctx context.Context, r gateway.HubRequest) error
}

// HubService searches nearby hubs and sends supply requests to them.
type HubService struct {
	gw          HubGateway
	normalizer  *Normalizer
	vendorPhone string
	logger      *utils.Logger
	observer    FailureObserver
}

func NewHubService(gw HubGateway, normalizer *Normalizer, vendorPhone string, logger *utils.Logger) *HubService {
	return &HubService{gw: gw, normalizer: normalizer, vendorPhone: vendorPhone, logger: logger}
}

// WithObserver attaches a failure observer and returns s.
func (s *HubService) WithObserver(o FailureObserver) *HubService {
	s.observer = o
	return s
}

// Search lists hubs stocking term around (lat, lon) in gateway order.
func (s *HubService) Search(ctx context.Context, term string, lat, lon float64) ([]models.NearbyHub, error) {
	rows, err := s.gw.NearBy(ctx, gateway.NearbyQuery{ProductName: term, Lat: lat, Lon: lon})
	if err != nil {
		if s.observer != nil {
			s.observer.GatewayFailure("NearBy", err)
		}
		return nil, fmt.Errorf("nearby %q: %w", term, err)
	}
	hubs := make([]models.NearbyHub, 0, len(rows))
	for _, row := range rows {
		hubs = append(hubs, s.normalizer.NormalizeHub(row))
	}
	return hubs, nil
}

// Request asks hub to supply its listed product to this vendor.
func (s *HubService) Request(ctx context.Context, hub models.NearbyHub) error {
	err := s.gw.InsertHubRequest(ctx, gateway.HubRequest{
		HubLoginID:  hub.LoginID,
		VendorPhone: s.vendorPhone,
		ItemID:      hub.InventoryID,
		ItemName:    hub.ProductName,
		ItemQty:     hub.Quantity,
	})
	if err != nil {
		return fmt.Errorf("request hub %s: %w", hub.LoginID, err)
	}
	s.logger.Info("[hubs] Request sent to %s for %s", hub.HubName, hub.ProductName)
	return nil
}
