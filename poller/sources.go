package poller

import (
	"context"
	"strings"

	"vendor-desk/models"
	"vendor-desk/services"
)

// AllStatuses is the orders term that polls every status.
const AllStatuses = "all"

// OrderSource polls grouped orders with the filter term as the status.
func OrderSource(svc *services.OrderService) FetchFunc[models.OrderGroup] {
	return func(ctx context.Context, f Filter) ([]models.OrderGroup, error) {
		status := f.Term
		if strings.EqualFold(status, AllStatuses) {
			status = ""
		}
		return svc.FetchGroupedOrders(ctx, services.OrderFilter{Status: status}), nil
	}
}

// HubSource polls hubs stocking the filter term around its location.
func HubSource(svc *services.HubService) FetchFunc[models.NearbyHub] {
	return func(ctx context.Context, f Filter) ([]models.NearbyHub, error) {
		return svc.Search(ctx, f.Term, f.Location.Lat, f.Location.Lon)
	}
}
