package poller

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendor-desk/gateway"
	"vendor-desk/models"
	"vendor-desk/services"
	"vendor-desk/utils"
)

type sourceGateway struct {
	lastQuery  gateway.OrderQuery
	lastNearby gateway.NearbyQuery
	nearbyErr  error
}

func (g *sourceGateway) ShowOrders(_ context.Context, q gateway.OrderQuery) ([]models.RawOrderRecord, error) {
	g.lastQuery = q
	return []models.RawOrderRecord{
		{"OrderID": "A1", "ItemName": "Wash", "Price": "100", "Quantity": "1"},
		{"OrderID": "A1", "ItemName": "Iron", "Price": "50", "Quantity": "2"},
	}, nil
}

func (g *sourceGateway) UpdateOrderStatus(context.Context, gateway.StatusUpdate) error { return nil }

func (g *sourceGateway) NearBy(_ context.Context, q gateway.NearbyQuery) ([]map[string]any, error) {
	g.lastNearby = q
	if g.nearbyErr != nil {
		return nil, g.nearbyErr
	}
	return []map[string]any{{"LoginID": "h1", "DistanceKm": "1.5"}}, nil
}

func (g *sourceGateway) InsertHubRequest(context.Context, gateway.HubRequest) error { return nil }

func TestOrderSourceMapsAllToEveryStatus(t *testing.T) {
	gw := &sourceGateway{}
	norm := services.NewNormalizer("")
	svc := services.NewOrderService(gw, services.NewAggregator(norm, nil), "9999999999", utils.NopLogger())
	fetch := OrderSource(svc)

	groups, err := fetch(context.Background(), Filter{Term: "all"})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 3, groups[0].TotalQuantity)
	assert.Equal(t, "", gw.lastQuery.Status)

	_, err = fetch(context.Background(), Filter{Term: "Done"})
	require.NoError(t, err)
	assert.Equal(t, "Done", gw.lastQuery.Status)
}

func TestHubSourcePassesLocation(t *testing.T) {
	gw := &sourceGateway{}
	svc := services.NewHubService(gw, services.NewNormalizer(""), "9999999999", utils.NopLogger())
	fetch := HubSource(svc)

	hubs, err := fetch(context.Background(), Filter{Term: "phone", Location: Location{Lat: 28.6139, Lon: 77.209}})
	require.NoError(t, err)
	require.Len(t, hubs, 1)
	assert.Equal(t, 1.5, hubs[0].DistanceKm)
	assert.Equal(t, "phone", gw.lastNearby.ProductName)
	assert.Equal(t, 77.209, gw.lastNearby.Lon)

	gw.nearbyErr = gateway.ErrTransport
	_, err = fetch(context.Background(), Filter{Term: "phone"})
	assert.True(t, errors.Is(err, gateway.ErrTransport))
}
