package poller

import (
	"fmt"
	"strconv"

	"vendor-desk/models"
)

// KeyPolicy decides when a fresh result replaces the displayed rows.
type KeyPolicy int

const (
	// IdentityKeys replaces rows only when the ordered row identities differ.
	IdentityKeys KeyPolicy = iota
	// ContentKeys also replaces rows whose identity is unchanged but whose
	// content fingerprint moved.
	ContentKeys
)

func (p KeyPolicy) String() string {
	if p == ContentKeys {
		return "content"
	}
	return "identity"
}

// ParseKeyPolicy accepts "identity" or "content". Empty means identity.
func ParseKeyPolicy(s string) (KeyPolicy, error) {
	switch s {
	case "", "identity":
		return IdentityKeys, nil
	case "content":
		return ContentKeys, nil
	default:
		return IdentityKeys, fmt.Errorf("unknown poll key policy %q", s)
	}
}

// Keys derives comparison keys for rows of type T.
type Keys[T any] struct {
	Identity func(T) string
	Content  func(T) string
}

func (k Keys[T]) key(policy KeyPolicy, row T) string {
	id := k.Identity(row)
	if policy == ContentKeys && k.Content != nil {
		return id + "|" + k.Content(row)
	}
	return id
}

func (k Keys[T]) list(policy KeyPolicy, rows []T) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = k.key(policy, row)
	}
	return out
}

// OrderKeys keys grouped orders by order id.
var OrderKeys = Keys[models.OrderGroup]{
	Identity: func(g models.OrderGroup) string { return g.OrderID },
	Content:  func(g models.OrderGroup) string {
		return fmt.Sprintf("%s|%s|%s|%d|%d",
			g.Status,
			strconv.FormatFloat(g.FinalPrice, 'f', -1, 64),
			strconv.FormatFloat(g.TotalPrice, 'f', -1, 64),
			g.TotalQuantity,
			len(g.Items))
	},
}

// HubKeys keys hubs by login id and distance.
var HubKeys = Keys[models.NearbyHub]{
	Identity: func(h models.NearbyHub) string {
		return h.LoginID + "-" + strconv.FormatFloat(h.DistanceKm, 'f', -1, 64)
	},
	Content: func(h models.NearbyHub) string { return h.Quantity },
}
