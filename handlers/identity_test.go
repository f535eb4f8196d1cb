package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rudotcom/electron/internal/identity"
	"github.com/rudotcom/electron/internal/orders"
)

func TestOwnedBy(t *testing.T) {
	tests := []struct {
		name  string
		order orders.Order
		cust  identity.Customer
		want  bool
	}{
		{
			name:  "same customer row",
			order: orders.Order{OwnerID: 1},
			cust:  identity.Customer{ID: 1},
			want:  true,
		},
		{
			name:  "same user across sessions",
			order: orders.Order{OwnerID: 1, OwnerUserID: "user-42"},
			cust:  identity.Customer{ID: 2, UserID: "user-42"},
			want:  true,
		},
		{
			// a signed-in shopper places an order, the session cookie is
			// rotated, and the next request resolves a fresh customer row:
			// the order must stay theirs through the user link
			name:  "owner after session rotation",
			order: orders.Order{OwnerID: 1, OwnerUserID: "user-42"},
			cust:  identity.Customer{ID: 2, UserID: "user-42", SessionToken: "fresh"},
			want:  true,
		},
		{
			name:  "different anonymous customer",
			order: orders.Order{OwnerID: 1},
			cust:  identity.Customer{ID: 2},
			want:  false,
		},
		{
			name:  "different user",
			order: orders.Order{OwnerID: 1, OwnerUserID: "user-42"},
			cust:  identity.Customer{ID: 2, UserID: "user-7"},
			want:  false,
		},
		{
			name:  "anonymous visitor on a user's order",
			order: orders.Order{OwnerID: 1, OwnerUserID: "user-42"},
			cust:  identity.Customer{ID: 2},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ownedBy(tt.order, tt.cust))
		})
	}
}
