package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/rudotcom/electron/internal/auth"
	"github.com/rudotcom/electron/internal/identity"
	"github.com/rudotcom/electron/internal/orders"
)

// resolveCustomer maps the request to its Customer: the session cookie
// identifies anonymous shoppers, verified claims link authenticated users.
// The cookie is refreshed on every call so a generated token reaches the
// browser.
func (h *Handler) resolveCustomer(c *gin.Context) (identity.Customer, error) {
	sessionToken, _ := c.Cookie(SessionCookie)

	var userID string
	if claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims); ok {
		userID = claims.Subject
	}

	cust, err := h.i.Resolve(c.Request.Context(), sessionToken, userID)
	if err != nil {
		return identity.Customer{}, err
	}

	c.SetCookie(SessionCookie, cust.SessionToken, sessionCookieMaxAge, "/", "", false, true)
	return cust, nil
}

// rotateSession issues a fresh session token after checkout. Only signed-in
// shoppers rotate: their orders stay reachable through the user link, while
// an anonymous shopper's order is owned by the session's customer row and
// must keep its cookie. The placed order left the cart state, so the next
// add-to-cart starts a fresh cart either way.
func (h *Handler) rotateSession(c *gin.Context) {
	if _, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims); !ok {
		return
	}
	token, err := identity.NewSessionToken()
	if err != nil {
		return
	}
	c.SetCookie(SessionCookie, token, sessionCookieMaxAge, "/", "", false, true)
}

// ownedBy reports whether the resolved identity may see the order: either
// the same customer row, or the same linked user across sessions.
func ownedBy(order orders.Order, cust identity.Customer) bool {
	if order.OwnerID != 0 && order.OwnerID == cust.ID {
		return true
	}
	return cust.UserID != "" && order.OwnerUserID == cust.UserID
}
