// Package identity maps an inbound request (session cookie, optional
// authenticated user) to a stable Customer row, creating one when absent.
package identity

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"
)

// SessionTokenLength matches the cookie issued by the storefront since the
// first release; anything shorter than 36 is too easy to collide.
const SessionTokenLength = 56

const sessionAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type Customer struct {
	ID           int64
	SessionToken string
	UserID       string // empty for anonymous shoppers
	Phone        string
	Confirmed    bool
	CreatedAt    time.Time
}

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

// Resolve finds or creates the Customer for a request. It never fails on a
// missing row: lookup misses create. When an authenticated user id is
// present it is linked to the session's customer.
//
// The returned session token must be (re)set as the shopper's cookie: it is
// freshly generated when the request carried none.
func (c *Conf) Resolve(ctx context.Context, sessionToken, userID string) (Customer, error) {
	if sessionToken == "" {
		token, err := NewSessionToken()
		if err != nil {
			return Customer{}, fmt.Errorf("generating session token: %w", err)
		}
		sessionToken = token
	}

	var cust Customer
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO customers (session_token)
		VALUES ($1)
		ON CONFLICT (session_token) DO UPDATE SET session_token = EXCLUDED.session_token
		RETURNING id, session_token, COALESCE(user_id, ''), COALESCE(phone, ''), confirmed, created_at
	`, sessionToken).Scan(&cust.ID, &cust.SessionToken, &cust.UserID, &cust.Phone, &cust.Confirmed, &cust.CreatedAt)
	if err != nil {
		return Customer{}, fmt.Errorf("resolving customer: %w", err)
	}

	if userID != "" && cust.UserID != userID {
		if err := c.linkUser(ctx, cust.ID, userID); err != nil {
			return Customer{}, err
		}
		cust.UserID = userID
	}

	return cust, nil
}

// linkUser attaches an authenticated user to the session's customer. A user
// accumulates one customer row per browser session over time; links are
// never removed, so orders placed from earlier sessions stay reachable
// through the user id.
func (c *Conf) linkUser(ctx context.Context, customerID int64, userID string) error {
	if _, err := c.db.ExecContext(ctx, `
		UPDATE customers SET user_id = $1 WHERE id = $2
	`, userID, customerID); err != nil {
		return fmt.Errorf("linking customer to user: %w", err)
	}
	return nil
}

// NewSessionToken generates a collision-resistant random token for the
// shopper's session cookie.
func NewSessionToken() (string, error) {
	b := make([]byte, SessionTokenLength)
	max := big.NewInt(int64(len(sessionAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = sessionAlphabet[n.Int64()]
	}
	return string(b), nil
}
