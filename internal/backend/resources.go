package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
)

// Collection names exposed by the upstream REST API.
const (
	ResEmployees            = "employees"
	ResAttendance           = "attendance"
	ResCustomers            = "customers"
	ResOrders               = "orders"
	ResOrderItems           = "order-items"
	ResProducts             = "products"
	ResCategories           = "categories"
	ResSuppliers            = "suppliers"
	ResTables               = "tables"
	ResTransactions         = "transactions"
	ResPointTransactions    = "point-transactions"
	ResMembershipThresholds = "membership-thresholds"
)

// Resource is a thin path-scoped view of the client for one upstream
// collection.
type Resource struct {
	c    *Client
	base string
}

// Resource scopes the client to a named collection.
func (c *Client) Resource(name string) Resource {
	return Resource{c: c, base: "/api/" + name}
}

// List fetches the collection, forwarding the query string verbatim.
func (r Resource) List(ctx context.Context, query url.Values) (json.RawMessage, error) {
	return r.c.Get(ctx, r.base, query)
}

// Get fetches a single record by id.
func (r Resource) Get(ctx context.Context, id string) (json.RawMessage, error) {
	return r.c.Get(ctx, r.base+"/"+url.PathEscape(id), nil)
}

// Create posts a new record.
func (r Resource) Create(ctx context.Context, body any) (json.RawMessage, error) {
	return r.c.Post(ctx, r.base, body)
}

// Update replaces a record by id.
func (r Resource) Update(ctx context.Context, id string, body any) (json.RawMessage, error) {
	return r.c.Put(ctx, r.base+"/"+url.PathEscape(id), body)
}

// Delete removes a record by id.
func (r Resource) Delete(ctx context.Context, id string) error {
	_, err := r.c.Delete(ctx, r.base+"/"+url.PathEscape(id))
	return err
}

// PINVerification is the upstream response to a cashier PIN check.
type PINVerification struct {
	Valid      bool   `json:"valid"`
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	Role       string `json:"role"`
}

// VerifyPIN checks a cashier PIN against the upstream. A wrong PIN returns a
// verification with Valid false, not an error; errors mean the upstream could
// not be consulted.
func (c *Client) VerifyPIN(ctx context.Context, pin string) (*PINVerification, error) {
	raw, err := c.Post(ctx, "/api/auth/verify-pin", map[string]string{"pin": pin})
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return &PINVerification{Valid: false}, nil
		}
		return nil, err
	}
	var out PINVerification
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StoreSettings fetches the store profile shown on the dashboard and the
// customer display.
func (c *Client) StoreSettings(ctx context.Context) (json.RawMessage, error) {
	return c.Get(ctx, "/api/store-settings", nil)
}

// UpdateStoreSettings replaces the store profile.
func (c *Client) UpdateStoreSettings(ctx context.Context, body any) (json.RawMessage, error) {
	return c.Put(ctx, "/api/store-settings", body)
}

// MenuAnalysis fetches per-product sales aggregates for the date range.
func (c *Client) MenuAnalysis(ctx context.Context, from, to string) (json.RawMessage, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	return c.Get(ctx, "/api/menu-analysis", q)
}
