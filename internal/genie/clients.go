// ABOUTME: Lazily-initialized singleton clients for the sales and customer spaces.
// ABOUTME: Explicitly-owned container instead of package-level mutable globals.

package genie

import (
	"log/slog"
	"sync"
)

// Space identifies one of the two configured query backends.
type Space string

const (
	SpaceSales    Space = "sales"
	SpaceCustomer Space = "customer"
)

// Clients owns the two per-space clients. Each client is created on first
// use and reused for the lifetime of the process; concurrent callers get the
// same instance.
type Clients struct {
	salesCfg    Config
	customerCfg Config
	logger      *slog.Logger

	salesOnce sync.Once
	sales     *Client
	salesErr  error

	customerOnce sync.Once
	customer     *Client
	customerErr  error
}

// NewClients builds the container. No network activity happens until a
// space's client is first requested.
func NewClients(sales, customer Config, logger *slog.Logger) *Clients {
	return &Clients{
		salesCfg:    sales,
		customerCfg: customer,
		logger:      logger,
	}
}

// Sales returns the singleton client for the sales space.
func (c *Clients) Sales() (*Client, error) {
	c.salesOnce.Do(func() {
		c.sales, c.salesErr = NewClient(c.salesCfg, c.logger)
	})
	return c.sales, c.salesErr
}

// Customer returns the singleton client for the customer space.
func (c *Clients) Customer() (*Client, error) {
	c.customerOnce.Do(func() {
		c.customer, c.customerErr = NewClient(c.customerCfg, c.logger)
	})
	return c.customer, c.customerErr
}

// ForSpace returns the singleton client for the named space.
func (c *Clients) ForSpace(space Space) (*Client, error) {
	if space == SpaceCustomer {
		return c.Customer()
	}
	return c.Sales()
}
