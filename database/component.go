package database

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/outbound/component"
	"github.com/kbukum/outbound/logger"
)

// Component owns the SQLite connection backing the durable cache and the
// call record history.
type Component struct {
	cfg    Config
	log    *logger.Logger
	driver Driver

	db      *DB
	entries *EntryStore
	records *RecordStore
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates a database component for the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	return &Component{
		cfg: cfg,
		log: log.WithComponent("database"),
	}
}

// WithDriver swaps the SQLite dialector for another GORM driver.
func (c *Component) WithDriver(d Driver) *Component {
	c.driver = d
	return c
}

// Name returns the component name.
func (c *Component) Name() string { return "database" }

// Start connects and migrates the tables.
func (c *Component) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		c.log.Info("Database disabled, skipping start")
		return nil
	}
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	var (
		db  *DB
		err error
	)
	if c.driver != nil {
		db, err = OpenWithDriver(ctx, c.cfg, c.log, c.driver)
	} else {
		db, err = Open(ctx, c.cfg, c.log)
	}
	if err != nil {
		return fmt.Errorf("database start: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return fmt.Errorf("database migrate: %w", err)
	}

	c.db = db
	c.entries = NewEntryStore(db)
	c.records = NewRecordStore(db)
	return nil
}

// Stop closes the connection.
func (c *Component) Stop(_ context.Context) error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Health pings the database.
func (c *Component) Health(ctx context.Context) component.Health {
	if !c.cfg.Enabled {
		return component.Health{Name: c.Name(), Status: component.StatusHealthy, Message: "disabled"}
	}
	if c.db == nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: "database not initialized",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// Describe returns the startup summary line.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "SQLite",
		Type:    "database",
		Details: fmt.Sprintf("dsn=%s pool=%d/%d", c.cfg.DSN, c.cfg.MaxOpenConns, c.cfg.MaxIdleConns),
	}
}

// DB returns the connection, or nil before Start.
func (c *Component) DB() *DB { return c.db }

// EntryStore returns the cache entry store, or nil before Start.
func (c *Component) EntryStore() *EntryStore { return c.entries }

// RecordStore returns the call record store, or nil before Start.
func (c *Component) RecordStore() *RecordStore { return c.records }
