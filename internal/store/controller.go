package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/sheetmyself/internal/sheet"
)

// Controller loads and saves one document through a Backend.
//
// A failed save never touches the in-memory document; the caller keeps
// editing and may retry.
type Controller struct {
	backend       Backend
	logger        zerolog.Logger
	timeout       time.Duration
	persistOnExit bool
	docOpts       []sheet.Option
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger used for load and save events.
func WithLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithTimeout bounds every backend call. Zero means no bound beyond the
// caller's context.
func WithTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.timeout = d }
}

// WithPersistOnExit makes Shutdown save the document.
func WithPersistOnExit(enabled bool) ControllerOption {
	return func(c *Controller) { c.persistOnExit = enabled }
}

// WithDocumentOptions passes options to every document the controller loads.
func WithDocumentOptions(opts ...sheet.Option) ControllerOption {
	return func(c *Controller) { c.docOpts = append(c.docOpts, opts...) }
}

// NewController wraps backend.
func NewController(backend Backend, opts ...ControllerOption) *Controller {
	c := &Controller{backend: backend, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PersistOnExit reports whether Shutdown saves.
func (c *Controller) PersistOnExit() bool {
	return c.persistOnExit
}

func (c *Controller) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// Load reads and deserializes the stored document.
//
// Returns ErrNotFound when nothing is stored, sheet.ErrParse or
// sheet.ErrUnsupportedVersion for unreadable content, and *IOError when the
// backend fails.
func (c *Controller) Load(ctx context.Context) (*sheet.Document, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	start := time.Now()
	data, err := c.backend.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		c.logger.Debug().Msg("no stored document")
		return nil, fmt.Errorf("load: %w", err)
	case errors.Is(err, sheet.ErrParse):
		c.logger.Error().Err(err).Msg("stored document is damaged")
		return nil, fmt.Errorf("load: %w", err)
	case err != nil:
		ioErr := newIOError(ctx, "load", err)
		c.logger.Error().Err(err).Bool("timed_out", ioErr.TimedOut).Msg("load failed")
		return nil, ioErr
	}

	doc, err := sheet.Deserialize(data, c.docOpts...)
	if err != nil {
		c.logger.Error().Err(err).Int("bytes", len(data)).Msg("stored document rejected")
		return nil, fmt.Errorf("load: %w", err)
	}

	c.logger.Info().
		Str("document_id", doc.ID().String()).
		Int("entities", doc.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("document loaded")
	return doc, nil
}

// Save serializes doc and writes it through the backend.
func (c *Controller) Save(ctx context.Context, doc *sheet.Document) error {
	data, err := sheet.Serialize(doc)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()

	start := time.Now()
	if err := c.backend.Save(ctx, data); err != nil {
		ioErr := newIOError(ctx, "save", err)
		c.logger.Error().Err(err).Bool("timed_out", ioErr.TimedOut).Msg("save failed")
		return ioErr
	}

	c.logger.Info().
		Str("document_id", doc.ID().String()).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("document saved")
	return nil
}

// Shutdown saves doc when persist-on-exit is enabled and does nothing
// otherwise. A nil doc is never saved.
func (c *Controller) Shutdown(ctx context.Context, doc *sheet.Document) error {
	if !c.persistOnExit || doc == nil {
		c.logger.Debug().Bool("persist_on_exit", c.persistOnExit).Msg("shutdown without save")
		return nil
	}
	if err := c.Save(ctx, doc); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the backend.
func (c *Controller) Close() error {
	return c.backend.Close()
}
