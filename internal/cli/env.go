package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/sheetmyself/internal/character"
	"github.com/roach88/sheetmyself/internal/config"
	"github.com/roach88/sheetmyself/internal/logger"
	"github.com/roach88/sheetmyself/internal/sheet"
	"github.com/roach88/sheetmyself/internal/store"
)

// errConfig marks config file and flag problems.
var errConfig = errors.New("bad configuration")

// env is the state shared by every command of one invocation: resolved
// config, logger, and the persistence controller. Inside a session it also
// holds the open document, which then outlives single commands.
type env struct {
	opts   *RootOptions
	cfg    config.Config
	logger zerolog.Logger
	ctrl   *store.Controller
	now    func() time.Time

	session bool
	doc     *sheet.Document
	dirty   bool
}

// setup resolves config and flags and builds the logger. The backend is
// opened lazily by controller.
func (e *env) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(e.opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}

	flags := cmd.Flags()
	if e.opts.DataPath != "" {
		cfg.DataPath = e.opts.DataPath
	}
	if flags.Changed("backend") {
		cfg.Backend = e.opts.Backend
	}
	if flags.Changed("persist-on-exit") {
		cfg.PersistOnExit = e.opts.PersistOnExit
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}

	level, _ := cfg.Level()
	if e.opts.Verbose {
		level = zerolog.DebugLevel
	}
	e.cfg = cfg
	e.logger = logger.New(cmd.ErrOrStderr(), level, e.opts.Verbose)
	if e.now == nil {
		e.now = time.Now
	}
	return nil
}

// controller opens the configured backend on first use.
func (e *env) controller() (*store.Controller, error) {
	if e.ctrl != nil {
		return e.ctrl, nil
	}
	backend, err := store.OpenBackend(e.cfg.Backend, e.cfg.Path())
	if err != nil {
		return nil, err
	}
	e.logger.Debug().Str("backend", e.cfg.Backend).Str("path", e.cfg.Path()).Msg("backend opened")
	e.ctrl = store.NewController(backend,
		store.WithLogger(e.logger),
		store.WithTimeout(e.cfg.SaveTimeout),
		store.WithPersistOnExit(e.cfg.PersistOnExit),
	)
	return e.ctrl, nil
}

// close releases the backend if one was opened.
func (e *env) close() error {
	if e.ctrl == nil {
		return nil
	}
	err := e.ctrl.Close()
	e.ctrl = nil
	return err
}

// document returns the session document, or loads the stored one.
func (e *env) document(ctx context.Context) (*sheet.Document, error) {
	if e.doc != nil {
		return e.doc, nil
	}
	ctrl, err := e.controller()
	if err != nil {
		return nil, err
	}
	doc, err := ctrl.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no sheet at %s, run 'sheetmyself init' first: %w", e.cfg.Path(), err)
	}
	return doc, err
}

// commit persists a mutation. In a session the save is deferred to an
// explicit save or to shutdown.
func (e *env) commit(ctx context.Context, doc *sheet.Document) error {
	if e.session {
		e.dirty = true
		return nil
	}
	ctrl, err := e.controller()
	if err != nil {
		return err
	}
	return ctrl.Save(ctx, doc)
}

// characterSheet opens the character view of the current document.
// Open may create missing root entities, which counts as a mutation.
func (e *env) characterSheet(ctx context.Context) (*character.Sheet, error) {
	doc, err := e.document(ctx)
	if err != nil {
		return nil, err
	}
	before := doc.Len()
	cs, err := character.Open(doc)
	if err != nil {
		return nil, err
	}
	if doc.Len() != before {
		e.logger.Debug().Msg("character sheet entities created")
	}
	return cs, nil
}

// formatter builds an OutputFormatter bound to cmd's writers.
func (e *env) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    e.opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   e.opts.Verbose,
	}
}
