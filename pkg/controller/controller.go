package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zofgo/zof/pkg/datapath"
	"github.com/zofgo/zof/pkg/driver"
	"github.com/zofgo/zof/pkg/handler"
	"github.com/zofgo/zof/pkg/rpc"
	"github.com/zofgo/zof/pkg/taskset"
)

// State is the controller's lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Controller dispatches oftr events to applications.
type Controller struct {
	config    Config
	logger    *slog.Logger
	driver    *driver.Driver
	datapaths *datapath.List

	mu    sync.RWMutex
	state State
	apps  []*App

	// rejected holds connections closed because their datapath id was
	// already in use. Their CHANNEL_DOWN is not dispatched.
	rejected map[uint64]struct{}
}

// New creates a controller and its driver.
func New(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Driver.Logger == nil {
		config.Driver.Logger = logger
	}
	if config.Driver.Xids == nil {
		config.Driver.Xids = &rpc.XidAllocator{}
	}

	c := &Controller{
		config:   config,
		logger:   logger.With("component", "controller"),
		driver:   driver.New(config.Driver),
		rejected: make(map[uint64]struct{}),
	}
	c.datapaths = datapath.NewList(datapath.Config{
		Conn:          c.driver,
		OnTaskFailure: c.datapathTaskFailed,
		Logger:        c.logger,
	})
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Driver returns the controller's driver.
func (c *Controller) Driver() *driver.Driver {
	return c.driver
}

// Datapaths returns the list of connected datapaths.
func (c *Controller) Datapaths() *datapath.List {
	return c.datapaths
}

// NewApp registers an application. Apps receive events in the order they
// were registered. Registration is closed once Run has started.
func (c *Controller) NewApp(name string) (*App, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return nil, ErrAlreadyStarted
	}
	for _, app := range c.apps {
		if strings.EqualFold(app.name, name) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateApp, name)
		}
	}

	app := newApp(c, name)
	c.apps = append(c.apps, app)
	return app, nil
}

// Apps returns the registered applications in dispatch order.
func (c *Controller) Apps() []*App {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*App(nil), c.apps...)
}

// Run opens the driver, dispatches START, starts the listeners and then
// dispatches events until ctx is cancelled or oftr exits. On the way out it
// cancels every task, waits for them within CancelTimeout, dispatches STOP
// and closes the driver. A task that ignores cancellation makes Run return
// an error wrapping taskset.ErrNotCancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateRunning
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()
	}()

	if err := c.driver.Open(ctx); err != nil {
		return err
	}
	c.logger.Info("controller started", "driver_id", c.driver.ID())

	c.dispatchLifecycle(rpc.TypeStart)

	runErr := c.listen(ctx)
	if runErr == nil {
		runErr = c.loop(ctx)
	}

	waitErr := c.cleanup()
	c.dispatchLifecycle(rpc.TypeStop)

	if err := c.driver.Close(); err != nil {
		c.logger.Warn("driver close", "error", err)
	}
	c.logger.Info("controller stopped")
	return errors.Join(runErr, waitErr)
}

// listen adds the TLS identity, if any, then starts every listener
// concurrently.
func (c *Controller) listen(ctx context.Context) error {
	if len(c.config.ListenEndpoints) == 0 {
		return nil
	}

	opts := driver.ListenOptions{
		Versions: c.config.ListenVersions,
		Options:  c.config.ListenOptions,
	}
	if tls := c.config.TLS; tls != nil {
		id, err := c.driver.AddIdentity(ctx, tls.Cert, tls.CACert, tls.PrivKey)
		if err != nil {
			return fmt.Errorf("add tls identity: %w", err)
		}
		opts.TLSID = id
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, endpoint := range c.config.ListenEndpoints {
		endpoint := endpoint
		g.Go(func() error {
			connID, err := c.driver.Listen(gctx, endpoint, opts)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", endpoint, err)
			}
			c.logger.Info("listening", "endpoint", endpoint, "conn_id", connID, "versions", opts.Versions)
			return nil
		})
	}
	return g.Wait()
}

// loop dispatches events one at a time until ctx ends or oftr exits. Events
// oftr sent before exiting are dispatched before loop returns.
func (c *Controller) loop(ctx context.Context) error {
	events := c.driver.Events()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				c.logger.Error("oftr exited")
				return fmt.Errorf("oftr exited: %w", rpc.ErrConnectionClosed)
			}
			c.handleEvent(ev)
		}
	}
}

// cleanup cancels datapath and app tasks and waits for them.
func (c *Controller) cleanup() error {
	dps := c.datapaths.All()
	for _, dp := range dps {
		dp.Detach()
	}
	apps := c.Apps()
	for _, app := range apps {
		app.tasks.Cancel()
	}

	var errs []error
	for _, dp := range dps {
		if err := dp.Tasks().WaitCancelled(c.config.CancelTimeout); err != nil {
			c.logger.Error("datapath tasks did not stop", "dpid", dp.ID().String(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", dp, err))
		}
	}
	for _, app := range apps {
		if err := app.tasks.WaitCancelled(c.config.CancelTimeout); err != nil {
			c.logger.Error("app tasks did not stop", "app", app.name, "error", err)
			errs = append(errs, fmt.Errorf("app %s: %w", app.name, err))
		}
	}
	return errors.Join(errs...)
}

// handleEvent updates bookkeeping for ev, then dispatches it.
func (c *Controller) handleEvent(ev *rpc.Event) {
	stats.Event(ev.Type)

	var dp *datapath.Datapath
	switch {
	case ev.OpenFlow && ev.Type == rpc.TypeChannelUp:
		var ok bool
		if dp, ok = c.channelUp(ev); !ok {
			return
		}
	case ev.OpenFlow && ev.Type == rpc.TypeChannelDown:
		var ok bool
		if dp, ok = c.channelDown(ev); !ok {
			return
		}
	default:
		dp = c.findDatapath(ev)
		if dp != nil && ev.OpenFlow && ev.Type == rpc.TypePortStatus {
			c.portStatus(dp, ev)
		}
	}

	c.dispatch(dp, ev)
}

// dispatch hands ev to every app in order. One app's failure does not
// affect the others.
func (c *Controller) dispatch(dp *datapath.Datapath, ev *rpc.Event) {
	c.logger.Debug("dispatch", "type", ev.Type, "kind", handler.KindOf(ev), "conn_id", ev.ConnID, "dpid", ev.DatapathID)

	for _, app := range c.Apps() {
		if err := app.dispatch(dp, ev); err != nil {
			stats.AppError(app.name)
		}
	}
}

func (c *Controller) dispatchLifecycle(typ string) {
	ev, err := rpc.NewEvent(typ, nil)
	if err != nil {
		c.logger.Error("lifecycle event", "type", typ, "error", err)
		return
	}
	stats.Event(typ)
	c.dispatch(nil, ev)
}

// postException reports a task failure to every app as an EXCEPTION event.
func (c *Controller) postException(fields map[string]any, err error) {
	fields["error"] = err.Error()
	ev, perr := rpc.NewEvent(rpc.TypeException, fields)
	if perr != nil {
		c.logger.Error("exception event", "error", perr)
		return
	}
	if perr := c.driver.PostEvent(ev); perr != nil {
		c.logger.Debug("exception not posted", "error", perr)
	}
}

func (c *Controller) datapathTaskFailed(dp *datapath.Datapath, t *taskset.Task, err error) {
	c.logger.Error("datapath task failed", "dpid", dp.ID().String(), "conn_id", dp.ConnID(), "task", t.String(), "error", err)
	c.postException(map[string]any{
		"datapath_id": dp.ID().String(),
		"conn_id":     dp.ConnID(),
		"task":        t.String(),
	}, err)
}
