package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zofgo/zof/pkg/datapath"
	"github.com/zofgo/zof/pkg/driver"
	"github.com/zofgo/zof/pkg/handler"
	"github.com/zofgo/zof/pkg/rpc"
	"github.com/zofgo/zof/pkg/taskset"
)

// App is an application's handle on the controller.
type App struct {
	name       string
	controller *Controller
	registry   *handler.Registry
	tasks      *taskset.TaskSet
	logger     *slog.Logger
}

func newApp(c *Controller, name string) *App {
	app := &App{
		name:       name,
		controller: c,
		logger:     c.logger.With("app", name),
	}
	app.registry = handler.NewRegistry(app.logger)
	app.tasks = taskset.New(context.Background(), app.taskFailed)
	return app
}

// Name returns the app's name.
func (a *App) Name() string {
	return a.name
}

// Logger returns a logger tagged with the app's name.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Registry returns the app's handler registry.
func (a *App) Registry() *handler.Registry {
	return a.registry
}

// Subscribe adds a handler. See handler.Registry.Subscribe.
func (a *App) Subscribe(cb handler.Callback, kind handler.Kind, subtype any, opts handler.Options) *handler.Handler {
	return a.registry.Subscribe(cb, kind, subtype, opts)
}

// Unsubscribe removes the first handler whose callback is cb.
func (a *App) Unsubscribe(cb handler.Callback) bool {
	return a.registry.Unsubscribe(cb)
}

// Remove removes h.
func (a *App) Remove(h *handler.Handler) bool {
	return a.registry.Remove(h)
}

// CreateTask runs fn until the controller stops.
func (a *App) CreateTask(fn func(ctx context.Context) error) *taskset.Task {
	return a.tasks.Create(fn)
}

// Tasks returns the app's task set.
func (a *App) Tasks() *taskset.TaskSet {
	return a.tasks
}

// PostEvent queues a custom event for every app. The name is upper-cased
// and becomes the event type.
func (a *App) PostEvent(name string, fields map[string]any) error {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return errors.New("post event: empty name")
	}
	if handler.IsMessageType(name) {
		return fmt.Errorf("post event: %s is an OpenFlow message type", name)
	}

	ev, err := rpc.NewEvent(name, fields)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	return a.controller.driver.PostEvent(ev)
}

// Datapaths returns the connected datapaths.
func (a *App) Datapaths() []*datapath.Datapath {
	return a.controller.datapaths.All()
}

// Datapath returns the connected datapath with the given id.
func (a *App) Datapath(id any) (*datapath.Datapath, bool) {
	return a.controller.datapaths.Get(id)
}

// Driver returns the controller's driver.
func (a *App) Driver() *driver.Driver {
	return a.controller.driver
}

func (a *App) dispatch(dp *datapath.Datapath, ev *rpc.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("app %s panicked: %v", a.name, p)
			a.logger.Error("dispatch panicked", "type", ev.Type, "conn_id", ev.ConnID, "error", err)
		}
	}()

	_, err = a.registry.Dispatch(dp, ev)
	return err
}

func (a *App) taskFailed(t *taskset.Task, err error) {
	a.logger.Error("app task failed", "task", t.String(), "error", err)
	stats.AppError(a.name)
	a.controller.postException(map[string]any{
		"app":  a.name,
		"task": t.String(),
	}, err)
}
