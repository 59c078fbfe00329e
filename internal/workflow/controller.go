package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"scanpipe/internal/config"
	"scanpipe/internal/itemops"
	"scanpipe/internal/logging"
	"scanpipe/internal/pipeline"
	"scanpipe/internal/runlock"
	"scanpipe/internal/scheduler"
	"scanpipe/internal/store"
	"scanpipe/internal/tasks"
)

// ErrNotRunning is returned by requests made before Start or after Stop.
var ErrNotRunning = errors.New("controller not running")

// Controller coordinates operator requests for the open project.
type Controller struct {
	cfg        *config.Config
	store      *store.Store
	registry   *tasks.Registry
	logger     *slog.Logger
	graph      pipeline.Graph
	workers    int
	sinks      []tasks.Sink
	channels   []chan<- tasks.Event
	projectLog *ProjectLog

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	lock     *runlock.Lock
	sched    *scheduler.Scheduler
	project  *store.Project
	eventLog *slog.Logger
	// eventCloser releases the open project's log file.
	eventCloser io.Closer
	lastErr     error
	lastRun     *scheduler.RunResult
}

// Option configures optional Controller behavior.
type Option func(*controllerOptions)

type controllerOptions struct {
	sinks    []tasks.Sink
	channels []chan<- tasks.Event
	hub      *logging.StreamHub
	workers  int
}

// WithLogSink delivers every lifecycle event to sink.
func WithLogSink(sink tasks.Sink) Option {
	return func(o *controllerOptions) {
		if sink != nil {
			o.sinks = append(o.sinks, sink)
		}
	}
}

// WithLogChannel delivers every lifecycle event on ch until the controller
// stops. Sends block, so the receiver must keep draining ch.
func WithLogChannel(ch chan<- tasks.Event) Option {
	return func(o *controllerOptions) {
		if ch != nil {
			o.channels = append(o.channels, ch)
		}
	}
}

// WithLogHub publishes controller logs and lifecycle events to hub.
func WithLogHub(hub *logging.StreamHub) Option {
	return func(o *controllerOptions) {
		o.hub = hub
	}
}

// WithWorkerCount overrides workflow.worker_count.
func WithWorkerCount(n int) Option {
	return func(o *controllerOptions) {
		o.workers = n
	}
}

// NewController constructs a controller. Call Start before issuing requests.
func NewController(cfg *config.Config, st *store.Store, registry *tasks.Registry, logger *slog.Logger, opts ...Option) *Controller {
	options := &controllerOptions{workers: cfg.Workflow.WorkerCount}
	for _, opt := range opts {
		opt(options)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if options.hub != nil {
		logger = logging.TeeLogger(logger, logging.NewHubHandler(options.hub, nil))
	}
	return &Controller{
		cfg:        cfg,
		store:      st,
		registry:   registry,
		logger:     logging.NewComponentLogger(logger, "workflow"),
		graph:      pipeline.NewGraph(cfg.Pipeline.GenerateDerivatives),
		workers:    options.workers,
		sinks:      options.sinks,
		channels:   options.channels,
		projectLog: NewProjectLog(cfg, options.hub),
	}
}

// Graph returns the task graph the controller enforces.
func (c *Controller) Graph() pipeline.Graph {
	return c.graph
}

// Start acquires the workspace lock and starts the scheduler.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("controller already running")
	}
	if err := c.registry.Covers(c.graph); err != nil {
		return fmt.Errorf("task registry: %w", err)
	}

	lock, err := runlock.Acquire(c.cfg.LockPath())
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	sinks := make(tasks.MultiSink, 0, len(c.sinks)+len(c.channels)+1)
	sinks = append(sinks, c.sinks...)
	for _, ch := range c.channels {
		sinks = append(sinks, tasks.NewChanSink(runCtx, ch))
	}
	sinks = append(sinks, tasks.SinkFunc(c.logEvent))

	sched, err := scheduler.New(scheduler.Options{
		Graph:    c.graph,
		Store:    c.store,
		Runner:   tasks.NewExecutor(c.registry, c.logger, c.cfg.TaskTimeout()),
		Resolve:  itemops.Resolver(c.cfg, c.store),
		Sink:     sinks,
		Workers:  c.workers,
		Logger:   c.logger,
		OnUpdate: c.observe,
	})
	if err != nil {
		cancel()
		_ = lock.Release()
		return err
	}
	go func() {
		if err := sched.Run(runCtx); err != nil {
			c.logger.Error("scheduler exited", logging.Error(err))
		}
	}()

	c.cancel = cancel
	c.lock = lock
	c.sched = sched
	c.running = true
	c.logger.Info("workflow controller started",
		logging.String("lock", lock.Path()),
		logging.Int("workers", c.workers),
		logging.Any("tasks", c.graph.Tasks()),
	)
	return nil
}

// Stop cancels outstanding runs, waits for their outcomes to be persisted,
// and releases the workspace lock.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel, sched, lock := c.cancel, c.sched, c.lock
	c.running = false
	c.cancel = nil
	c.sched = nil
	c.lock = nil
	c.mu.Unlock()

	cancel()
	<-sched.Done()

	c.mu.Lock()
	closer := c.eventCloser
	c.project = nil
	c.eventLog = nil
	c.eventCloser = nil
	c.mu.Unlock()
	c.closeEventLog(closer)
	if err := lock.Release(); err != nil {
		c.logger.Warn("failed to release workspace lock", logging.Error(err))
	}
	c.logger.Info("workflow controller stopped")
}

func (c *Controller) activeScheduler() (*scheduler.Scheduler, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sched == nil {
		return nil, ErrNotRunning
	}
	return c.sched, nil
}

func (c *Controller) observe(row scheduler.RowState) {
	c.logger.Debug("item row updated",
		logging.Int64(logging.FieldItemID, row.ItemID),
		logging.String("state", string(row.State)),
		logging.String("next", string(row.Next)),
		logging.String("running", string(row.Running)),
	)
}

func (c *Controller) recordRun(res scheduler.RunResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run := res
	c.lastRun = &run
	if res.Err != nil {
		c.lastErr = res.Err
	}
}
