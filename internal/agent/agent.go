// Package agent wires the runtime together and exposes the narrow public
// surface: start, stop, submit, wait, and adapter registration.
package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/prismbot/prism/internal/bus"
	"github.com/prismbot/prism/internal/channels"
	"github.com/prismbot/prism/internal/config"
	"github.com/prismbot/prism/internal/llm"
	"github.com/prismbot/prism/internal/loop"
	"github.com/prismbot/prism/internal/mcp"
	"github.com/prismbot/prism/internal/observability"
	"github.com/prismbot/prism/internal/skills"
	"github.com/prismbot/prism/internal/task"
	"github.com/prismbot/prism/internal/tools"
	"github.com/prismbot/prism/pkg/models"
)

// submitTimeout bounds how long Submit waits for the task id to materialize.
const submitTimeout = 5 * time.Second

// Options configures agent construction.
type Options struct {
	Settings *config.Settings
	Logger   *observability.Logger

	// ModelOptions customize the model registry; tests install fake build
	// functions here.
	ModelOptions []llm.RegistryOption

	// HistoryCap overrides the bus history bound when non-zero.
	HistoryCap int
}

// Agent owns the bus, registries, cognitive loop, tool executor, and channel
// mux, and runs them as one unit.
type Agent struct {
	cfg *config.Settings
	log *observability.Logger

	bus      *bus.Bus
	tasks    *task.Registry
	tools    *tools.Registry
	models   *llm.Registry
	mux      *channels.Mux
	executor *tools.Executor
	loop     *loop.Loop
	mcp      *mcp.Manager
	skills   *skills.Registry

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	heartbeat chan struct{}

	// waiters close when their task reaches a terminal state; callbacks fire
	// once after TASK_COMPLETED.
	waiters   map[string]chan struct{}
	callbacks map[string][]func(*task.FSM)

	// pendingSubmits maps a submitted MESSAGE_RECEIVED event id to the
	// channel awaiting the allocated task id.
	pendingSubmits map[string]chan string
}

// New constructs an agent from settings. Builtin tools (echo, current_time,
// reply) are registered; adapters and MCP servers attach at Start.
func New(opts Options) (*Agent, error) {
	cfg := opts.Settings
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = observability.NewTestLogger()
	}

	b := bus.New(bus.Options{HistoryCap: opts.HistoryCap, Logger: log})
	taskReg := task.NewRegistry(cfg.Agent.MaxActiveTasks)
	toolReg := tools.NewRegistry()
	modelReg := llm.NewRegistry(cfg.LLM, log, opts.ModelOptions...)
	mux := channels.NewMux(b, log)

	executor := tools.NewExecutor(toolReg, b, tools.ExecutorConfig{
		Timeout:       time.Duration(cfg.Agent.TaskTimeout) * time.Second,
		MaxConcurrent: cfg.Agent.MaxConcurrentTools,
	}, log)

	cogLoop := loop.New(b, taskReg, toolReg, modelReg, loop.Config{
		MaxIterations: cfg.Agent.MaxCognitiveIterations,
	}, log)

	a := &Agent{
		cfg:            cfg,
		log:            log,
		bus:            b,
		tasks:          taskReg,
		tools:          toolReg,
		models:         modelReg,
		mux:            mux,
		executor:       executor,
		loop:           cogLoop,
		mcp:            mcp.NewManager(cfg.MCP, toolReg, log),
		skills:         skills.NewRegistry(log),
		waiters:        make(map[string]chan struct{}),
		callbacks:      make(map[string][]func(*task.FSM)),
		pendingSubmits: make(map[string]chan string),
	}

	for _, tool := range []tools.Tool{
		tools.NewEchoTool(),
		tools.NewTimeTool(),
		channels.NewReplyTool(mux),
	} {
		if err := toolReg.Register(tool); err != nil {
			return nil, fmt.Errorf("register builtin tool: %w", err)
		}
	}
	return a, nil
}

// Observable handles used by the CLI and tests.

func (a *Agent) Bus() *bus.Bus            { return a.bus }
func (a *Agent) Tasks() *task.Registry    { return a.tasks }
func (a *Agent) Tools() *tools.Registry   { return a.tools }
func (a *Agent) Models() *llm.Registry    { return a.models }
func (a *Agent) Mux() *channels.Mux       { return a.mux }
func (a *Agent) Skills() *skills.Registry { return a.skills }

// RegisterAdapter adds a channel adapter. Must be called before Start.
func (a *Agent) RegisterAdapter(adapter channels.Adapter) {
	a.mux.Register(adapter)
}

// Start brings the runtime up: bus dispatch, loop and executor handlers,
// MCP servers, adapters, heartbeat. Idempotent.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.heartbeat = make(chan struct{})
	a.mu.Unlock()

	a.loop.Attach(runCtx)
	a.executor.Attach()
	a.bus.Subscribe(models.EventTaskCreated, a.onTaskCreated)
	a.bus.Subscribe(models.EventTaskCompleted, a.onTaskTerminal)
	a.bus.Subscribe(models.EventTaskFailed, a.onTaskTerminal)
	a.bus.Subscribe(models.EventTaskCancelled, a.onTaskTerminal)
	a.bus.Start()

	a.mcp.LoadAll(runCtx)
	if loaded := a.skills.DiscoverDir(filepath.Join(a.cfg.DataDir, "skills"), skills.SourceUser); loaded > 0 {
		a.log.Info("user skills loaded", "count", loaded)
	}
	if err := a.mux.StartAll(runCtx); err != nil {
		a.Stop(ctx)
		return fmt.Errorf("start adapters: %w", err)
	}

	go a.heartbeatLoop(runCtx, a.heartbeat)

	a.bus.Emit(models.NewEvent(models.EventSystemStarted, models.SourceSystem, "", models.Payload{
		System: &models.SystemPayload{Message: "agent started"},
	}))
	a.log.Info("agent started",
		"max_active_tasks", a.cfg.Agent.MaxActiveTasks,
		"tools", a.tools.Stats().Total)
	return nil
}

// Stop brings the runtime down: SYSTEM_STOPPING, adapters, queue drain, bus.
// Idempotent.
func (a *Agent) Stop(ctx context.Context) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel := a.cancel
	heartbeat := a.heartbeat
	a.mu.Unlock()

	a.bus.Emit(models.NewEvent(models.EventSystemStopping, models.SourceSystem, "", models.Payload{
		System: &models.SystemPayload{Message: "agent stopping"},
	}))
	a.mux.StopAll(ctx)
	a.drain(ctx)
	cancel()
	<-heartbeat
	a.mcp.Close()
	a.bus.Stop()
	a.log.Info("agent stopped")
}

// drain waits for the bus to go idle, bounded by ctx or one second.
func (a *Agent) drain(ctx context.Context) {
	deadline := time.After(time.Second)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		if a.bus.Idle() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-tick.C:
		}
	}
}

func (a *Agent) heartbeatLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	interval := time.Duration(a.cfg.Agent.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.bus.Emit(models.NewEvent(models.EventHeartbeat, models.SourceSystem, "", models.Payload{
				System: &models.SystemPayload{Message: "heartbeat"},
			}))
		}
	}
}

// Submit synthesizes a MESSAGE_RECEIVED from a synthetic cli channel and
// returns the allocated task id, observed from the subsequent TASK_CREATED.
func (a *Agent) Submit(ctx context.Context, text string) (string, error) {
	msg := models.NewEvent(models.EventMessageReceived, string(models.ChannelCLI), "", models.Payload{
		Message: &models.MessagePayload{Inbound: models.Inbound{
			Text: text,
			Channel: models.ChannelCoordinate{
				Type:      models.ChannelCLI,
				ChannelID: "main",
			},
		}},
	})

	idCh := make(chan string, 1)
	a.mu.Lock()
	a.pendingSubmits[msg.ID] = idCh
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pendingSubmits, msg.ID)
		a.mu.Unlock()
	}()

	a.bus.Emit(msg)

	select {
	case id := <-idCh:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(submitTimeout):
		return "", fmt.Errorf("submit: no task created for input (capacity reached?)")
	}
}

// onTaskCreated resolves pending Submit calls by the causal link from the
// submitted message event.
func (a *Agent) onTaskCreated(ev models.Event) error {
	if ev.ParentEventID == "" {
		return nil
	}
	a.mu.Lock()
	idCh := a.pendingSubmits[ev.ParentEventID]
	delete(a.pendingSubmits, ev.ParentEventID)
	a.mu.Unlock()
	if idCh != nil {
		select {
		case idCh <- ev.TaskID:
		default:
		}
	}
	return nil
}

// CancelTask requests cancellation of a running task. The loop drives the
// FSM to CANCELLED and drops the task's later events.
func (a *Agent) CancelTask(taskID string) error {
	if _, err := a.tasks.Get(taskID); err != nil {
		return err
	}
	ev := models.NewEvent(models.EventTaskCancelled, models.SourceSystem, taskID, models.Payload{
		Task: &models.TaskPayload{TaskID: taskID, Message: "cancelled by request"},
	})
	a.bus.Emit(ev)
	return nil
}

// WaitForTask blocks until the task reaches a terminal state or the timeout
// elapses. A failed task returns the recorded failure; a cancelled task
// returns an error naming the cancellation.
func (a *Agent) WaitForTask(taskID string, timeout time.Duration) (*task.FSM, error) {
	fsm, err := a.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}

	waiter := a.terminalWaiter(taskID, fsm)
	select {
	case <-waiter:
	case <-time.After(timeout):
		return nil, fmt.Errorf("task %s: timed out after %s in state %s", taskID, timeout, fsm.Status())
	}

	switch fsm.Status() {
	case task.StatusCompleted:
		return fsm, nil
	case task.StatusFailed:
		return fsm, fsm.Failure()
	default:
		return fsm, fmt.Errorf("task %s cancelled", taskID)
	}
}

// OnTaskComplete registers a one-shot callback fired asynchronously after
// the task's TASK_COMPLETED. A task already completed fires immediately.
func (a *Agent) OnTaskComplete(taskID string, cb func(*task.FSM)) {
	fsm, err := a.tasks.Get(taskID)
	if err == nil && fsm.Status() == task.StatusCompleted {
		go cb(fsm)
		return
	}
	a.mu.Lock()
	a.callbacks[taskID] = append(a.callbacks[taskID], cb)
	a.mu.Unlock()
}

// terminalWaiter returns a channel closed when the task goes terminal,
// closed immediately if it already is.
func (a *Agent) terminalWaiter(taskID string, fsm *task.FSM) <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ch, ok := a.waiters[taskID]; ok {
		return ch
	}
	ch := make(chan struct{})
	if fsm.Terminal() {
		close(ch)
		return ch
	}
	a.waiters[taskID] = ch
	return ch
}

// onTaskTerminal releases waiters and fires completion callbacks.
func (a *Agent) onTaskTerminal(ev models.Event) error {
	taskID := ev.TaskID
	if taskID == "" && ev.Payload.Task != nil {
		taskID = ev.Payload.Task.TaskID
	}
	if taskID == "" {
		return nil
	}

	a.mu.Lock()
	waiter := a.waiters[taskID]
	delete(a.waiters, taskID)
	var cbs []func(*task.FSM)
	if ev.Type == models.EventTaskCompleted {
		cbs = a.callbacks[taskID]
		delete(a.callbacks, taskID)
	}
	a.mu.Unlock()

	if waiter != nil {
		close(waiter)
	}
	if len(cbs) > 0 {
		if fsm, err := a.tasks.Get(taskID); err == nil {
			for _, cb := range cbs {
				go cb(fsm)
			}
		}
	}
	return nil
}
