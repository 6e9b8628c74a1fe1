// Package terminal implements the interactive CLI channel adapter.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/prismbot/prism/internal/channels"
	"github.com/prismbot/prism/internal/observability"
	"github.com/prismbot/prism/pkg/models"
)

// DefaultChannelID is the channel id used for the single terminal session.
const DefaultChannelID = "main"

const helpText = `Commands:
  /help        show this help
  /exit, /quit leave the session
Anything else is sent to the agent.`

// Adapter reads lines from the terminal and prints delivered replies.
// The /help, /exit, and /quit commands are handled locally and never reach
// the bus.
type Adapter struct {
	in  io.Reader
	out io.Writer
	log *observability.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool

	// Done closes when the user exits the session.
	done chan struct{}
}

// Options configures the terminal adapter. Zero values use stdin/stdout.
type Options struct {
	In     io.Reader
	Out    io.Writer
	Logger *observability.Logger
}

// New creates a terminal adapter.
func New(opts Options) *Adapter {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewTestLogger()
	}
	return &Adapter{
		in:   opts.In,
		out:  opts.Out,
		log:  opts.Logger,
		done: make(chan struct{}),
	}
}

// Type returns the cli channel type.
func (a *Adapter) Type() models.ChannelType { return models.ChannelCLI }

// Done closes when the user exits with /exit or /quit, or input ends.
func (a *Adapter) Done() <-chan struct{} { return a.done }

// Start begins the read loop on a goroutine.
func (a *Adapter) Start(ctx context.Context, send channels.SendFunc) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintln(a.out, "prism interactive session. /help for commands.")
	}

	go a.readLoop(runCtx, send)
	return nil
}

func (a *Adapter) readLoop(ctx context.Context, send channels.SendFunc) {
	defer close(a.done)
	scanner := bufio.NewScanner(a.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/help":
			fmt.Fprintln(a.out, helpText)
		case line == "/exit" || line == "/quit":
			return
		default:
			send(models.Inbound{
				Text: line,
				Channel: models.ChannelCoordinate{
					Type:      models.ChannelCLI,
					ChannelID: DefaultChannelID,
				},
			})
		}
	}
	if err := scanner.Err(); err != nil {
		a.log.Warn("terminal read failed", "error", err)
	}
}

// Deliver prints a reply to the terminal.
func (a *Adapter) Deliver(ctx context.Context, msg models.Outbound) error {
	_, err := fmt.Fprintln(a.out, msg.Text)
	return err
}

// Stop ends the read loop. Idempotent.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil
	}
	a.stopped = true
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}
