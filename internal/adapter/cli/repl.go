// Package cli is the interactive terminal front end: a liner-based REPL that
// turns input lines into messages or typed command signals, renders streamed
// responses, and translates Ctrl-C into cancellation of the in-flight send.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"

	"parley/internal/usecase"
)

// REPL owns the interactive loop. All state transitions go through the
// orchestrator; the REPL only reads lines, parses commands, and renders.
type REPL struct {
	orch        *usecase.Orchestrator
	session     *usecase.Session
	logger      *slog.Logger
	line        *liner.State
	historyFile string

	// cancel interrupts the in-flight send, if any. Written by the loop
	// goroutine, called from the signal goroutine.
	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds the REPL and loads input history from historyFile.
func New(orch *usecase.Orchestrator, session *usecase.Session, historyFile string, logger *slog.Logger) *REPL {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	r := &REPL{
		orch:        orch,
		session:     session,
		logger:      logger,
		line:        line,
		historyFile: historyFile,
	}
	if f, err := os.Open(historyFile); err == nil {
		if _, err := line.ReadHistory(f); err != nil {
			logger.Warn("could not read input history", "file", historyFile, "error", err)
		}
		f.Close()
	}
	return r
}

// Close persists input history and restores the terminal.
func (r *REPL) Close() {
	if r.historyFile != "" {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// Run drives the loop until /exit, EOF, or ctx cancellation. SIGINT cancels
// the in-flight send when one is running; at an idle prompt it aborts the
// line instead of killing the process.
func (r *REPL) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		for range sigCh {
			r.mu.Lock()
			cancel := r.cancel
			r.mu.Unlock()
			if cancel != nil {
				cancel()
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		input, err := r.line.Prompt(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				// Ctrl-C at an empty prompt: drop the line, keep running.
				continue
			}
			// EOF or a broken terminal ends the session.
			fmt.Println()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		quit, err := r.dispatch(ctx, input)
		if err != nil {
			Console{}.Error("%v", err)
		}
		if quit {
			return nil
		}
	}
}

func (r *REPL) dispatch(ctx context.Context, input string) (quit bool, err error) {
	if input == "/help" || input == "/?" {
		fmt.Println(helpText)
		return false, nil
	}

	sig, isCommand, err := ParseCommand(input)
	if err != nil {
		return false, err
	}
	if isCommand {
		return r.orch.HandleSignal(ctx, sig)
	}

	sendCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	err = r.orch.HandleMessage(sendCtx, input)

	r.mu.Lock()
	r.cancel = nil
	r.mu.Unlock()
	cancel()
	return false, err
}

// prompt reflects the active mode so the operator always knows which state
// machine branch the next line feeds.
func (r *REPL) prompt() string {
	switch {
	case r.session.Retry != nil:
		return warnStyle.Render(fmt.Sprintf("retry[%d]> ", len(r.session.Retry.Attempts())))
	case r.session.Secret != nil:
		return warnStyle.Render("secret> ")
	case !r.session.ChatOpen():
		return promptStyle.Render("parley> ")
	default:
		return promptStyle.Render(fmt.Sprintf("parley:%s> ", shortID(r.session.ChatID)))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return strings.ToLower(id[:8])
	}
	return strings.ToLower(id)
}
