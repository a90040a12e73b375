// Package cli implements the interactive terminal chat.
package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/recthink/recthink-client/internal/domain"
	"github.com/recthink/recthink-client/internal/state"
	"github.com/recthink/recthink-client/internal/transport"
)

// Controller is the subset of the session controller the REPL drives.
type Controller interface {
	Snapshot() state.State
	Subscribe(ctx context.Context) <-chan state.State
	StartSession(ctx context.Context) bool
	SendMessage(ctx context.Context, content string) bool
	SaveConversation(ctx context.Context, filename string, fullLog bool) (*transport.SaveResult, bool)
	DeleteSession(ctx context.Context, id string) bool
	LoadSessions(ctx context.Context) bool
	SetModel(model string) bool
	SetThinkingRounds(p domain.RoundPolicy) bool
	SetAlternativesPerRound(n int) bool
	SetShowThinkingProcess(show bool) bool
}

// REPL reads lines from in and drives the controller.
type REPL struct {
	ctrl     Controller
	renderer *Renderer
	in       *bufio.Reader
	prompt   io.Writer
}

// NewREPL creates a REPL reading from in. The prompt is written to prompt.
func NewREPL(ctrl Controller, renderer *Renderer, in io.Reader, prompt io.Writer) *REPL {
	return &REPL{ctrl: ctrl, renderer: renderer, in: bufio.NewReader(in), prompt: prompt}
}

// Run starts a session and processes input until /quit, EOF or ctx ends.
func (r *REPL) Run(ctx context.Context) error {
	if !r.ctrl.StartSession(ctx) {
		return errors.New(r.ctrl.Snapshot().Error)
	}
	st := r.ctrl.Snapshot()
	r.renderer.Banner(st.Settings.Model, st.Status)
	for _, m := range st.Messages {
		r.renderer.Message(m)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := r.readLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "/") {
			if quit := r.handleCommand(ctx, parseCommand(trimmed)); quit {
				return nil
			}
			continue
		}

		r.send(ctx, trimmed)
	}
}

// readLine reads one logical line. A trailing backslash continues it.
func (r *REPL) readLine() (string, error) {
	var lines []string
	for {
		prompt := "> "
		if len(lines) > 0 {
			prompt = "... "
		}
		_, _ = io.WriteString(r.prompt, prompt)
		line, err := r.in.ReadString('\n')
		if err != nil {
			if len(lines) == 0 && line == "" {
				return "", err
			}
			return strings.Join(append(lines, strings.TrimRight(line, "\r\n")), "\n"), nil
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.HasSuffix(line, "\\") {
			lines = append(lines, strings.TrimSuffix(line, "\\"))
			continue
		}
		lines = append(lines, line)
		return strings.Join(lines, "\n"), nil
	}
}

func (r *REPL) send(ctx context.Context, content string) {
	before := len(r.ctrl.Snapshot().Messages)

	watchCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.watchProgress(watchCtx)
	}()

	ok := r.ctrl.SendMessage(ctx, content)
	stop()
	<-done

	st := r.ctrl.Snapshot()
	if !ok && len(st.Messages) <= before+1 {
		r.renderer.Error(st.Error)
		return
	}
	// The user message is already on screen as typed input.
	for _, m := range st.Messages[min(before+1, len(st.Messages)):] {
		r.renderer.Message(m)
	}
	if st.Settings.ShowThinkingProcess {
		r.renderer.Thinking(st.Thinking)
	}
}

// watchProgress echoes the growing partial output of the pending reply.
func (r *REPL) watchProgress(ctx context.Context) {
	shown := 0
	for st := range r.ctrl.Subscribe(ctx) {
		if len(st.Progress) < shown {
			shown = 0
		}
		if len(st.Progress) > shown {
			r.renderer.Progress(st.Progress[shown:])
			shown = len(st.Progress)
		}
	}
	if shown > 0 {
		r.renderer.Progress("\n")
	}
}

func (r *REPL) handleCommand(ctx context.Context, cmd command) bool {
	switch cmd.kind {
	case cmdQuit:
		return true
	case cmdHelp:
		r.renderer.Help()
	case cmdNew:
		if !r.ctrl.StartSession(ctx) {
			r.renderer.Error(r.ctrl.Snapshot().Error)
			break
		}
		st := r.ctrl.Snapshot()
		r.renderer.Info("new session %s", st.SessionID())
		for _, m := range st.Messages {
			r.renderer.Message(m)
		}
	case cmdSave, cmdFull:
		res, ok := r.ctrl.SaveConversation(ctx, cmd.arg, cmd.kind == cmdFull)
		if !ok {
			r.renderer.Error(r.ctrl.Snapshot().Error)
			break
		}
		r.renderer.Saved(res)
	case cmdSessions:
		if !r.ctrl.LoadSessions(ctx) {
			r.renderer.Error(r.ctrl.Snapshot().Error)
			break
		}
		st := r.ctrl.Snapshot()
		r.renderer.Sessions(st.Sessions, st.SessionID())
	case cmdDelete:
		if cmd.arg == "" {
			r.renderer.Error("usage: /delete <id>")
			break
		}
		if !r.ctrl.DeleteSession(ctx, cmd.arg) {
			r.renderer.Error(r.ctrl.Snapshot().Error)
			break
		}
		r.renderer.Info("deleted %s", cmd.arg)
	case cmdThinking:
		show := !r.ctrl.Snapshot().Settings.ShowThinkingProcess
		r.ctrl.SetShowThinkingProcess(show)
		if show {
			r.renderer.Info("thinking process shown")
			r.renderer.Thinking(r.ctrl.Snapshot().Thinking)
		} else {
			r.renderer.Info("thinking process hidden")
		}
	case cmdModel:
		r.applySetting(r.ctrl.SetModel(cmd.arg), "model set to %s", cmd.arg)
	case cmdRounds:
		p, err := domain.ParseRoundPolicy(cmd.arg)
		if err != nil {
			r.renderer.Error(err.Error())
			break
		}
		r.applySetting(r.ctrl.SetThinkingRounds(p), "thinking rounds set to %s", p)
	case cmdAlternatives:
		n, err := strconv.Atoi(strings.TrimSpace(cmd.arg))
		if err != nil {
			r.renderer.Error("usage: /alternatives <n>")
			break
		}
		r.applySetting(r.ctrl.SetAlternativesPerRound(n), "alternatives per round set to %d", n)
	default:
		r.renderer.Error("unknown command " + cmd.raw)
		r.renderer.Help()
	}
	return false
}

func (r *REPL) applySetting(ok bool, format string, arg any) {
	if !ok {
		r.renderer.Error(r.ctrl.Snapshot().Error)
		return
	}
	r.renderer.Info(format, arg)
}
