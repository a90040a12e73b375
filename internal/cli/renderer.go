package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/recthink/recthink-client/internal/domain"
	"github.com/recthink/recthink-client/internal/transport"
)

// Renderer paints conversation state to a terminal.
type Renderer struct {
	out io.Writer
	err io.Writer

	user      *color.Color
	assistant *color.Color
	muted     *color.Color
	selected  *color.Color
	failure   *color.Color
}

// NewRenderer writes conversation output to out and diagnostics to errOut.
func NewRenderer(out, errOut io.Writer, noColor bool) *Renderer {
	if noColor {
		color.NoColor = true
	}
	return &Renderer{
		out:       out,
		err:       errOut,
		user:      color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgGreen, color.Bold),
		muted:     color.New(color.FgHiBlack),
		selected:  color.New(color.FgYellow),
		failure:   color.New(color.FgRed),
	}
}

func (r *Renderer) Banner(model string, status domain.ConnectionStatus) {
	fmt.Fprintln(r.err, r.muted.Sprintf("RecThink chat, model %s, stream %s. Type /help for commands.", model, status))
}

func (r *Renderer) Help() {
	fmt.Fprintln(r.out, helpText)
}

func (r *Renderer) Message(m domain.Message) {
	switch m.Role {
	case domain.RoleUser:
		fmt.Fprintf(r.out, "%s %s\n", r.user.Sprint("you ›"), m.Content)
	default:
		fmt.Fprintf(r.out, "%s %s\n", r.assistant.Sprint("recthink ›"), m.Content)
	}
}

// Progress echoes partial output while a reply is pending.
func (r *Renderer) Progress(text string) {
	fmt.Fprint(r.err, r.muted.Sprint(text))
}

func (r *Renderer) Thinking(p *domain.ThinkingProcess) {
	if p == nil {
		return
	}
	fmt.Fprintln(r.out, r.muted.Sprintf("── thinking: %d round(s) ──", p.Rounds))
	for _, s := range p.History {
		label := fmt.Sprintf("round %d", s.Round)
		if s.Alternative != nil {
			label += fmt.Sprintf(", alternative %d", *s.Alternative)
		}
		if s.Selected {
			fmt.Fprintln(r.out, r.selected.Sprintf("✓ %s", label))
		} else {
			fmt.Fprintln(r.out, r.muted.Sprintf("  %s", label))
		}
		fmt.Fprintln(r.out, indent(s.Response))
		if s.Explanation != "" {
			fmt.Fprintln(r.out, r.selected.Sprintf("  why: %s", s.Explanation))
		}
	}
}

func (r *Renderer) Sessions(list []domain.SessionSummary, current string) {
	if len(list) == 0 {
		fmt.Fprintln(r.out, r.muted.Sprint("no sessions"))
		return
	}
	for _, s := range list {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s  %d message(s)", marker, s.ID, s.MessageCount)
		if s.CreatedAt != "" {
			line += "  " + s.CreatedAt
		}
		fmt.Fprintln(r.out, line)
	}
}

func (r *Renderer) Saved(res *transport.SaveResult) {
	fmt.Fprintln(r.out, r.muted.Sprintf("saved to %s", res.Location()))
}

func (r *Renderer) Info(format string, args ...any) {
	fmt.Fprintln(r.out, r.muted.Sprintf(format, args...))
}

func (r *Renderer) Error(msg string) {
	fmt.Fprintln(r.err, r.failure.Sprintf("error: %s", msg))
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
