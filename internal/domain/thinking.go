package domain

import (
	"errors"
	"fmt"
)

var (
	errNoSelectedStep      = errors.New("no selected thinking step")
	errUnselectedRationale = errors.New("explanation on unselected thinking step")
)

// ThinkingStep is one draft produced during a thinking round.
type ThinkingStep struct {
	Round       int    `json:"round"`
	Alternative *int   `json:"alternative_number,omitempty"`
	Response    string `json:"response"`
	Selected    bool   `json:"selected"`
	Explanation string `json:"explanation,omitempty"`
}

// Reply is the terminal success payload shared by the REST response and the
// stream "final" frame.
type Reply struct {
	Response        string         `json:"response"`
	ThinkingRounds  int            `json:"thinking_rounds"`
	ThinkingHistory []ThinkingStep `json:"thinking_history"`
}

// ThinkingProcess is the snapshot attached to the latest assistant turn.
// It is always replaced as a whole.
type ThinkingProcess struct {
	Rounds  int            `json:"rounds"`
	History []ThinkingStep `json:"history"`
}

// NewThinkingProcess builds a normalized snapshot from a reply.
//
// Explanations are dropped from unselected steps. When the backend marked no
// step at all, the step whose response equals the final answer is selected,
// falling back to the last step.
func NewThinkingProcess(r Reply) *ThinkingProcess {
	history := make([]ThinkingStep, len(r.ThinkingHistory))
	copy(history, r.ThinkingHistory)

	anySelected := false
	for i := range history {
		if history[i].Alternative != nil {
			alt := *history[i].Alternative
			history[i].Alternative = &alt
		}
		if history[i].Selected {
			anySelected = true
			continue
		}
		history[i].Explanation = ""
	}

	if !anySelected && len(history) > 0 {
		idx := len(history) - 1
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Response == r.Response {
				idx = i
				break
			}
		}
		history[idx].Selected = true
	}

	rounds := r.ThinkingRounds
	if rounds < 0 {
		rounds = 0
	}
	return &ThinkingProcess{Rounds: rounds, History: history}
}

// Selected returns the steps that were carried forward.
func (p *ThinkingProcess) Selected() []ThinkingStep {
	if p == nil {
		return nil
	}
	var out []ThinkingStep
	for _, s := range p.History {
		if s.Selected {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the selected-step invariants.
func (p *ThinkingProcess) Validate() error {
	if p == nil {
		return nil
	}
	if p.Rounds < 0 {
		return fmt.Errorf("%w: negative round count %d", ErrValidation, p.Rounds)
	}
	selected := 0
	for i, s := range p.History {
		if s.Round < 1 {
			return fmt.Errorf("%w: step %d has round %d", ErrValidation, i, s.Round)
		}
		if s.Selected {
			selected++
		} else if s.Explanation != "" {
			return fmt.Errorf("%w: step %d", errUnselectedRationale, i)
		}
	}
	if len(p.History) > 0 && selected == 0 {
		return errNoSelectedStep
	}
	return nil
}

// Clone returns a deep copy so snapshots never share step slices.
func (p *ThinkingProcess) Clone() *ThinkingProcess {
	if p == nil {
		return nil
	}
	history := make([]ThinkingStep, len(p.History))
	copy(history, p.History)
	for i := range history {
		if history[i].Alternative != nil {
			alt := *history[i].Alternative
			history[i].Alternative = &alt
		}
	}
	return &ThinkingProcess{Rounds: p.Rounds, History: history}
}
