package domain

import (
	"errors"
	"testing"
)

func intPtr(n int) *int { return &n }

func TestNewThinkingProcessKeepsBackendSelection(t *testing.T) {
	r := Reply{
		Response:       "final",
		ThinkingRounds: 2,
		ThinkingHistory: []ThinkingStep{
			{Round: 1, Alternative: intPtr(1), Response: "a", Explanation: "stray"},
			{Round: 1, Alternative: intPtr(2), Response: "b", Selected: true, Explanation: "better"},
			{Round: 2, Response: "final", Selected: true, Explanation: "best"},
		},
	}
	p := NewThinkingProcess(r)

	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if p.History[0].Explanation != "" {
		t.Errorf("unselected step kept explanation %q", p.History[0].Explanation)
	}
	if got := len(p.Selected()); got != 2 {
		t.Errorf("len(Selected()) = %d, want 2", got)
	}

	// The reply must not be aliased.
	*r.ThinkingHistory[1].Alternative = 9
	if *p.History[1].Alternative != 2 {
		t.Errorf("snapshot shares alternative pointer with reply")
	}
}

func TestNewThinkingProcessSelectsWhenBackendDidNot(t *testing.T) {
	tests := []struct {
		name    string
		reply   Reply
		wantIdx int
	}{
		{
			name: "matching response",
			reply: Reply{Response: "b", ThinkingHistory: []ThinkingStep{
				{Round: 1, Response: "a"}, {Round: 2, Response: "b"}, {Round: 3, Response: "c"},
			}},
			wantIdx: 1,
		},
		{
			name: "falls back to last",
			reply: Reply{Response: "z", ThinkingHistory: []ThinkingStep{
				{Round: 1, Response: "a"}, {Round: 2, Response: "b"},
			}},
			wantIdx: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewThinkingProcess(tt.reply)
			for i, s := range p.History {
				if s.Selected != (i == tt.wantIdx) {
					t.Errorf("step %d selected = %v", i, s.Selected)
				}
			}
			if err := p.Validate(); err != nil {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestNewThinkingProcessEmptyHistory(t *testing.T) {
	p := NewThinkingProcess(Reply{Response: "x", ThinkingRounds: -1})
	if p.Rounds != 0 {
		t.Errorf("Rounds = %d, want 0", p.Rounds)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestThinkingProcessValidate(t *testing.T) {
	none := &ThinkingProcess{Rounds: 1, History: []ThinkingStep{{Round: 1, Response: "a"}}}
	if err := none.Validate(); !errors.Is(err, errNoSelectedStep) {
		t.Errorf("Validate() = %v, want errNoSelectedStep", err)
	}

	rationale := &ThinkingProcess{Rounds: 1, History: []ThinkingStep{
		{Round: 1, Response: "a", Selected: true},
		{Round: 1, Response: "b", Explanation: "why not"},
	}}
	if err := rationale.Validate(); !errors.Is(err, errUnselectedRationale) {
		t.Errorf("Validate() = %v, want errUnselectedRationale", err)
	}

	zeroRound := &ThinkingProcess{Rounds: 1, History: []ThinkingStep{{Round: 0, Selected: true}}}
	if err := zeroRound.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("Validate() = %v, want ErrValidation", err)
	}

	var nilProcess *ThinkingProcess
	if err := nilProcess.Validate(); err != nil {
		t.Errorf("nil Validate() = %v", err)
	}
	if nilProcess.Clone() != nil {
		t.Errorf("nil Clone() != nil")
	}
}

func TestThinkingProcessClone(t *testing.T) {
	p := &ThinkingProcess{Rounds: 1, History: []ThinkingStep{{Round: 1, Alternative: intPtr(1), Response: "a", Selected: true}}}
	c := p.Clone()
	c.History[0].Response = "changed"
	*c.History[0].Alternative = 5

	if p.History[0].Response != "a" || *p.History[0].Alternative != 1 {
		t.Errorf("Clone shares memory with original: %+v", p.History[0])
	}
}
