package moderation

import (
	"fmt"
	"sort"

	"tg-groupguard/internal/config"
	"tg-groupguard/internal/models"
)

type escalationStep struct {
	count  int
	action models.ActionType
}

// EscalationTable is an ordered mapping from cumulative active-warning
// counts to enforcement actions, loaded once at startup so the transition
// is a pure lookup.
type EscalationTable struct {
	steps []escalationStep
}

// NewEscalationTable builds a table from configuration. Steps are sorted by
// count; counts above the highest defined threshold reuse the highest
// action, never "no action" by omission.
func NewEscalationTable(steps []config.EscalationStep) (*EscalationTable, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("escalation table must define at least one step")
	}

	table := &EscalationTable{steps: make([]escalationStep, 0, len(steps))}
	for _, s := range steps {
		if s.Count < 1 {
			return nil, fmt.Errorf("escalation threshold must be >= 1, got %d", s.Count)
		}
		action := models.ActionType(s.Action)
		switch action {
		case models.ActionNone, models.ActionMute, models.ActionBan, models.ActionKick:
		default:
			return nil, fmt.Errorf("unknown escalation action %q", s.Action)
		}
		table.steps = append(table.steps, escalationStep{count: s.Count, action: action})
	}
	sort.Slice(table.steps, func(i, j int) bool { return table.steps[i].count < table.steps[j].count })

	return table, nil
}

// ActionFor returns the action configured for the given active-warning
// count: the step with the highest threshold not exceeding the count.
func (t *EscalationTable) ActionFor(count int) models.ActionType {
	action := models.ActionNone
	for _, step := range t.steps {
		if count < step.count {
			break
		}
		action = step.action
	}
	return action
}

// MaxThreshold returns the highest defined threshold.
func (t *EscalationTable) MaxThreshold() int {
	return t.steps[len(t.steps)-1].count
}
