// Package classifier implements the Classifier (C4, spec §4.4): a pure,
// order-free mapping from a task's kind/description to a complexity level.
// It never calls out to a backend or mutates shared state.
package classifier

import (
	"strings"

	"github.com/apto-as/trinitas-core/internal/task"
)

// kindLevels is the closed ~25-entry task.kind -> level map (spec §4.4 rule 1).
var kindLevels = map[string]task.Level{
	"file_list":         task.L1,
	"file_search":       task.L1,
	"command_run":       task.L1,
	"format_code":       task.L1,
	"rename_symbol":     task.L1,
	"list_dependencies": task.L1,

	"pattern_search":  task.L2,
	"metrics_report":  task.L2,
	"test_generation": task.L2,
	"lint_report":     task.L2,
	"log_analysis":    task.L2,
	"data_extraction": task.L2,

	"debug_analysis": task.L3,
	"root_cause":     task.L3,
	"code_review":    task.L3,
	"regression_hunt": task.L3,

	"design_proposal": task.L4,
	"algorithm_design": task.L4,
	"code_synthesis":  task.L4,
	"api_design":      task.L4,
	"refactor_plan":   task.L4,

	"architecture_review": task.L5,
	"roadmap_planning":    task.L5,
	"security_audit":      task.L5,
	"capacity_planning":   task.L5,
	"migration_strategy":  task.L5,
}

// category is a keyword-scan bucket (spec §4.4 rule 2), ordered by weight:
// strategic first, mechanical last. The scan stops at the first match.
type category struct {
	level    task.Level
	keywords []string
}

var categories = []category{
	{level: task.L5, keywords: []string{"architecture", "roadmap", "scalability"}},
	{level: task.L4, keywords: []string{"design", "invent", "from scratch"}},
	{level: task.L3, keywords: []string{"why", "debug", "root cause"}},
	{level: task.L2, keywords: []string{"find", "compare", "statistics"}},
}

// Classify returns t's complexity level. It is pure: same input, same
// output, no I/O.
func Classify(t *task.Task) task.Level {
	if t.Complexity != task.LevelUnspecified {
		return t.Complexity
	}
	if level, ok := kindLevels[t.Kind]; ok {
		return level
	}

	description := strings.ToLower(t.Description)
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(description, kw) {
				return c.level
			}
		}
	}

	return task.L1
}

// RoutingAffinity returns the default backend affinity name for a level
// (spec §4.4's table), used by the Delegation Engine's "otherwise" branches.
func RoutingAffinity(level task.Level) string {
	switch level {
	case task.L1, task.L2:
		return "LOCAL"
	default:
		return "MAIN"
	}
}
