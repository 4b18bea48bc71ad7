package classifier

import (
	"testing"

	"github.com/apto-as/trinitas-core/internal/task"
)

func TestClassify_KindMapTakesPrecedence(t *testing.T) {
	tk := &task.Task{Kind: "file_search", Description: "architecture roadmap scalability"}
	if got := Classify(tk); got != task.L1 {
		t.Fatalf("Classify() = %v, want L1", got)
	}
}

func TestClassify_KeywordScanOrderStrategicFirst(t *testing.T) {
	tk := &task.Task{Description: "debug the architecture roadmap"}
	if got := Classify(tk); got != task.L5 {
		t.Fatalf("Classify() = %v, want L5", got)
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	tk := &task.Task{Description: "Please DEBUG this failure"}
	if got := Classify(tk); got != task.L3 {
		t.Fatalf("Classify() = %v, want L3", got)
	}
}

func TestClassify_DefaultsToL1(t *testing.T) {
	tk := &task.Task{Description: "do the thing"}
	if got := Classify(tk); got != task.L1 {
		t.Fatalf("Classify() = %v, want L1", got)
	}
}

func TestClassify_ExplicitComplexityHonoured(t *testing.T) {
	tk := &task.Task{Description: "architecture", Complexity: task.L2}
	if got := Classify(tk); got != task.L2 {
		t.Fatalf("Classify() = %v, want L2 (preset honoured)", got)
	}
}

func TestRoutingAffinity(t *testing.T) {
	cases := map[task.Level]string{
		task.L1: "LOCAL",
		task.L2: "LOCAL",
		task.L3: "MAIN",
		task.L4: "MAIN",
		task.L5: "MAIN",
	}
	for level, want := range cases {
		if got := RoutingAffinity(level); got != want {
			t.Fatalf("RoutingAffinity(%v) = %q, want %q", level, got, want)
		}
	}
}
