package guardrails

import "testing"

func TestCheck_BlockShortCircuitsRemainingRules(t *testing.T) {
	var warnRan bool
	e := NewEngine(
		Guardrail{Name: "blocker", Severity: SeverityBlock, Evaluate: func(ec EvalContext) (bool, string) {
			return true, "nope"
		}},
		Guardrail{Name: "warner", Severity: SeverityWarn, Evaluate: func(ec EvalContext) (bool, string) {
			warnRan = true
			return true, "heads up"
		}},
	)

	verdict := e.Check(EvalContext{ToolName: "Shell"})
	if !verdict.Blocked || verdict.Rule != "blocker" {
		t.Fatalf("verdict = %+v, want blocked by blocker", verdict)
	}
	if warnRan {
		t.Error("warn rule ran after a block rule already matched")
	}
}

func TestCheck_WarnDoesNotBlock(t *testing.T) {
	e := NewEngine(Guardrail{Name: "warner", Severity: SeverityWarn, Evaluate: func(ec EvalContext) (bool, string) {
		return true, "heads up"
	}})

	verdict := e.Check(EvalContext{ToolName: "Shell"})
	if verdict.Blocked {
		t.Error("warn-severity match should not block")
	}
	if verdict.Rule != "warner" {
		t.Errorf("verdict.Rule = %q, want warner", verdict.Rule)
	}
}

func TestCheck_NoMatchReturnsEmptyVerdict(t *testing.T) {
	e := NewEngine(Guardrail{Name: "never", Severity: SeverityBlock, Evaluate: func(ec EvalContext) (bool, string) {
		return false, ""
	}})

	verdict := e.Check(EvalContext{ToolName: "Shell"})
	if verdict.Blocked || verdict.Rule != "" {
		t.Errorf("verdict = %+v, want zero value", verdict)
	}
}

func TestShellArgs(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{"splits whitespace", map[string]any{"command": "ls -la /tmp"}, []string{"ls", "-la", "/tmp"}},
		{"missing command", map[string]any{}, nil},
		{"blank command", map[string]any{"command": "   "}, nil},
		{"non-string command", map[string]any{"command": 5}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShellArgs(EvalContext{ToolArguments: tt.args})
			if len(got) != len(tt.want) {
				t.Fatalf("ShellArgs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ShellArgs()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDefaultShellGuardrails_BlocksBannedCommand(t *testing.T) {
	e := NewEngine(DefaultShellGuardrails()...)
	verdict := e.Check(EvalContext{ToolName: "Shell", ToolArguments: map[string]any{"command": "curl http://example.com"}})
	if !verdict.Blocked || verdict.Rule != "shell.banned_commands" {
		t.Fatalf("verdict = %+v, want blocked by shell.banned_commands", verdict)
	}
}

func TestDefaultShellGuardrails_BlocksGlobalInstall(t *testing.T) {
	e := NewEngine(DefaultShellGuardrails()...)
	for _, cmd := range []string{"npm install -g foo", "pnpm add --global foo", "yarn global add foo"} {
		verdict := e.Check(EvalContext{ToolName: "Shell", ToolArguments: map[string]any{"command": cmd}})
		if !verdict.Blocked || verdict.Rule != "shell.global_installs" {
			t.Errorf("command %q: verdict = %+v, want blocked by shell.global_installs", cmd, verdict)
		}
	}
}

func TestDefaultShellGuardrails_BlocksGoTestExecFlag(t *testing.T) {
	e := NewEngine(DefaultShellGuardrails()...)
	verdict := e.Check(EvalContext{ToolName: "Shell", ToolArguments: map[string]any{"command": "go test ./... -exec run-wrapper"}})
	if !verdict.Blocked || verdict.Rule != "shell.exec_escape" {
		t.Fatalf("verdict = %+v, want blocked by shell.exec_escape", verdict)
	}
}

func TestDefaultShellGuardrails_AllowsOrdinaryCommand(t *testing.T) {
	e := NewEngine(DefaultShellGuardrails()...)
	verdict := e.Check(EvalContext{ToolName: "Shell", ToolArguments: map[string]any{"command": "go build ./..."}})
	if verdict.Blocked {
		t.Errorf("unexpected block: %+v", verdict)
	}
}
