package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/climarisk/internal/jsonout"
	"github.com/mohammad-safakhou/climarisk/internal/llm"
	"github.com/mohammad-safakhou/climarisk/internal/llm/llmtest"
	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
	"github.com/mohammad-safakhou/climarisk/internal/validator"
)

var parisFlood = validator.UserRequestValidation{
	Valid:      true,
	Message:    "Quels risques d'inondation pour Paris ?",
	Risks:      []string{"Inondation"},
	Locations:  []string{"Paris"},
	AdminLevel: taxonomy.Commune,
}

var settings = llm.ModelSettings{Model: "planning-model", MaxTokens: 2048}

func planJSON(t *testing.T, tasks []SubTask) string {
	t.Helper()
	b, err := json.Marshal(tasks)
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	return string(b)
}

func TestPlanRetryBound(t *testing.T) {
	const maxAttempts = 3
	valid := planJSON(t, CanonicalPlan(parisFlood))
	for k := 0; k <= maxAttempts+1; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			replies := make([]string, 0, k+1)
			for i := 0; i < k; i++ {
				replies = append(replies, `[{"task": "SEARCH_DOCS", "description": `)
			}
			replies = append(replies, valid)
			client := llmtest.NewScripted(replies...)
			p := New(client, settings, llm.Policy{MaxAttempts: maxAttempts}, nil)

			tasks, err := p.Plan(context.Background(), parisFlood)
			if succeeded := err == nil; succeeded != (k < maxAttempts) {
				t.Fatalf("k=%d: success=%v err=%v", k, succeeded, err)
			}
			if want := min(k+1, maxAttempts); client.CallCount() != want {
				t.Fatalf("k=%d: expected %d calls, got %d", k, want, client.CallCount())
			}
			if err == nil && len(tasks) != 4 {
				t.Fatalf("expected 4 tasks, got %d", len(tasks))
			}
			if err != nil {
				var ae *llm.AttemptsError
				var de *jsonout.DecodeError
				if !errors.As(err, &ae) || ae.Attempts != maxAttempts || !errors.As(err, &de) {
					t.Fatalf("expected attempts error wrapping decode error, got %v", err)
				}
			}
		})
	}
}

func TestPlanAppendsMalformedAnswerAndCorrection(t *testing.T) {
	malformed := `[{"description": "oubli du type"}]`
	client := llmtest.NewScripted(malformed, planJSON(t, CanonicalPlan(parisFlood)))
	p := New(client, settings, llm.Policy{MaxAttempts: 3}, nil)
	if _, err := p.Plan(context.Background(), parisFlood); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	calls := client.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	first, second := calls[0].Messages, calls[1].Messages
	if len(first) != 1 || first[0].Role != llm.RoleSystem {
		t.Fatalf("first call should carry the planning prompt only: %+v", first)
	}
	if len(second) != 3 {
		t.Fatalf("expected prompt + malformed answer + correction, got %d messages", len(second))
	}
	if second[0].Content != first[0].Content {
		t.Fatalf("original prompt must be replayed verbatim")
	}
	if second[1].Role != llm.RoleAssistant || second[1].Content != malformed {
		t.Fatalf("malformed answer not appended: %+v", second[1])
	}
	if second[2].Role != llm.RoleSystem || !strings.Contains(second[2].Content, `"task"`) {
		t.Fatalf("correction should restate the shape: %+v", second[2])
	}
}

func TestPlanRepairsForwardReferences(t *testing.T) {
	bad := planJSON(t, []SubTask{
		{Task: AnalyzeDocs, Description: "a", Args: Args{"in": SearchOutput}, Out: AnalysisOutput},
		{Task: SearchDocs, Description: "s", Args: Args{"lieux": []string{"Paris"}}, Out: SearchOutput},
	})
	client := llmtest.NewScripted(bad, planJSON(t, CanonicalPlan(parisFlood)))
	p := New(client, settings, llm.Policy{MaxAttempts: 2}, nil)
	if _, err := p.Plan(context.Background(), parisFlood); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	correction := client.Calls()[1].Messages[2].Content
	if !strings.Contains(correction, "only produced later") {
		t.Fatalf("correction should quote the dependency error: %q", correction)
	}
}

func TestPlanRejectsUnregisteredTaskTypes(t *testing.T) {
	plan := planJSON(t, []SubTask{{Task: "SEND_EMAIL", Description: "x"}})
	client := llmtest.NewScripted(plan, plan)
	p := New(client, settings, llm.Policy{MaxAttempts: 2}, nil, WithTaskTypes(CanonicalTypes()...))
	_, err := p.Plan(context.Background(), parisFlood)
	if !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected invalid plan, got %v", err)
	}
	if !strings.Contains(client.Calls()[0].Messages[0].Content, "SEARCH_DOCS, ANALYZE_DOCS, DATAVIZ, SYNTHESIZE") {
		t.Fatalf("prompt should list the registered task types")
	}
}

func TestPlanTransportErrorIsNotRetried(t *testing.T) {
	boom := errors.New("503 from provider")
	client := &llmtest.ScriptedClient{Replies: []llmtest.Reply{llmtest.Fail(boom), llmtest.Text("[]")}}
	p := New(client, settings, llm.Policy{MaxAttempts: 3}, nil)
	if _, err := p.Plan(context.Background(), parisFlood); !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if client.CallCount() != 1 {
		t.Fatalf("transport errors must not consume attempts, got %d calls", client.CallCount())
	}
}

func TestPlanRequiresValidatedRequest(t *testing.T) {
	client := llmtest.NewScripted()
	p := New(client, settings, llm.Policy{}, nil)
	if _, err := p.Plan(context.Background(), validator.Rejected("x")); !errors.Is(err, ErrNotValidated) {
		t.Fatalf("expected ErrNotValidated, got %v", err)
	}
	if client.CallCount() != 0 {
		t.Fatalf("model must not be called")
	}
}

func TestScenarioParisFloodPlan(t *testing.T) {
	client := llmtest.NewScripted("```json\n" + planJSON(t, CanonicalPlan(parisFlood)) + "\n```")
	p := New(client, settings, llm.Policy{MaxAttempts: 3}, nil, WithTaskTypes(CanonicalTypes()...))
	tasks, err := p.Plan(context.Background(), parisFlood)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(tasks) < 3 || len(tasks) > 4 {
		t.Fatalf("expected 3-4 tasks, got %d", len(tasks))
	}
	if tasks[0].Task != SearchDocs {
		t.Fatalf("plan must start with SEARCH_DOCS, got %s", tasks[0].Task)
	}
	docs, err := tasks[0].Args.Strings("docs")
	if err != nil {
		t.Fatalf("docs: %v", err)
	}
	if !reflect.DeepEqual(docs, taxonomy.DocumentCodes(taxonomy.Commune)) {
		t.Fatalf("docs = %v", docs)
	}
	prompt := client.Calls()[0].Messages[0].Content
	for _, want := range []string{"Paris", "Inondation", "commune", "DICRIM", "search_docs_output"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt misses %q", want)
		}
	}
}
