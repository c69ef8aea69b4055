package validator

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/climarisk/internal/llm"
	"github.com/mohammad-safakhou/climarisk/internal/llm/llmtest"
	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
)

var testSettings = llm.ModelSettings{Model: "validation-model", MaxTokens: 512}

func TestValidateAcceptsParisFloodRequest(t *testing.T) {
	client := llmtest.NewScripted("Voici ma réponse :\n```json\n" +
		`{"requete_valide": true, "message": "Quels risques d'inondation pour Paris ?", "risques": ["inondations"], "lieux": ["Paris"], "niv_admin": "Commune"}` +
		"\n```")
	v := New(client, testSettings, nil)

	got := v.Validate(context.Background(), "Quels risques d'inondation pour Paris ?")
	want := UserRequestValidation{
		Valid:      true,
		Message:    "Quels risques d'inondation pour Paris ?",
		Risks:      []string{"Inondation"},
		Locations:  []string{"Paris"},
		AdminLevel: taxonomy.Commune,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}

	calls := client.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected a single model call, got %d", len(calls))
	}
	req := calls[0]
	if req.Model != "validation-model" || len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Fatalf("unexpected request %+v", req)
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{"Stress hydrique", "groupement de communes", "Comment la France gère-t-elle le stress hydrique ?", "Quels risques d'inondation pour Paris ?"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt misses %q", want)
		}
	}
}

func TestValidateRejectsRequestWithoutPlace(t *testing.T) {
	client := llmtest.NewScripted(`{"requete_valide": false, "message": "La requête ne précise pas de lieu en France. Par exemple : 'Comment la région Occitanie gère-t-elle le stress hydrique ?'"}`)
	got := New(client, testSettings, nil).Validate(context.Background(), "Comment la France gère le stress hydrique ?")
	if got.Valid {
		t.Fatalf("expected rejection")
	}
	if !strings.Contains(got.Message, "lieu") {
		t.Fatalf("message should name the missing place: %q", got.Message)
	}
	if got.Risks != nil || got.Locations != nil || got.AdminLevel != "" {
		t.Fatalf("rejected result must not carry attributes: %+v", got)
	}
}

func TestValidateGenericRisksMeanAll(t *testing.T) {
	client := llmtest.NewScripted(`{"requete_valide": true, "message": "Quels risques climatiques pour la métropole de Lyon ?", "risques": ["risques climatiques"], "lieux": ["Métropole de Lyon", "métropole de lyon"], "niv_admin": "métropole"}`)
	got := New(client, testSettings, nil).Validate(context.Background(), "risques climatiques métropole de Lyon")
	if !got.Valid || len(got.Risks) != 0 {
		t.Fatalf("generic risks should validate with an empty list: %+v", got)
	}
	if got.AdminLevel != taxonomy.Groupement {
		t.Fatalf("admin level = %q", got.AdminLevel)
	}
	if len(got.Locations) != 1 {
		t.Fatalf("duplicate locations not removed: %v", got.Locations)
	}
}

func TestValidateFailsSoft(t *testing.T) {
	cases := map[string]llmtest.Reply{
		"prose only":        llmtest.Text("Je ne sais pas."),
		"broken json":       llmtest.Text(`{"requete_valide": true, "message": }`),
		"missing keys":      llmtest.Text(`{"requete_valide": true, "message": "ok"}`),
		"wrong types":       llmtest.Text(`{"requete_valide": "oui", "message": "ok"}`),
		"no location":       llmtest.Text(`{"requete_valide": true, "message": "ok", "risques": ["Inondation"], "lieux": [" "], "niv_admin": "commune"}`),
		"unknown level":     llmtest.Text(`{"requete_valide": true, "message": "ok", "risques": ["Inondation"], "lieux": ["Paris"], "niv_admin": "planète"}`),
		"empty rejection":   llmtest.Text(`{"requete_valide": false, "message": ""}`),
		"transport failure": llmtest.Fail(errors.New("connection reset")),
		"context cancelled": llmtest.Fail(context.Canceled),
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			client := &llmtest.ScriptedClient{Replies: []llmtest.Reply{reply}}
			got := New(client, testSettings, nil).Validate(context.Background(), "Inondations à Paris")
			if got.Valid || got.Message != RetryMessage {
				t.Fatalf("expected retry message, got %+v", got)
			}
		})
	}
}

func TestValidateUnknownRisks(t *testing.T) {
	client := llmtest.NewScripted(`{"requete_valide": true, "message": "Tourisme à Lyon", "risques": ["tourisme"], "lieux": ["Lyon"], "niv_admin": "commune"}`)
	got := New(client, testSettings, nil).Validate(context.Background(), "Tourisme à Lyon")
	if got.Valid || !strings.Contains(got.Message, "risque") {
		t.Fatalf("expected risk rejection, got %+v", got)
	}
}

func TestValidateAcceptsRiskPhrasings(t *testing.T) {
	cases := []struct {
		risk string
		want string
	}{
		{"Risques d'inondation", "Inondation"},
		{"risque d’inondation", "Inondation"},
		{"canicules", "Vague de chaleur"},
		{"feux de forêts", "Feu de forêt"},
	}
	for _, tc := range cases {
		t.Run(tc.risk, func(t *testing.T) {
			reply, _ := json.Marshal(map[string]any{
				"requete_valide": true, "message": "Quels risques pour Paris ?",
				"risques": []string{tc.risk}, "lieux": []string{"Paris"}, "niv_admin": "commune",
			})
			got := New(llmtest.NewScripted(string(reply)), testSettings, nil).Validate(context.Background(), "Quels risques pour Paris ?")
			if !got.Valid || !reflect.DeepEqual(got.Risks, []string{tc.want}) {
				t.Fatalf("got %+v want risks [%s]", got, tc.want)
			}
		})
	}
}

func TestDefaultExamplesUseKnownLevels(t *testing.T) {
	for _, ex := range DefaultExamples() {
		res, ok := ex.Result.(UserRequestValidation)
		if !ok {
			t.Fatalf("example %q result is %T", ex.Request, ex.Result)
		}
		if !res.Valid {
			continue
		}
		if _, ok := taxonomy.ParseAdminLevel(string(res.AdminLevel)); !ok {
			t.Fatalf("example %q has level %q", ex.Request, res.AdminLevel)
		}
	}
}

func TestValidateEmptyRequestSkipsModel(t *testing.T) {
	client := llmtest.NewScripted()
	got := New(client, testSettings, nil).Validate(context.Background(), "   ")
	if got.Valid || got.Message == "" {
		t.Fatalf("expected rejection with message, got %+v", got)
	}
	if client.CallCount() != 0 {
		t.Fatalf("model must not be called")
	}
}

func TestValidateInvalidSettingsNeverReachBackend(t *testing.T) {
	client := llmtest.NewScripted(`{"requete_valide": false, "message": "x"}`)
	settings := llm.ModelSettings{Model: "m", MaxTokens: 10, Options: map[string]float64{"seed": 1}}
	got := New(client, settings, nil).Validate(context.Background(), "Inondations à Paris")
	if got.Valid || got.Message != RetryMessage {
		t.Fatalf("expected retry message, got %+v", got)
	}
	if client.CallCount() != 0 {
		t.Fatalf("invalid request must fail before the call")
	}
}

type recordingObserver struct{ errs []error }

func (r *recordingObserver) ObserveAttempt(stage llm.Stage, attempt int, err error) {
	r.errs = append(r.errs, err)
}

func TestValidateReportsOutcome(t *testing.T) {
	obs := &recordingObserver{}
	client := llmtest.NewScripted("n'importe quoi")
	New(client, testSettings, nil, WithObserver(obs)).Validate(context.Background(), "Inondations à Paris")
	if len(obs.errs) != 1 || obs.errs[0] == nil {
		t.Fatalf("expected one failed attempt, got %v", obs.errs)
	}
}

func TestMarshalOmitsAttributesWhenRejected(t *testing.T) {
	b, err := json.Marshal(Rejected("lieu manquant"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"requete_valide":false,"message":"lieu manquant"}` {
		t.Fatalf("got %s", b)
	}
	b, err = json.Marshal(UserRequestValidation{Valid: true, Message: "m", Locations: []string{"Paris"}, AdminLevel: taxonomy.Commune})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"requete_valide":true,"message":"m","risques":[],"lieux":["Paris"],"niv_admin":"commune"}` {
		t.Fatalf("got %s", b)
	}
	var back UserRequestValidation
	if err := json.Unmarshal(b, &back); err != nil || back.AdminLevel != taxonomy.Commune || !back.Valid {
		t.Fatalf("unmarshal: %+v %v", back, err)
	}
}
