package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/executor"
	"github.com/mohammad-safakhou/climarisk/internal/llm"
	"github.com/mohammad-safakhou/climarisk/internal/planner"
	"github.com/mohammad-safakhou/climarisk/internal/prompts"
)

// NoDocumentsSynthesis is returned when no document could be analysed.
const NoDocumentsSynthesis = "Aucun document exploitable n'a été trouvé pour cette requête : la synthèse des risques n'a pas pu être établie."

// Synthesize implements SYNTHESIZE: one model call over the serialised
// analyses, whose answer is returned verbatim.
type Synthesize struct {
	Client   llm.Client
	Settings llm.ModelSettings
	Timeout  time.Duration
	Logger   *zap.Logger
}

func (s *Synthesize) Type() planner.TaskType { return planner.Synthesize }

func (s *Synthesize) Execute(ctx context.Context, run *executor.Run, args planner.Args) (any, error) {
	ref, err := args.RequireRef()
	if err != nil {
		return nil, err
	}
	places, err := args.StringsOr("lieux", nil)
	if err != nil {
		return nil, err
	}
	v, err := run.ReadOutput(ref)
	if err != nil {
		return nil, err
	}
	set, err := analysesOf(ref, v)
	if err != nil {
		return nil, err
	}
	if len(set.Analyses) == 0 {
		return NoDocumentsSynthesis, nil
	}
	payload, err := json.MarshalIndent(set.Analyses, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("serialise analyses: %w", err)
	}
	prompt, err := prompts.Synthesis(prompts.SynthesisData{Analyses: string(payload), Places: places})
	if err != nil {
		return nil, err
	}
	reply, err := llm.WithDeadline(s.Client, s.Timeout).Converse(ctx, s.Settings.Request(llm.User(prompt)))
	if err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}
	if s.Logger != nil {
		s.Logger.Debug("synthesis done", zap.Int("analyses", len(set.Analyses)), zap.Int("chars", len(reply.Content)))
	}
	return reply.Content, nil
}
