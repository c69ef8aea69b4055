package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/llm"
	"github.com/mohammad-safakhou/climarisk/internal/prompts"
	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
	"github.com/mohammad-safakhou/climarisk/models"
	"github.com/mohammad-safakhou/climarisk/tools/docindex"
)

const (
	DefaultMinWords = 1000

	gibberishSampleWords = 10
	topicSampleWords     = 2000
)

// Relevance decides whether a downloaded document is worth analysing.
type Relevance struct {
	MinWords int
	Index    docindex.Index
	// Judge adds the model checks when set.
	Judge *Judge
}

// Check returns the rejection reason, or "" when doc is kept.
func (r Relevance) Check(ctx context.Context, doc models.Document, code string) (string, error) {
	minWords := r.MinWords
	if minWords <= 0 {
		minWords = DefaultMinWords
	}
	if n := doc.WordCount(); n < minWords {
		return fmt.Sprintf("trop court (%d mots)", n), nil
	}
	label := taxonomy.DocumentLabel(code)
	m, err := r.Index.Score(doc, code, label)
	if err != nil {
		return "", err
	}
	if !m.Relevant {
		return "hors sujet (" + code + ")", nil
	}
	if r.Judge == nil {
		return "", nil
	}
	return r.Judge.Check(ctx, doc, label)
}

// Judge asks the model whether a text is readable and on topic.
type Judge struct {
	Client   llm.Client
	Settings llm.ModelSettings
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Check returns the rejection reason, or "" when both answers are yes.
func (j *Judge) Check(ctx context.Context, doc models.Document, subject string) (string, error) {
	words := strings.Fields(doc.Text)
	sample, err := prompts.RelevanceGibberish(strings.Join(words[:min(len(words), gibberishSampleWords)], " "))
	if err != nil {
		return "", err
	}
	ok, err := j.yes(ctx, sample)
	if err != nil {
		return "", err
	}
	if !ok {
		return "texte illisible", nil
	}
	topic, err := prompts.RelevanceTopic(subject, strings.Join(words[:min(len(words), topicSampleWords)], " "))
	if err != nil {
		return "", err
	}
	ok, err = j.yes(ctx, topic)
	if err != nil {
		return "", err
	}
	if !ok {
		return "ne traite pas de " + subject, nil
	}
	return "", nil
}

func (j *Judge) yes(ctx context.Context, prompt string) (bool, error) {
	reply, err := llm.WithDeadline(j.Client, j.Timeout).Converse(ctx, j.Settings.Request(llm.User(prompt)))
	if err != nil {
		return false, err
	}
	answer := taxonomy.Fold(strings.Trim(strings.TrimSpace(reply.Content), `."'*`))
	if j.Logger != nil {
		j.Logger.Debug("relevance answer", zap.String("answer", answer))
	}
	return strings.HasPrefix(answer, "oui"), nil
}
