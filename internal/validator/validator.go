// Package validator decides whether a free-text request is in scope: it must
// name at least one taxonomy risk (or risks in general) and a French place,
// whose administrative level is extracted along the way.
package validator

import (
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/jsonout"
	"github.com/mohammad-safakhou/climarisk/internal/llm"
	"github.com/mohammad-safakhou/climarisk/internal/prompts"
	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
)

// RetryMessage is returned whenever the model answer cannot be used.
const RetryMessage = "Oups... Nous n'avons pas pu valider la requête. Veuillez réessayer."

const (
	emptyRequestMessage = "La requête est vide. Précisez un risque et un lieu en France, par exemple : 'Quels risques d'inondation pour Paris ?'"
	unknownRiskMessage  = "La requête ne fait référence à aucun risque reconnu. Veuillez inclure un risque climatique ou environnemental, par exemple : 'Quels risques d'inondation pour Paris ?'"
)

//go:embed validation_schema.json
var schemaJSON string

var schema = jsonout.NewSchema("validation_schema.json", schemaJSON)

// UserRequestValidation is the outcome of Validate. Risks, Locations and
// AdminLevel are only set when Valid is true; an empty Risks means every risk.
type UserRequestValidation struct {
	Valid      bool
	Message    string
	Risks      []string
	Locations  []string
	AdminLevel taxonomy.AdminLevel
}

type wireValidation struct {
	Valid      bool     `json:"requete_valide"`
	Message    string   `json:"message"`
	Risks      []string `json:"risques,omitempty"`
	Locations  []string `json:"lieux,omitempty"`
	AdminLevel string   `json:"niv_admin,omitempty"`
}

// MarshalJSON writes the French wire keys; the extracted attributes are
// omitted for rejected requests.
func (u UserRequestValidation) MarshalJSON() ([]byte, error) {
	if !u.Valid {
		return json.Marshal(struct {
			Valid   bool   `json:"requete_valide"`
			Message string `json:"message"`
		}{false, u.Message})
	}
	risks := u.Risks
	if risks == nil {
		risks = []string{}
	}
	return json.Marshal(struct {
		Valid      bool                `json:"requete_valide"`
		Message    string              `json:"message"`
		Risks      []string            `json:"risques"`
		Locations  []string            `json:"lieux"`
		AdminLevel taxonomy.AdminLevel `json:"niv_admin"`
	}{true, u.Message, risks, u.Locations, u.AdminLevel})
}

// UnmarshalJSON reads the wire keys back, as stored in reports.
func (u *UserRequestValidation) UnmarshalJSON(data []byte) error {
	var w wireValidation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*u = UserRequestValidation{Valid: w.Valid, Message: w.Message}
	if w.Valid {
		u.Risks = w.Risks
		u.Locations = w.Locations
		level, _ := taxonomy.ParseAdminLevel(w.AdminLevel)
		u.AdminLevel = level
	}
	return nil
}

// Rejected builds an invalid result.
func Rejected(message string) UserRequestValidation {
	if strings.TrimSpace(message) == "" {
		message = RetryMessage
	}
	return UserRequestValidation{Valid: false, Message: message}
}

// Validator classifies requests with a single model call.
type Validator struct {
	client   llm.Client
	settings llm.ModelSettings
	timeout  time.Duration
	examples []prompts.ValidationExample
	observer llm.Observer
	logger   *zap.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithTimeout bounds the model call.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) { v.timeout = d }
}

// WithExamples replaces the few-shot examples.
func WithExamples(examples []prompts.ValidationExample) Option {
	return func(v *Validator) { v.examples = examples }
}

// WithObserver reports the model call outcome.
func WithObserver(o llm.Observer) Option {
	return func(v *Validator) { v.observer = o }
}

// New creates a Validator.
func New(client llm.Client, settings llm.ModelSettings, logger *zap.Logger, opts ...Option) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Validator{
		client:   client,
		settings: settings,
		examples: DefaultExamples(),
		logger:   logger.Named("validator"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate never fails: every problem is reported as an invalid result whose
// message can be shown to the user.
func (v *Validator) Validate(ctx context.Context, request string) UserRequestValidation {
	request = strings.TrimSpace(request)
	if request == "" {
		return Rejected(emptyRequestMessage)
	}
	prompt, err := prompts.Validation(prompts.ValidationData{Request: request, Examples: v.examples})
	if err != nil {
		v.logger.Error("render validation prompt", zap.Error(err))
		return Rejected(RetryMessage)
	}

	reply, err := llm.WithDeadline(v.client, v.timeout).Converse(ctx, v.settings.Request(llm.User(prompt)))
	if err != nil {
		v.observe(err)
		v.logger.Error("validation call failed", zap.Error(err))
		return Rejected(RetryMessage)
	}

	var wire wireValidation
	if err := jsonout.Decode(reply.Content, schema, &wire); err != nil {
		v.observe(err)
		v.logger.Warn("validation answer rejected", zap.Error(err))
		return Rejected(RetryMessage)
	}
	v.observe(nil)

	result := normalise(wire)
	v.logger.Debug("request validated",
		zap.Bool("valid", result.Valid),
		zap.Strings("risks", result.Risks),
		zap.Strings("locations", result.Locations),
		zap.String("admin_level", string(result.AdminLevel)))
	return result
}

func (v *Validator) observe(err error) {
	if v.observer != nil {
		v.observer.ObserveAttempt(llm.StageValidation, 1, err)
	}
}

// normalise maps the answer onto the taxonomy. A positive answer that names
// no usable place or level is downgraded to the retry message.
func normalise(w wireValidation) UserRequestValidation {
	if !w.Valid {
		return Rejected(w.Message)
	}
	level, ok := taxonomy.ParseAdminLevel(w.AdminLevel)
	if !ok {
		return Rejected(RetryMessage)
	}
	locations := cleanList(w.Locations)
	if len(locations) == 0 {
		return Rejected(RetryMessage)
	}
	risks, recognised := taxonomy.Normalize(w.Risks)
	if len(w.Risks) > 0 && !recognised {
		return Rejected(unknownRiskMessage)
	}
	message := strings.TrimSpace(w.Message)
	if message == "" {
		return Rejected(RetryMessage)
	}
	return UserRequestValidation{
		Valid:      true,
		Message:    message,
		Risks:      risks,
		Locations:  locations,
		AdminLevel: level,
	}
}

func cleanList(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key := taxonomy.Fold(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
