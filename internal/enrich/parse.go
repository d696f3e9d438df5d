package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/noteweave/internal/models"
)

// completionPayload is the shape the model is asked to return.
type completionPayload struct {
	Summary     string   `json:"summary"`
	Excerpt     string   `json:"excerpt"`
	KeyInsights []string `json:"keyInsights"`
	Topics      []string `json:"topics"`
	Sentiment   string   `json:"sentiment"`
}

func (p *completionPayload) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Summary, validation.Required),
		validation.Field(&p.Sentiment, validation.Required, validation.In(
			string(models.SentimentPositive),
			string(models.SentimentNeutral),
			string(models.SentimentNegative),
		)),
	)
}

// parseCompletion decodes, normalizes and validates a completion. Any
// deviation from the expected object shape is an error.
func parseCompletion(raw string) (models.Enrichment, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return models.Enrichment{}, &stageError{StageParse, errors.New("empty completion")}
	}

	var p completionPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return models.Enrichment{}, &stageError{StageParse, fmt.Errorf("decode completion: %w", err)}
	}

	p.Summary = strings.TrimSpace(p.Summary)
	p.Excerpt = strings.TrimSpace(p.Excerpt)
	p.Sentiment = strings.ToLower(strings.TrimSpace(p.Sentiment))
	p.Topics = NormalizeTopics(p.Topics)
	p.KeyInsights = normalizeInsights(p.KeyInsights)

	if err := p.Validate(); err != nil {
		return models.Enrichment{}, &stageError{StageValidate, err}
	}
	return models.Enrichment{
		Summary:     p.Summary,
		Excerpt:     p.Excerpt,
		KeyInsights: p.KeyInsights,
		Topics:      p.Topics,
		Sentiment:   models.Sentiment(p.Sentiment),
	}, nil
}

// stripCodeFence removes a surrounding ```json ... ``` block if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// NormalizeTopics lower-cases and trims topics, dropping empties and
// duplicates while keeping first-seen order.
func NormalizeTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func normalizeInsights(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// checkEmbedding rejects vectors of the wrong size or with non-finite values.
func checkEmbedding(v []float32, dims int) error {
	if len(v) == 0 {
		return &stageError{StageValidate, errors.New("empty embedding")}
	}
	if dims > 0 && len(v) != dims {
		return &stageError{StageValidate, fmt.Errorf("embedding has %d dimensions, want %d", len(v), dims)}
	}
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return &stageError{StageValidate, fmt.Errorf("embedding value %d is not finite", i)}
		}
	}
	return nil
}
