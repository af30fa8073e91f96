package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const maxWriteupBytes = 8 * 1024

const responseSchema = `{
  "type": "object",
  "required": ["score", "subscores", "rationale"],
  "properties": {
    "score": {"type": "number"},
    "subscores": {
      "type": "object",
      "additionalProperties": {"type": "number"}
    },
    "rationale": {"type": "string", "minLength": 1},
    "detailed_analysis": {"type": ["object", "null"]}
  }
}`

var scoringSchema = jsonschema.MustCompileString("scoring_response.json", responseSchema)

func scoringSystemPrompt() string {
	return "You are an experienced hackathon judge. Evaluate the submission against the rubric using the " +
		"evidence provided. Respond with a single JSON object with the keys: score (number 0-100, the " +
		"weighted overall score), subscores (object mapping every rubric dimension to a number 0-100), " +
		"rationale (markdown string explaining the score) and detailed_analysis (object with strengths, " +
		"weaknesses and suggestions). Evidence marked as unavailable must not be held against the team " +
		"beyond what the write-up fails to show."
}

func buildScoringPrompt(input ScoringInput) string {
	rubric := input.Rubric
	if len(rubric) == 0 {
		rubric = DefaultRubric()
	}

	builder := strings.Builder{}
	builder.WriteString("# Submission\n")
	builder.WriteString(orPlaceholder(input.Title, "(untitled)"))
	builder.WriteString("\n\n## Links\n")
	builder.WriteString("- Repository: ")
	builder.WriteString(orPlaceholder(input.RepoURL, "not provided"))
	builder.WriteString("\n- Pitch deck: ")
	builder.WriteString(orPlaceholder(input.DeckURL, "not provided"))
	builder.WriteString("\n- Demo: ")
	builder.WriteString(orPlaceholder(input.DemoURL, "not provided"))
	builder.WriteString("\n\n## Write-up\n")
	builder.WriteString(truncateBytes(orPlaceholder(input.Writeup, "(empty)"), maxWriteupBytes))
	builder.WriteString("\n\n## Rubric\n")
	for _, name := range rubric.Dimensions() {
		criterion := rubric[name]
		builder.WriteString(fmt.Sprintf("- %s (weight %g): %s\n", name, criterion.Weight, criterion.Description))
	}
	if strings.TrimSpace(input.Evidence) != "" {
		builder.WriteString("\n## Evidence\n")
		builder.WriteString(input.Evidence)
		builder.WriteString("\n")
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

// Dimensions returns the rubric dimension names in a stable order.
func (r Rubric) Dimensions() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseScoringResponse(provider, content string) (ScoringResult, error) {
	content = stripCodeFence(content)
	if content == "" {
		return ScoringResult{}, malformedError(provider, errors.New("empty response"))
	}

	var document interface{}
	if err := json.Unmarshal([]byte(content), &document); err != nil {
		return ScoringResult{}, malformedError(provider, fmt.Errorf("parse scoring json: %w", err))
	}
	if err := scoringSchema.Validate(document); err != nil {
		return ScoringResult{}, malformedError(provider, fmt.Errorf("scoring json does not match schema: %w", err))
	}

	type payload struct {
		Score     float64                `json:"score"`
		SubScores map[string]float64     `json:"subscores"`
		Rationale string                 `json:"rationale"`
		Detailed  map[string]interface{} `json:"detailed_analysis"`
	}

	var data payload
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return ScoringResult{}, malformedError(provider, fmt.Errorf("decode scoring json: %w", err))
	}

	subScores := make(map[string]float64, len(data.SubScores))
	for name, value := range data.SubScores {
		subScores[name] = clampScore(value)
	}

	return ScoringResult{
		Score:     clampScore(data.Score),
		SubScores: subScores,
		Rationale: strings.TrimSpace(data.Rationale),
		Detailed:  data.Detailed,
		Provider:  provider,
	}, nil
}

func clampScore(value float64) float64 {
	switch {
	case math.IsNaN(value):
		return 0
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if newline := strings.Index(content, "\n"); newline >= 0 {
		content = content[newline+1:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

func truncateBytes(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + "\n... [truncated]"
}

func orPlaceholder(value, placeholder string) string {
	if strings.TrimSpace(value) == "" {
		return placeholder
	}
	return value
}
