package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseScoringResponseClampsOutOfRangeScores(t *testing.T) {
	result, err := parseScoringResponse("openai", `{"score": 140, "subscores": {"impact": -5, "innovation": 101.5, "presentation": 55}, "rationale": "Solid"}`)
	require.NoError(t, err)
	require.Equal(t, 100.0, result.Score)
	require.Equal(t, 0.0, result.SubScores["impact"])
	require.Equal(t, 100.0, result.SubScores["innovation"])
	require.Equal(t, 55.0, result.SubScores["presentation"])
	require.Equal(t, "Solid", result.Rationale)
}

func TestParseScoringResponseKeepsDetailedAnalysisVerbatim(t *testing.T) {
	result, err := parseScoringResponse("openai", "```json\n{\"score\": 72, \"subscores\": {}, \"rationale\": \"ok\", \"detailed_analysis\": {\"strengths\": [\"fast\"], \"nested\": {\"depth\": 2}}}\n```")
	require.NoError(t, err)
	require.Equal(t, 72.0, result.Score)
	require.Equal(t, []interface{}{"fast"}, result.Detailed["strengths"])
	require.Equal(t, map[string]interface{}{"depth": 2.0}, result.Detailed["nested"])
}

func TestParseScoringResponseRejectsMalformedOutput(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"not json":        "Score: 80",
		"missing score":   `{"subscores": {}, "rationale": "x"}`,
		"string score":    `{"score": "80", "subscores": {}, "rationale": "x"}`,
		"bad subscore":    `{"score": 80, "subscores": {"impact": "high"}, "rationale": "x"}`,
		"empty rationale": `{"score": 80, "subscores": {}, "rationale": ""}`,
		"array detailed":  `{"score": 80, "subscores": {}, "rationale": "x", "detailed_analysis": []}`,
		"top level array": `[1,2,3]`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseScoringResponse("openai", content)
			require.Error(t, err)
			scoringErr, ok := AsScoringError(err)
			require.True(t, ok)
			require.Equal(t, ErrorKindMalformed, scoringErr.Kind)
		})
	}
}

func TestBuildScoringPromptUsesDefaultRubricAndEvidence(t *testing.T) {
	prompt := buildScoringPrompt(ScoringInput{
		Title:    "Green Route",
		RepoURL:  "https://github.com/u/r",
		Writeup:  "We reduce commute emissions.",
		Evidence: "=== REPOSITORY ANALYSIS ===\nok\n=== END REPOSITORY ANALYSIS ===",
	})

	require.Contains(t, prompt, "Green Route")
	require.Contains(t, prompt, "Pitch deck: not provided")
	require.Contains(t, prompt, "technical_execution (weight 30)")
	require.Contains(t, prompt, "=== REPOSITORY ANALYSIS ===")
	require.Less(t, strings.Index(prompt, "completeness"), strings.Index(prompt, "innovation"))
}

func TestBuildScoringPromptBoundsWriteup(t *testing.T) {
	prompt := buildScoringPrompt(ScoringInput{Writeup: strings.Repeat("a", maxWriteupBytes*2)})
	require.Contains(t, prompt, "[truncated]")
	require.Less(t, len(prompt), maxWriteupBytes+2048)
}
