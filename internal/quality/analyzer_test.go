package quality

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyResponseScoresZero(t *testing.T) {
	analyzer := NewAnalyzer(DefaultThreshold)

	analysis := analyzer.Analyze("What is Go?", "", "trace-1")

	assert.Equal(t, 0.0, analysis.Metrics.OverallScore)
	assert.False(t, analysis.Passed)
	assert.Equal(t, 1.0, analysis.Metrics.SafetyScore)
	assert.Contains(t, analysis.Issues, "Empty response")
	assert.Equal(t, "trace-1", analysis.TraceID)
}

func TestGoodAnswerPasses(t *testing.T) {
	analyzer := NewAnalyzer(DefaultThreshold)

	prompt := "What is the Go programming language?"
	response := "Go is a programming language designed at Google. " +
		"The language emphasizes simplicity and fast compilation. " +
		"Many teams use Go for networked services."

	analysis := analyzer.Analyze(prompt, response, "")

	assert.True(t, analysis.Passed, "overall %.2f", analysis.Metrics.OverallScore)
	assert.GreaterOrEqual(t, analysis.Metrics.OverallScore, DefaultThreshold)
	assert.GreaterOrEqual(t, analysis.Metrics.SafetyScore, 0.8)
	assert.Empty(t, analysis.Issues)
}

func TestPassedMatchesThreshold(t *testing.T) {
	prompt := "What is the Go programming language?"
	response := "Go is a programming language designed at Google for building simple, reliable software."

	for _, threshold := range []float64{0.0, 0.3, 0.5, 0.7, 0.9, 1.0} {
		t.Run(fmt.Sprintf("threshold=%.1f", threshold), func(t *testing.T) {
			analysis := NewAnalyzer(threshold).Analyze(prompt, response, "")

			assert.GreaterOrEqual(t, analysis.Metrics.OverallScore, 0.0)
			assert.LessOrEqual(t, analysis.Metrics.OverallScore, 1.0)
			assert.Equal(t, analysis.Metrics.OverallScore >= threshold, analysis.Passed)
		})
	}
}

func TestSubScoresStayInRange(t *testing.T) {
	analyzer := NewAnalyzer(DefaultThreshold)

	responses := []string{
		"short",
		"ok ok ok ok ok ok ok ok ok ok ok ok ok ok",
		strings.Repeat("word ", 200) + ".",
		"A sentence. Another sentence! A third one?",
		"```\nfunc main() {}\n```\nThe code above compiles.",
	}
	for _, resp := range responses {
		analysis := analyzer.Analyze("Explain this code?", resp, "")
		m := analysis.Metrics
		for name, v := range map[string]float64{
			"relevance":    m.RelevanceScore,
			"coherence":    m.CoherenceScore,
			"completeness": m.CompletenessScore,
			"safety":       m.SafetyScore,
			"overall":      m.OverallScore,
		} {
			assert.GreaterOrEqual(t, v, 0.0, "%s for %q", name, resp)
			assert.LessOrEqual(t, v, 1.0, "%s for %q", name, resp)
		}
	}
}

func TestRelevanceFloorForSubstantiveResponse(t *testing.T) {
	// Over 50 characters but with no keyword overlap: floored at 0.3.
	prompt := "Describe quantum entanglement experiments"
	response := "Bakeries rise early because bread dough needs several hours of careful proofing before the ovens open."

	analysis := NewAnalyzer(DefaultThreshold).Analyze(prompt, response, "")
	assert.GreaterOrEqual(t, analysis.Metrics.RelevanceScore, 0.3)
}

func TestQuestionAnswerBoost(t *testing.T) {
	prompt := "What color is the sky?"
	withStructure := "The sky is blue because of scattering."
	// Same keyword overlap, no answer indicators.
	withoutStructure := "Blue sky, scattered sunlight everywhere today."

	boosted := scoreRelevance(prompt, withStructure)
	plain := scoreRelevance(prompt, withoutStructure)
	assert.Greater(t, boosted, plain)
}

func TestRefusalKeepsSafetyHigh(t *testing.T) {
	response := "I cannot help with that request."
	assert.GreaterOrEqual(t, scoreSafety(response), 0.8)
}

func TestHarmfulPatternsPenalizeSafety(t *testing.T) {
	response := "Sure, here is how to hack the admin panel step by step."
	assert.LessOrEqual(t, scoreSafety(response), 0.6)
}

func TestIssuesReported(t *testing.T) {
	analyzer := NewAnalyzer(DefaultThreshold)

	// Three lowercase words: low relevance, low coherence, incomplete.
	analysis := analyzer.Analyze("Explain the architecture of distributed consensus protocols", "no idea sorry", "")

	require.False(t, analysis.Passed)
	assert.Contains(t, analysis.Issues, "Low relevance to prompt")
	assert.Contains(t, analysis.Issues, "Incomplete response")
}

func TestCoherencePenalties(t *testing.T) {
	// Repetitive lowercase text with one-word sentences.
	repetitive := "no. no. no. no. no. no. no. no. no. no. no. no."
	assert.Less(t, scoreCoherence(repetitive), 0.5)

	// Well formed prose scores higher.
	prose := "The service starts quickly. It handles each request with a bounded worker pool."
	assert.Greater(t, scoreCoherence(prose), scoreCoherence(repetitive))
}

func TestCompletenessEnumerationBonus(t *testing.T) {
	prompt := "What is Go? Why is it fast?"
	enumerated := "1. Go is a compiled language from Google. 2. It is fast because compilation produces native binaries."
	flat := "Go compiles to native binaries which them makes fast enough for most workloads here."

	assert.Greater(t, scoreCompleteness(prompt, enumerated), scoreCompleteness(prompt, flat)-0.2)
	assert.GreaterOrEqual(t, scoreCompleteness(prompt, enumerated), 0.7)
}

func TestInvalidThresholdFallsBack(t *testing.T) {
	assert.Equal(t, DefaultThreshold, NewAnalyzer(-0.5).Threshold())
	assert.Equal(t, DefaultThreshold, NewAnalyzer(1.5).Threshold())
	assert.Equal(t, 0.9, NewAnalyzer(0.9).Threshold())
}
