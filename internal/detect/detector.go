// Package detect classifies prompts and responses against known LLM attack
// pattern families: prompt injection, jailbreaks, toxic content, and PII
// leakage.
package detect

import (
	"fmt"
	"sort"
	"time"

	"github.com/guardianai/llmguard/internal/telemetry"
)

// ThreatType labels the attack family a finding belongs to.
type ThreatType string

const (
	ThreatPromptInjection  ThreatType = "prompt_injection"
	ThreatPIILeakage       ThreatType = "pii_leakage"
	ThreatToxicContent     ThreatType = "toxic_content"
	ThreatJailbreak        ThreatType = "jailbreak"
	ThreatDataExfiltration ThreatType = "data_exfiltration"
	ThreatExcessiveTokens  ThreatType = "excessive_tokens"
	ThreatRapidRequests    ThreatType = "rapid_requests"
)

// Threat is one detected finding. Immutable once created.
type Threat struct {
	Type        ThreatType         `json:"threat_type"`
	Severity    telemetry.Severity `json:"severity"`
	Confidence  float64            `json:"confidence"`
	Description string             `json:"description"`
	Evidence    string             `json:"evidence"`
	Timestamp   time.Time          `json:"timestamp"`
	TraceID     string             `json:"trace_id,omitempty"`
	UserID      string             `json:"user_id,omitempty"`
}

// Correlation ties findings back to the originating request.
type Correlation struct {
	TraceID string
	UserID  string
}

// Options toggle individual detection families.
type Options struct {
	PromptInjection bool
	PIIDetection    bool
	ToxicDetection  bool
	Jailbreak       bool
	PIISeverity     telemetry.Severity
}

// DefaultOptions enables every family with PII findings reported as high.
func DefaultOptions() Options {
	return Options{
		PromptInjection: true,
		PIIDetection:    true,
		ToxicDetection:  true,
		Jailbreak:       true,
		PIISeverity:     telemetry.SeverityHigh,
	}
}

// Detector runs the pattern families. It holds no mutable state and is safe
// for concurrent use.
type Detector struct {
	opts Options
}

// NewDetector creates a detector with the given options.
func NewDetector(opts Options) *Detector {
	if opts.PIISeverity == "" {
		opts.PIISeverity = telemetry.SeverityHigh
	}
	return &Detector{opts: opts}
}

// NewDefaultDetector creates a detector with every family enabled.
func NewDefaultDetector() *Detector {
	return NewDetector(DefaultOptions())
}

const evidenceLimit = 100

// Analyze scans the prompt (injection, jailbreak, toxic) and, when present,
// the response (PII, toxic). Empty or malformed text yields an empty list,
// never an error.
func (d *Detector) Analyze(prompt, response string, corr Correlation) []Threat {
	var threats []Threat

	if d.opts.PromptInjection {
		threats = append(threats, d.detectPromptInjection(prompt, corr)...)
	}
	if d.opts.Jailbreak {
		threats = append(threats, d.detectJailbreak(prompt, corr)...)
	}
	if d.opts.ToxicDetection {
		threats = append(threats, d.detectToxic(prompt, "prompt", corr)...)
	}

	if response != "" {
		if d.opts.PIIDetection {
			threats = append(threats, d.detectPII(response, corr)...)
		}
		if d.opts.ToxicDetection {
			threats = append(threats, d.detectToxic(response, "response", corr)...)
		}
	}

	return threats
}

// detectPromptInjection emits at most one finding: the first matching pattern
// wins, so a heavily obfuscated payload cannot flood the alert stream.
func (d *Detector) detectPromptInjection(text string, corr Correlation) []Threat {
	for _, pattern := range promptInjectionPatterns {
		if match := pattern.FindString(text); match != "" {
			return []Threat{{
				Type:        ThreatPromptInjection,
				Severity:    telemetry.SeverityHigh,
				Confidence:  0.85,
				Description: "Potential prompt injection attack detected",
				Evidence:    truncate(match, evidenceLimit),
				Timestamp:   time.Now().UTC(),
				TraceID:     corr.TraceID,
				UserID:      corr.UserID,
			}}
		}
	}
	return nil
}

func (d *Detector) detectJailbreak(text string, corr Correlation) []Threat {
	for _, pattern := range jailbreakPatterns {
		if match := pattern.FindString(text); match != "" {
			return []Threat{{
				Type:        ThreatJailbreak,
				Severity:    telemetry.SeverityCritical,
				Confidence:  0.80,
				Description: "Potential jailbreak attempt detected",
				Evidence:    truncate(match, evidenceLimit),
				Timestamp:   time.Now().UTC(),
				TraceID:     corr.TraceID,
				UserID:      corr.UserID,
			}}
		}
	}
	return nil
}

func (d *Detector) detectToxic(text, source string, corr Correlation) []Threat {
	for _, pattern := range toxicPatterns {
		if match := pattern.FindString(text); match != "" {
			return []Threat{{
				Type:        ThreatToxicContent,
				Severity:    telemetry.SeverityHigh,
				Confidence:  0.75,
				Description: fmt.Sprintf("Potential toxic content in %s", source),
				Evidence:    truncate(match, evidenceLimit),
				Timestamp:   time.Now().UTC(),
				TraceID:     corr.TraceID,
				UserID:      corr.UserID,
			}}
		}
	}
	return nil
}

// detectPII reports one finding per PII label so a response leaking an email
// and an SSN produces two distinct findings.
func (d *Detector) detectPII(text string, corr Correlation) []Threat {
	labels := make([]string, 0, len(piiPatterns))
	for label := range piiPatterns {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var threats []Threat
	for _, label := range labels {
		matches := piiPatterns[label].FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		threats = append(threats, Threat{
			Type:        ThreatPIILeakage,
			Severity:    d.opts.PIISeverity,
			Confidence:  0.90,
			Description: fmt.Sprintf("Potential %s leakage detected", label),
			Evidence:    fmt.Sprintf("Found %d potential %s pattern(s)", len(matches), label),
			Timestamp:   time.Now().UTC(),
			TraceID:     corr.TraceID,
			UserID:      corr.UserID,
		})
	}
	return threats
}

// severityWeights used for the aggregate threat score.
var severityWeights = map[telemetry.Severity]float64{
	telemetry.SeverityLow:      0.25,
	telemetry.SeverityMedium:   0.5,
	telemetry.SeverityHigh:     0.75,
	telemetry.SeverityCritical: 1.0,
}

// ThreatScore aggregates findings into a 0..1 score: the mean of
// severity-weight times confidence. No findings scores 0.
func ThreatScore(threats []Threat) float64 {
	if len(threats) == 0 {
		return 0.0
	}

	total := 0.0
	for _, threat := range threats {
		total += severityWeights[threat.Severity] * threat.Confidence
	}

	score := total / float64(len(threats))
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
