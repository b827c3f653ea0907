package detect

import "regexp"

// Pattern tables for each threat family. Compiled once at init; detection is
// a pure function over them.

var promptInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(?:(?:previous|all|above)\s+)+(?:instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)disregard\s+(your|the|all)\s+(instructions?|training|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(everything|your|all)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(?:a|an|the)?\s*(?:new|different|DAN)`),
	regexp.MustCompile(`(?i)act\s+as\s+(?:if\s+you\s+(?:are|were)|a|an)`),
	regexp.MustCompile(`(?i)pretend\s+(?:you\s+are|to\s+be)`),
	regexp.MustCompile(`(?i)do\s+not\s+follow\s+(?:your|any|the)`),
	regexp.MustCompile(`(?i)override\s+(?:your|all|the)`),
	regexp.MustCompile(`(?i)new\s+(?:instructions?|rules?|persona)`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)DAN\s*(?:mode)?`),
	regexp.MustCompile(`(?i)developer\s+mode`),
	regexp.MustCompile(`(?i)\bsudo\b.*(?:ignore|override|bypass)`),
}

// piiPatterns map a label to its detector. Each label can contribute at most
// one finding per response.
var piiPatterns = map[string]*regexp.Regexp{
	"ssn":         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"credit_card": regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
	"email":       regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	"phone":       regexp.MustCompile(`\b(?:\+1[-\s]?)?\(?\d{3}\)?[-\s]?\d{3}[-\s]?\d{4}\b`),
	"api_key":     regexp.MustCompile(`(?i)\b(?:sk-|pk-|api[_-]?key[_-]?)[a-zA-Z0-9]{20,}\b`),
	"password":    regexp.MustCompile(`(?i)(?:password|passwd|pwd)\s*[:=]\s*['"]?\S{6,}['"]?`),
}

var jailbreakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bypass\s+(?:content|safety|ethical)\s+(?:filters?|guidelines?|restrictions?)`),
	regexp.MustCompile(`(?i)enable\s+(?:unrestricted|uncensored|unfiltered)\s+mode`),
	regexp.MustCompile(`(?i)remove\s+(?:all\s+)?(?:restrictions?|limitations?|filters?)`),
	regexp.MustCompile(`(?i)(?:unethical|illegal|harmful)\s+(?:mode|behavior)`),
	regexp.MustCompile(`(?i)no\s+(?:ethical|moral|safety)\s+(?:guidelines?|constraints?)`),
	regexp.MustCompile(`(?i)hypothetically.*(?:ignore|bypass|remove).*(?:restrictions?|rules?)`),
}

var toxicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:kill|murder|harm|attack|destroy)\s+(?:you|them|everyone|people)`),
	regexp.MustCompile(`(?i)\b(?:hate|despise)\s+(?:all|every)\s+(?:\w+\s+)?(?:people|humans?)`),
	regexp.MustCompile(`(?i)\b(?:instructions?\s+(?:for|to|on)\s+)?(?:make|create|build)\s+(?:a\s+)?(?:bomb|weapon|explosive)`),
	regexp.MustCompile(`(?i)how\s+to\s+(?:hack|steal|fraud|scam)`),
}
