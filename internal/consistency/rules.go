package consistency

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
)

// Well-known rule names. Rules are scalar caps matched against numeric
// patterns extracted from prose.
const (
	RuleMaxMagicLevel  = "max_magic_level"
	RuleMaxFlightSpeed = "max_flight_speed"
)

// rulePatterns maps a rule name to the text patterns that yield values for
// it. A rule with no matching pattern in the content is simply not evaluated.
var rulePatterns = map[string][]*regexp.Regexp{
	RuleMaxMagicLevel: {
		regexp.MustCompile(`(\d+)级魔法师`),
		regexp.MustCompile(`(?i)level[- ](\d+)`),
		regexp.MustCompile(`(?i)(\d+)(?:st|nd|rd|th)?-level`),
	},
	RuleMaxFlightSpeed: {
		regexp.MustCompile(`以?(\d+)(?:公里|千米)(?:每|/)?小时`),
		regexp.MustCompile(`(?i)(\d+)\s*km/h`),
	},
}

var ruleDescriptions = map[string]string{
	RuleMaxMagicLevel:  "magic level",
	RuleMaxFlightSpeed: "flight speed",
}

// RuleResult is the outcome of one rule engine pass.
type RuleResult struct {
	IsValid    bool     `json:"is_valid"`
	Violations []string `json:"violations"`
}

// RuleEngine validates content against hard world rules: named scalar caps
// registered per story. Rules are read-mostly; writes happen at story setup.
type RuleEngine struct {
	mu    sync.RWMutex
	rules map[int64]map[string]int
}

func NewRuleEngine() *RuleEngine {
	return &RuleEngine{rules: make(map[int64]map[string]int)}
}

// AddRule registers or overwrites a named scalar cap for a story.
func (e *RuleEngine) AddRule(storyID int64, name string, value int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rules[storyID] == nil {
		e.rules[storyID] = make(map[string]int)
	}
	e.rules[storyID][name] = value
}

// InitRules bulk-loads a story's world rules.
func (e *RuleEngine) InitRules(storyID int64, rules map[string]int) {
	for name, value := range rules {
		e.AddRule(storyID, name, value)
	}
}

// Rules returns a copy of the registered rule set for a story.
func (e *RuleEngine) Rules(storyID int64) map[string]int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]int, len(e.rules[storyID]))
	for name, value := range e.rules[storyID] {
		out[name] = value
	}
	return out
}

// Validate scans content for numeric patterns covered by the story's
// registered rules and reports one violation per breached cap. Every breach
// is reported; there is no short-circuit.
func (e *RuleEngine) Validate(storyID int64, content string) RuleResult {
	e.mu.RLock()
	rules := e.rules[storyID]
	e.mu.RUnlock()

	var violations []string
	for name, limit := range rules {
		patterns, ok := rulePatterns[name]
		if !ok {
			continue
		}
		desc := ruleDescriptions[name]
		if desc == "" {
			desc = name
		}
		for _, pattern := range patterns {
			for _, match := range pattern.FindAllStringSubmatch(content, -1) {
				value, err := strconv.Atoi(match[1])
				if err != nil {
					continue
				}
				if value > limit {
					violations = append(violations, fmt.Sprintf(
						"%s %d exceeds the cap of %d", desc, value, limit))
				}
			}
		}
	}

	return RuleResult{IsValid: len(violations) == 0, Violations: violations}
}
