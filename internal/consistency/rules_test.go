package consistency_test

import (
	"strings"
	"testing"

	"github.com/vampirenirmal/storyforge/internal/consistency"
)

func TestRuleEngineValidate(t *testing.T) {
	tests := []struct {
		name           string
		rules          map[string]int
		content        string
		wantValid      bool
		wantViolations int
	}{
		{
			name:      "value at the cap passes",
			rules:     map[string]int{consistency.RuleMaxMagicLevel: 9},
			content:   "She finally reached level 9 after the trial.",
			wantValid: true,
		},
		{
			name:           "value above the cap is reported",
			rules:          map[string]int{consistency.RuleMaxMagicLevel: 9},
			content:        "He claimed to have reached level 12 overnight.",
			wantValid:      false,
			wantViolations: 1,
		},
		{
			name:           "cjk pattern above the cap",
			rules:          map[string]int{consistency.RuleMaxMagicLevel: 9},
			content:        "传闻他是一名12级魔法师。",
			wantValid:      false,
			wantViolations: 1,
		},
		{
			name: "multiple breaches are all reported",
			rules: map[string]int{
				consistency.RuleMaxMagicLevel:  9,
				consistency.RuleMaxFlightSpeed: 100,
			},
			content:        "A level 11 mage flew at 250 km/h over the pass.",
			wantValid:      false,
			wantViolations: 2,
		},
		{
			name:      "rule with no matching pattern is not evaluated",
			rules:     map[string]int{consistency.RuleMaxFlightSpeed: 100},
			content:   "They walked all day without rest.",
			wantValid: true,
		},
		{
			name:      "no rules registered",
			rules:     nil,
			content:   "level 9000 power readings",
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := consistency.NewRuleEngine()
			engine.InitRules(1, tt.rules)

			result := engine.Validate(1, tt.content)
			if result.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v (violations: %v)", result.IsValid, tt.wantValid, result.Violations)
			}
			if len(result.Violations) != tt.wantViolations {
				t.Errorf("got %d violations, want %d: %v", len(result.Violations), tt.wantViolations, result.Violations)
			}
		})
	}
}

func TestRuleEngineViolationMentionsValueAndCap(t *testing.T) {
	engine := consistency.NewRuleEngine()
	engine.AddRule(1, consistency.RuleMaxMagicLevel, 9)

	result := engine.Validate(1, "reached level 12")
	if len(result.Violations) != 1 {
		t.Fatalf("got %d violations, want 1", len(result.Violations))
	}
	violation := result.Violations[0]
	if !strings.Contains(violation, "12") || !strings.Contains(violation, "9") {
		t.Errorf("violation %q should mention both the value 12 and the cap 9", violation)
	}
}

func TestRuleEngineScopedByStory(t *testing.T) {
	engine := consistency.NewRuleEngine()
	engine.AddRule(1, consistency.RuleMaxMagicLevel, 9)

	if result := engine.Validate(2, "reached level 12"); !result.IsValid {
		t.Errorf("story 2 has no rules, expected valid, got %v", result.Violations)
	}
}

func TestRuleEngineOverwrite(t *testing.T) {
	engine := consistency.NewRuleEngine()
	engine.AddRule(1, consistency.RuleMaxMagicLevel, 9)
	engine.AddRule(1, consistency.RuleMaxMagicLevel, 15)

	if result := engine.Validate(1, "reached level 12"); !result.IsValid {
		t.Errorf("cap was raised to 15, expected valid, got %v", result.Violations)
	}
}
