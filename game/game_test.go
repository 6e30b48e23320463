package game

import (
	"strings"
	"testing"
	"time"
)

func TestConfigRules(t *testing.T) {
	t.Run("testDifferent", func(t *testing.T) {
		defaultConfig := Config{
			MaxPlayers:   8,
			StartCeiling: DefaultStartCeiling,
		}
		defaultRules := defaultConfig.Rules(0)
		defaultRulesM := make(map[string]struct{}, len(defaultRules))
		for _, r := range defaultRules {
			if _, ok := defaultRulesM[r]; ok {
				t.Errorf("default rule occurred multiple times: '%v'", r)
			}
			defaultRulesM[r] = struct{}{}
		}
		otherConfig := Config{
			MaxPlayers:   3,
			StartCeiling: 50,
		}
		otherRules := otherConfig.Rules(0)
		differentRuleCount := 0
		for _, r := range otherRules {
			if _, ok := defaultRulesM[r]; !ok {
				differentRuleCount++
			}
		}
		if differentRuleCount != 2 {
			t.Errorf("wanted max players and start ceiling rules to differ, got %v different rules", differentRuleCount)
		}
		timeoutRules := defaultConfig.Rules(45 * time.Second)
		if want, got := len(defaultRules)+1, len(timeoutRules); want != got {
			t.Errorf("wanted %v rules when turns time out, got %v", want, got)
		}
	})
	t.Run("TestNumbers", func(t *testing.T) {
		cfg := Config{
			MaxPlayers:   7,
			StartCeiling: 1337,
		}
		rules := strings.Join(cfg.Rules(90*time.Second), "\n")
		for _, want := range []string{"7 players", "1 to 1337", "1m30s"} {
			if !strings.Contains(rules, want) {
				t.Errorf("wanted %q in rules:\n%v", want, rules)
			}
		}
	})
}
