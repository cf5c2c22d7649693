package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/moe-roll/rollreturn/internal/domain/roll"
)

// RulesFile is the YAML shape of a rule revision. Omitted keys keep the
// built-in defaults.
type RulesFile struct {
	CategoryTypes       []string       `yaml:"category_types"`
	MaoriTypes          []string       `yaml:"maori_types"`
	STPCodes            []string       `yaml:"stp_codes"`
	MaoriLevelCodes     map[string]int `yaml:"maori_level_codes"`
	MaoriEthnicityCode  string         `yaml:"maori_ethnicity_code"`
	HeadcountMonths     []string       `yaml:"headcount_months"`
	ExcludeSTPFromMaori *bool          `yaml:"exclude_stp_from_maori"`
	AdultAge            int            `yaml:"adult_age"`
}

// LoadRules builds the rule set: defaults, then the optional file, then the
// environment override.
func LoadRules(rc RulesConfig) (roll.RuleSet, error) {
	rules := roll.DefaultRuleSet()

	if rc.File != "" {
		data, err := os.ReadFile(rc.File)
		if err != nil {
			return roll.RuleSet{}, fmt.Errorf("read rules file: %w", err)
		}
		rules, err = ParseRules(data, rules)
		if err != nil {
			return roll.RuleSet{}, fmt.Errorf("rules file %s: %w", rc.File, err)
		}
	}

	if rc.ExcludeSTPFromMaori != nil {
		rules.ExcludeSTPFromMaori = *rc.ExcludeSTPFromMaori
	}
	return rules, nil
}

// ParseRules applies a YAML rule revision on top of base.
func ParseRules(data []byte, base roll.RuleSet) (roll.RuleSet, error) {
	var f RulesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return roll.RuleSet{}, fmt.Errorf("decode: %w", err)
	}

	rules := base
	if len(f.CategoryTypes) > 0 {
		rules.CategoryTypes = roll.NewCodeSet(f.CategoryTypes...)
	}
	if len(f.MaoriTypes) > 0 {
		rules.MaoriTypes = roll.NewCodeSet(f.MaoriTypes...)
	}
	if len(f.STPCodes) > 0 {
		rules.STPCodes = roll.NewCodeSet(f.STPCodes...)
	}
	if len(f.MaoriLevelCodes) > 0 {
		levels := make(map[string]roll.MaoriLevel, len(f.MaoriLevelCodes))
		for code, bucket := range f.MaoriLevelCodes {
			if bucket < 0 || bucket > len(roll.MaoriLevels()) {
				return roll.RuleSet{}, fmt.Errorf("maori level %q: bucket %d out of range", code, bucket)
			}
			levels[code] = roll.MaoriLevel(bucket)
		}
		rules.MaoriLevelCodes = levels
	}
	if f.MaoriEthnicityCode != "" {
		rules.MaoriEthnicityCode = f.MaoriEthnicityCode
	}
	if len(f.HeadcountMonths) > 0 {
		months := make(map[roll.MonthCode]bool, len(f.HeadcountMonths))
		for _, m := range f.HeadcountMonths {
			code := roll.MonthCode(strings.ToUpper(strings.TrimSpace(m)))
			if !code.IsValid() {
				return roll.RuleSet{}, fmt.Errorf("headcount month %q is not one of M, E, J, S", m)
			}
			months[code] = true
		}
		rules.HeadcountMonths = months
	}
	if f.ExcludeSTPFromMaori != nil {
		rules.ExcludeSTPFromMaori = *f.ExcludeSTPFromMaori
	}
	if f.AdultAge > 0 {
		rules.AdultAge = f.AdultAge
	}
	return rules, nil
}
