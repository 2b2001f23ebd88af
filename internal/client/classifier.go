package client

import (
	"strings"

	"meshhub/internal/config"
)

// Classification is the outcome of running the Request Classifier's
// data-driven table (§4.10) against a human request: which specialist to
// address and what wait budget the coordinator should use for the reply.
type Classification struct {
	Class      string
	WaitMs     int
	Specialist string
}

// Classifier holds the keyword → class → waitMs → specialist table as
// data (§9), so new request classes are added by editing the table, not
// by editing the dispatch loop.
type Classifier struct {
	rules []config.ClassifierRule
}

func NewClassifier(rules []config.ClassifierRule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify matches text against each rule's keywords in table order,
// falling back to the rule with no keywords (the "general" row).
func (c *Classifier) Classify(text string) Classification {
	lower := strings.ToLower(text)
	var fallback config.ClassifierRule
	haveFallback := false
	for _, rule := range c.rules {
		if len(rule.Keywords) == 0 {
			fallback = rule
			haveFallback = true
			continue
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return Classification{Class: rule.Class, WaitMs: rule.WaitMs, Specialist: rule.Specialist}
			}
		}
	}
	if haveFallback {
		return Classification{Class: fallback.Class, WaitMs: fallback.WaitMs, Specialist: fallback.Specialist}
	}
	return Classification{Class: "general", WaitMs: 20000}
}
