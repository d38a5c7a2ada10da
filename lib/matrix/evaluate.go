package matrix

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("matrix")

// ErrThresholdsExceeded is returned by Enforce when enforced budgets are violated.
var ErrThresholdsExceeded = errors.New("benchmark thresholds exceeded")

// Result holds the measurements of one case. Case is matched against the
// case name, or against "cases[i]" for unnamed cases.
type Result struct {
	Case           string               `json:"case" yaml:"case"`
	StepMs         map[string][]float64 `json:"stepMs" yaml:"stepMs"`
	Scale1Requests float64              `json:"scale1Requests" yaml:"scale1Requests"`
}

// Violation is a budget that a measurement did not meet.
type Violation struct {
	Case string `json:"case"`
	Path string `json:"path"`
	Msg  string `json:"msg"`
}

// String returns "path: msg".
func (v Violation) String() string {
	return v.Path + ": " + v.Msg
}

// Evaluate compares results with the budgets of cfg. The maximum step time of
// every atlas key must stay within its budget and the coarsest scale must
// issue at least the declared number of requests. Cases without a result are
// reported as violations.
func Evaluate(cfg *Config, results []Result) []Violation {
	byCase := make(map[string]Result, len(results))
	for _, r := range results {
		byCase[r.Case] = r
	}

	var violations []Violation
	for i, c := range cfg.Cases {
		label := c.Label(i)
		path := fmt.Sprintf("cases[%d]", i)

		r, ok := byCase[label]
		if !ok {
			violations = append(violations, Violation{Case: label, Path: path, Msg: "no result"})
			continue
		}

		keys := make([]string, 0, len(c.Acceptance.AtlasStepMaxMs))
		for k := range c.Acceptance.AtlasStepMaxMs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			budget := c.Acceptance.AtlasStepMaxMs[key]
			keyPath := path + ".acceptance.atlasStepMaxMs." + key
			stats := NewStats(r.StepMs[key])
			if stats.Count == 0 {
				violations = append(violations, Violation{Case: label, Path: keyPath, Msg: "no samples"})
				continue
			}
			log.Debugf("%s %s: max %.2fms mean %.2fms (budget %.2fms, %d samples)", label, key, stats.Max, stats.Mean, budget, stats.Count)
			if stats.Max > budget {
				violations = append(violations, Violation{
					Case: label,
					Path: keyPath,
					Msg:  fmt.Sprintf("max step %.2fms exceeds budget %.2fms (mean %.2fms over %d samples)", stats.Max, budget, stats.Mean, stats.Count),
				})
			}
		}

		if r.Scale1Requests < c.Acceptance.Scale1RequestMin {
			violations = append(violations, Violation{
				Case: label,
				Path: path + ".acceptance.scale1RequestMin",
				Msg:  fmt.Sprintf("%v requests at scale 1, expected at least %v", r.Scale1Requests, c.Acceptance.Scale1RequestMin),
			})
		}
	}
	return violations
}

// Enforce applies the approval gate to violations. If the gate fails, its
// error is returned. Violations are fatal only when thresholds are enforced;
// otherwise they are logged and Enforce returns nil.
func Enforce(cfg *Config, violations []Violation, enforceThresholds, allowUnapprovedMatrix bool) error {
	if err := AssertApprovedForThresholdEnforcement(cfg, enforceThresholds, allowUnapprovedMatrix); err != nil {
		return err
	}
	if len(violations) == 0 {
		return nil
	}
	if !enforceThresholds {
		for _, v := range violations {
			log.Warningf("threshold not enforced: %s", v)
		}
		return nil
	}

	msgs := make([]string, len(violations))
	for i, v := range violations {
		msgs[i] = v.String()
	}
	return fmt.Errorf("%w: %s", ErrThresholdsExceeded, strings.Join(msgs, "; "))
}
