// Package trigger decides whether an incoming event should run the pipeline.
package trigger

import (
	"path"

	"github.com/opnlabs/gantry/pkg/models"
)

// ShouldRun reports whether the event matches any trigger rule. A rule
// matches when its kind equals the event kind and one of its branch
// patterns matches the target branch, exactly or as a path glob. Matching
// is case-sensitive. Malformed patterns are rejected at config load, so a
// pattern that fails to compile here simply does not match.
func ShouldRun(event models.Event, rules []models.TriggerRule) bool {
	for _, rule := range rules {
		if rule.Kind != event.Kind {
			continue
		}
		for _, pattern := range rule.Branches {
			if pattern == event.Branch {
				return true
			}
			if ok, err := path.Match(pattern, event.Branch); err == nil && ok {
				return true
			}
		}
	}
	return false
}
