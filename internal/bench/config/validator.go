package config

import (
	"fmt"
	"strings"

	volleyhttp "github.com/wesleyorama2/volley/internal/http"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

var displayUnits = map[string]bool{"": true, "ns": true, "us": true, "ms": true, "s": true}

// Validate checks the document as a whole.
//
// Plan values of individual targets are not checked here: the runner rejects
// an invalid plan for that target alone and the rest of the campaign runs.
// Returns nil if valid, or a ValidationErrors containing all problems.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if len(c.Targets) == 0 {
		errs.Add("targets", "at least one target is required")
	}

	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		field := fmt.Sprintf("targets[%d]", i)
		if t == nil {
			errs.Add(field, "target is empty")
			continue
		}
		if t.ID == "" {
			errs.Add(field+".id", "id is required")
			continue
		}
		if seen[t.ID] {
			errs.Add(field+".id", fmt.Sprintf("duplicate target id: %s", t.ID))
		}
		seen[t.ID] = true

		for _, code := range t.ExpectStatus {
			if code < 100 || code > 599 {
				errs.Add(field+".expectStatus", fmt.Sprintf("invalid status code: %d", code))
			}
		}
	}

	for i, pair := range c.Compare {
		field := fmt.Sprintf("compare[%d]", i)
		if !seen[pair.Baseline] {
			errs.Add(field+".baseline", fmt.Sprintf("unknown target: %q", pair.Baseline))
		}
		if !seen[pair.Candidate] {
			errs.Add(field+".candidate", fmt.Sprintf("unknown target: %q", pair.Candidate))
		}
		if pair.Baseline != "" && pair.Baseline == pair.Candidate {
			errs.Add(field, "baseline and candidate must differ")
		}
	}

	if err := c.Statistics.Validate(); err != nil {
		errs.Add("statistics", err.Error())
	}
	if err := c.Comparison.Options().Validate(); err != nil {
		errs.Add("comparison", err.Error())
	}

	validateSettings(&c.Settings, errs)

	if !displayUnits[c.Options.DisplayUnit] {
		errs.Add("options.displayUnit", fmt.Sprintf("unknown unit %q (want ns, us, ms or s)", c.Options.DisplayUnit))
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateSettings validates transport settings.
func validateSettings(s *Settings, errs *ValidationErrors) {
	if _, err := volleyhttp.ParseProtocol(s.Protocol); err != nil {
		errs.Add("settings.protocol", err.Error())
	}
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "timeout cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "maxIdleConnsPerHost cannot be negative")
	}
}
