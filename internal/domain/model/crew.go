//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"fmt"
	"strings"

	apperrors "github.com/target/crew-api/internal/errors"
)

// CrewRequest is the input of a research crew job: which companies to study
// and which positions to look at within them.
type CrewRequest struct {
	Companies []string `json:"companies"`
	Positions []string `json:"positions"`
}

// Validate checks that both lists are present and hold only non-blank names.
func (r *CrewRequest) Validate() error {
	if r == nil {
		return apperrors.Validation("request body is required")
	}
	if err := validateNames("companies", r.Companies); err != nil {
		return err
	}
	return validateNames("positions", r.Positions)
}

// Normalize trims surrounding whitespace from every name.
func (r *CrewRequest) Normalize() {
	for i := range r.Companies {
		r.Companies[i] = strings.TrimSpace(r.Companies[i])
	}
	for i := range r.Positions {
		r.Positions[i] = strings.TrimSpace(r.Positions[i])
	}
}

func validateNames(field string, names []string) error {
	if names == nil {
		return apperrors.ValidationField(field, field+" is required")
	}
	if len(names) == 0 {
		return apperrors.ValidationField(field, field+" cannot be empty")
	}
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return apperrors.ValidationField(field, fmt.Sprintf("%s[%d] cannot be empty", field, i))
		}
	}
	return nil
}

// SubmitResponse is returned when a crew job is accepted.
type SubmitResponse struct {
	JobID string `json:"job_id"`
}
