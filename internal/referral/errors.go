package referral

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCaseNotFound      = errors.New("referral case not found")
	ErrInvalidTransition = errors.New("invalid referral status transition")
)

// AssessmentRequiredError is returned when a cross-clinic referral is
// accepted without its clinical assessment.
type AssessmentRequiredError struct {
	CaseID  string
	Missing []string
}

func (e *AssessmentRequiredError) Error() string {
	return fmt.Sprintf("referral %s requires assessment fields: %s", e.CaseID, strings.Join(e.Missing, ", "))
}
