package core

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - centralized error definitions
var (
	// Formula errors
	ErrInvalidMode = errors.New("invalid interaction mode")
	ErrInvalidSpec = errors.New("invalid model specification")

	// Fitting errors
	ErrModelFit          = errors.New("model fit failed")
	ErrRankDeficient     = fmt.Errorf("%w: rank-deficient design matrix", ErrModelFit)
	ErrNonNumericPeak    = fmt.Errorf("%w: non-numeric response", ErrModelFit)
	ErrInsufficientData  = fmt.Errorf("%w: insufficient residual degrees of freedom", ErrModelFit)
	ErrInconsistentTerms = errors.New("inconsistent term set across peaks")

	// Permutation errors
	ErrPermutationRound = errors.New("permutation round failed")

	// Lookup errors
	ErrColumnNotFound = errors.New("column not found")
)

// ModelFitError identifies the peak whose model could not be fitted.
type ModelFitError struct {
	Peak   string
	Reason string
	Err    error
}

func (e *ModelFitError) Error() string {
	return fmt.Sprintf("fit peak %q: %s", e.Peak, e.Reason)
}

// Unwrap exposes both the specific cause and the ErrModelFit sentinel.
func (e *ModelFitError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Err, ErrModelFit}
	}
	return []error{ErrModelFit}
}

// InconsistentTermsError reports a peak whose fitted term set differs from the batch schema.
type InconsistentTermsError struct {
	Peak     string
	Expected []string
	Got      []string
}

func (e *InconsistentTermsError) Error() string {
	return fmt.Sprintf("peak %q produced terms [%s], expected [%s]",
		e.Peak, strings.Join(e.Got, ", "), strings.Join(e.Expected, ", "))
}

func (e *InconsistentTermsError) Unwrap() error {
	return ErrInconsistentTerms
}

// PermutationRoundError wraps the failure of a single permutation iteration.
type PermutationRoundError struct {
	Iteration int
	Err       error
}

func (e *PermutationRoundError) Error() string {
	return fmt.Sprintf("permutation round %d: %v", e.Iteration, e.Err)
}

func (e *PermutationRoundError) Unwrap() []error {
	return []error{e.Err, ErrPermutationRound}
}

// Error constructors with context
func NewModelFitError(peak string, cause error, reason string) error {
	return &ModelFitError{Peak: peak, Reason: reason, Err: cause}
}

func NewInvalidSpecError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpec, reason)
}

func NewInvalidModeError(mode string) error {
	return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
}

func NewColumnNotFoundError(name string) error {
	return fmt.Errorf("%w: %s", ErrColumnNotFound, name)
}

// Error checking helpers
func IsModelFitError(err error) bool {
	return errors.Is(err, ErrModelFit)
}

func IsSpecError(err error) bool {
	return errors.Is(err, ErrInvalidSpec) || errors.Is(err, ErrInvalidMode)
}

func IsPermutationError(err error) bool {
	return errors.Is(err, ErrPermutationRound)
}
