package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInputValidation marks a malformed caller request.
	ErrInputValidation = errors.New("input validation failed")
	// ErrInsufficientData means training was refused for lack of samples.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrModelNotTrained is returned by predict before any train or load.
	ErrModelNotTrained = errors.New("model not trained")
	// ErrCategoryEncoding means a valid category was absent from the training batch.
	ErrCategoryEncoding = errors.New("category not seen during training")
	// ErrPersistence wraps artifact read and write failures.
	ErrPersistence = errors.New("persistence failure")
	// ErrServiceUnavailable is the serving-layer form of ErrModelNotTrained.
	ErrServiceUnavailable = errors.New("prediction service unavailable")
	// ErrJobNotFound is returned when polling an unknown retrain job.
	ErrJobNotFound = errors.New("retrain job not found")
	// ErrAlreadyTrained is returned by Train on a trained instance; trained
	// models are replaced wholesale, never refitted in place.
	ErrAlreadyTrained = errors.New("model already trained")
	// ErrTrainingInProgress means another replica holds the training lock.
	ErrTrainingInProgress = errors.New("training already in progress")
)

// InvalidCategoryError reports a categorical value outside its closed domain.
type InvalidCategoryError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("invalid %s %q: must be one of %s", e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

func (e *InvalidCategoryError) Unwrap() error { return ErrInputValidation }

// InsufficientDataError carries the sample counts behind a refused training run.
type InsufficientDataError struct {
	Model    ModelType
	Required int
	Got      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s model needs at least %d samples, got %d", e.Model, e.Required, e.Got)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// unavailableError keeps both ErrServiceUnavailable and its cause reachable through errors.Is.
type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrServiceUnavailable, e.cause)
}

func (e *unavailableError) Unwrap() []error { return []error{ErrServiceUnavailable, e.cause} }

// Unavailable translates an untrained-model failure into the serving signal.
func Unavailable(cause error) error {
	return &unavailableError{cause: cause}
}
