package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// Sentinel errors. AppError values match these through errors.Is by type.
var (
	ErrRecordCorrupted  = errors.New("license record corrupted")
	ErrPersistence      = errors.New("license persistence failed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrSecretRequired   = errors.New("issuing secret required")
	ErrHardwareQuery    = errors.New("hardware query failed")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrLicenseOperation = errors.New("license operation failed")
)

var sentinelByType = map[ErrorType]error{
	ErrTypeCorrupted:  ErrRecordCorrupted,
	ErrTypeStorage:    ErrPersistence,
	ErrTypeValidation: ErrInvalidInput,
	ErrTypeHardware:   ErrHardwareQuery,
	ErrTypeConfig:     ErrInvalidConfig,
	ErrTypeLicense:    ErrLicenseOperation,
}

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens extensions into the top-level object
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, 5+len(pd.Extensions))
	for k, v := range pd.Extensions {
		data[k] = v
	}

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// ProblemFromError maps an application error onto a problem document. The
// persistence and validation failures keep distinct types so a client can tell
// "cannot save" apart from "bad input".
func ProblemFromError(err error, instance string) *ProblemDetails {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return NewProblemDetails(http.StatusBadRequest, TypeInvalidInput,
			"Invalid Input", err.Error(), instance)
	case errors.Is(err, ErrPersistence):
		return NewProblemDetails(http.StatusInternalServerError, TypePersistence,
			"License Persistence Failed", "The license record could not be read or written", instance).
			WithExtension("cause", err.Error())
	case errors.Is(err, ErrRecordCorrupted):
		return NewProblemDetails(http.StatusConflict, TypeRecordCorrupted,
			"License Record Corrupted", "The stored license record could not be decoded", instance)
	default:
		return NewProblemDetails(http.StatusInternalServerError, TypeInternal,
			"Internal Error", "An unexpected error occurred", instance)
	}
}
