package validate

import "fmt"

// Error codes reported by Request.
const (
	CodeMissingRequiredField   = "MISSING_REQUIRED_FIELD"
	CodeInvalidAction          = "INVALID_ACTION"
	CodeInvalidBotID           = "INVALID_BOT_ID"
	CodeInvalidDeploymentMode  = "INVALID_DEPLOYMENT_MODE"
	CodeMissingCode            = "MISSING_CODE"
	CodeConflictingFields      = "CONFLICTING_FIELDS"
	CodeInvalidFieldType       = "INVALID_FIELD_TYPE"
	CodeInvalidFilesFormat     = "INVALID_FILES_FORMAT"
	CodeEmptyFiles             = "EMPTY_FILES"
	CodeInvalidFileContent     = "INVALID_FILE_CONTENT"
	CodeInvalidRequirements    = "INVALID_REQUIREMENTS"
	CodeMissingSource          = "MISSING_SOURCE"
	CodeConflictingSources     = "CONFLICTING_SOURCES"
	CodeInvalidGitURL          = "INVALID_GIT_URL"
	CodeInvalidArchiveURL      = "INVALID_ARCHIVE_URL"
	CodeMissingDockerImage     = "MISSING_DOCKER_IMAGE"
	CodeInvalidImageName       = "INVALID_IMAGE_NAME"
	CodeInvalidRegistryAuth    = "INVALID_REGISTRY_AUTH"
	CodeIncompleteRegistryAuth = "INCOMPLETE_REGISTRY_AUTH"
	CodeInvalidEnvVars         = "INVALID_ENV_VARS"
)

// Error is a client-caused validation failure.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
	Hint    string         `json:"hint,omitempty"`
	Example map[string]any `json:"example,omitempty"`
}

// Envelope is the JSON shape returned to callers: {"error": {...}}.
type Envelope struct {
	Error *Error `json:"error"`
}

// newError builds an Error with the fields every failure must carry.
func newError(code, message string, details map[string]any) *Error {
	if details == nil {
		details = map[string]any{}
	}
	return &Error{Code: code, Message: message, Details: details}
}

func (e *Error) withHint(hint string) *Error {
	e.Hint = hint
	return e
}

func (e *Error) withExample(example map[string]any) *Error {
	e.Example = example
	return e
}

// withType records the JSON type of a value that should have been a string.
func (e *Error) withType(raw any) *Error {
	if _, ok := raw.(string); !ok {
		e.Details["type"] = typeName(raw)
	}
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Envelope wraps e in the error envelope.
func (e *Error) Envelope() Envelope {
	return Envelope{Error: e}
}

// ToMap renders e as a plain mapping suitable for storing in job data.
// Optional fields are omitted when empty.
func (e *Error) ToMap() map[string]any {
	m := map[string]any{
		"code":    e.Code,
		"message": e.Message,
		"details": e.Details,
	}
	if e.Hint != "" {
		m["hint"] = e.Hint
	}
	if e.Example != nil {
		m["example"] = e.Example
	}
	return m
}
