package classifier

import "errors"

// Kind is the user-facing failure bucket.
type Kind int

const (
	KindGeneric Kind = iota
	KindInvalidAPIKey
	KindAccessDenied
	KindFileRead
	KindService
	KindEmptyResponse
)

func (k Kind) String() string {
	switch k {
	case KindInvalidAPIKey:
		return "invalid_api_key"
	case KindAccessDenied:
		return "access_denied"
	case KindFileRead:
		return "file_read"
	case KindService:
		return "service"
	case KindEmptyResponse:
		return "empty_response"
	default:
		return "generic"
	}
}

// ErrEmptyResponse is returned when the model answered without any text.
var ErrEmptyResponse = errors.New("empty response from model")

const (
	msgInvalidAPIKey = "Invalid API key. Please check your configuration."
	msgAccessDenied  = "Access denied. Please check if your API key has the necessary permissions and the Generative AI API is enabled."
	msgEmptyResponse = "The AI model returned an empty response. The media might not be recognizable."
	msgServiceFailed = "The AI model failed to process the request. This could be due to a network issue, invalid media format, or an internal service error. Please try again."

	detailFileRead   = "Unable to read the file. It may be corrupt or restricted."
	detailBadRequest = "The file format may be unsupported, or the file is corrupted."
	detailOverloaded = "The service is temporarily overloaded."
	msgUnknown       = "An unknown error occurred."
	msgUnknownObject = "Unknown error object"
	maxDetailLen     = 200
)

// Error is a classified failure. Error() returns only the user-facing text;
// the raw cause stays reachable through Unwrap for logs.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Cause }
