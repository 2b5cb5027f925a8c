package llm

import "fmt"

// Kind classifies an engine failure. The handler's fallback policy and
// logging key off the matched variant instead of a blanket catch.
type Kind int

const (
	// KindConfiguration covers missing backends, absent model files,
	// unset endpoints and other setup problems.
	KindConfiguration Kind = iota
	// KindTransport covers network-level failures reaching an engine.
	KindTransport
	// KindMalformedResponse covers responses the engine produced but the
	// client could not interpret (bad structure, empty text).
	KindMalformedResponse
	// KindOther covers anything else.
	KindOther
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransport:
		return "transport"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "other"
	}
}

// LocalError reports a failure of the local engine.
type LocalError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *LocalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("local llm: %s: %v", e.Msg, e.Err)
	}
	return "local llm: " + e.Msg
}

func (e *LocalError) Unwrap() error { return e.Err }

// ExternalError reports a failure of the external engine.
type ExternalError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *ExternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("external llm: %s: %v", e.Msg, e.Err)
	}
	return "external llm: " + e.Msg
}

func (e *ExternalError) Unwrap() error { return e.Err }
