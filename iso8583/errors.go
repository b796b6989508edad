package iso8583

import "fmt"

// Kind classifies a recoverable protocol error, per spec.md §7.
type Kind string

const (
	KindFrameIncomplete Kind = "FrameIncomplete"
	KindFrameMalformed  Kind = "FrameMalformed"
)

// ProtocolError is the single error type the codec returns for
// recoverable framing failures; callers switch on Kind rather than on
// concrete error types.
type ProtocolError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func frameIncomplete(msg string, err error) error {
	return &ProtocolError{Kind: KindFrameIncomplete, Msg: msg, Err: err}
}

func frameMalformed(msg string, err error) error {
	return &ProtocolError{Kind: KindFrameMalformed, Msg: msg, Err: err}
}
