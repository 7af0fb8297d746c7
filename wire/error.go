package wire

import "fmt"

// RemoteError is a failure raised on the other end of a connection and
// carried back as an exception record.
type RemoteError struct {
	Kind      string   `mapstructure:"__exception_class_name__"`
	Message   string   `mapstructure:"__msg__"`
	Traceback []string `mapstructure:"__traceback__"`
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Record returns the exception record for e.
func (e *RemoteError) Record() map[string]interface{} {
	return NewExceptionRecord(e.Kind, e.Message, e.Traceback)
}

// ErrorFromRecord decodes an exception record.
func ErrorFromRecord(m map[string]interface{}) (*RemoteError, error) {
	if !ExceptionShape.Matches(m) {
		return nil, fmt.Errorf("wire: not an exception record")
	}
	e := &RemoteError{}
	if err := DecodeRecord(m, e); err != nil {
		return nil, err
	}
	return e, nil
}
