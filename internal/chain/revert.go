package chain

// RevertError is a failure raised by contract code with a reason string.
// It travels up through every calling frame unchanged.
type RevertError struct {
	Reason string
}

// Revert builds a RevertError.
func Revert(reason string) error {
	return &RevertError{Reason: reason}
}

func (e *RevertError) Error() string {
	if e == nil {
		return ""
	}
	return e.Reason
}
