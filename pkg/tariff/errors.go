package tariff

// ValidationError reports a structurally invalid tariff or period. A failed
// load or build never disturbs a previously loaded tariff; callers keep
// using the old one.
type ValidationError struct {
	msg string
	err error
}

func (e *ValidationError) Error() string {
	if e.err != nil {
		return "invalid tariff: " + e.msg + ": " + e.err.Error()
	}
	return "invalid tariff: " + e.msg
}

func (e *ValidationError) Unwrap() error { return e.err }
