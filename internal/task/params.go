package task

// Param accessors tolerate both in-process and round-tripped invocations:
// JSON decoding turns every number into a float64, while values resolved from
// policy documents arrive as int64 or float64.

// IntParam returns the named parameter as an int, or fallback when it is
// absent or not numeric.
func (inv *Invocation) IntParam(key string, fallback int) int {
	switch v := inv.Params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// FloatParam returns the named parameter as a float64, or fallback when it is
// absent or not numeric.
func (inv *Invocation) FloatParam(key string, fallback float64) float64 {
	switch v := inv.Params[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return fallback
	}
}

// StringParam returns the named parameter as a string, or fallback.
func (inv *Invocation) StringParam(key string, fallback string) string {
	if v, ok := inv.Params[key].(string); ok {
		return v
	}
	return fallback
}

// BoolParam returns the named parameter as a bool, or fallback.
func (inv *Invocation) BoolParam(key string, fallback bool) bool {
	if v, ok := inv.Params[key].(bool); ok {
		return v
	}
	return fallback
}
