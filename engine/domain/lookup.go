package domain

// LookupKind classifies the outcome of a lookup.
type LookupKind int

const (
	LookupNotFound LookupKind = iota
	LookupFound
	LookupInternalError
)

func (k LookupKind) String() string {
	switch k {
	case LookupFound:
		return "found"
	case LookupNotFound:
		return "not_found"
	case LookupInternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// LookupResult keeps internal failures distinguishable from a plain miss.
// The RPC layer collapses InternalError into NotFound.
type LookupResult struct {
	Kind     LookupKind
	Answer   string
	Distance float32
	Err      error
}

// Found builds a matched result.
func Found(answer string, distance float32) LookupResult {
	return LookupResult{Kind: LookupFound, Answer: answer, Distance: distance}
}

// NotFound builds a miss.
func NotFound() LookupResult {
	return LookupResult{Kind: LookupNotFound}
}

// Failed builds an internal failure.
func Failed(err error) LookupResult {
	return LookupResult{Kind: LookupInternalError, Err: err}
}

// OK reports whether the lookup produced an answer.
func (r LookupResult) OK() bool { return r.Kind == LookupFound }
