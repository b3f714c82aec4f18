package bridgeerrors

// ERR enumerates the error taxonomy from spec.md §7, grouped by kind
// rather than by call site.
type ERR int32

const (
	ERR_UNKNOWN ERR = iota
	ERR_CONSENSUS_VIOLATION
	ERR_GRAPH_BUILD
	ERR_SIGNING
	ERR_BROADCAST
	ERR_PERSISTENCE
	ERR_NON_CONVERGENCE
	ERR_CONFIGURATION
	ERR_INVALID_ARGUMENT
	ERR_NOT_FOUND
	ERR_THRESHOLD_EXCEEDED
)

var errName = map[ERR]string{
	ERR_UNKNOWN:             "UNKNOWN",
	ERR_CONSENSUS_VIOLATION: "CONSENSUS_VIOLATION",
	ERR_GRAPH_BUILD:         "GRAPH_BUILD",
	ERR_SIGNING:             "SIGNING",
	ERR_BROADCAST:           "BROADCAST",
	ERR_PERSISTENCE:         "PERSISTENCE",
	ERR_NON_CONVERGENCE:     "NON_CONVERGENCE",
	ERR_CONFIGURATION:       "CONFIGURATION",
	ERR_INVALID_ARGUMENT:    "INVALID_ARGUMENT",
	ERR_NOT_FOUND:           "NOT_FOUND",
	ERR_THRESHOLD_EXCEEDED:  "THRESHOLD_EXCEEDED",
}

func (c ERR) String() string {
	if name, ok := errName[c]; ok {
		return name
	}
	return "UNKNOWN"
}
