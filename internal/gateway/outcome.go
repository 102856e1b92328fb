package gateway

// OutcomeKind classifies the result of a dispatch
type OutcomeKind string

// Outcome kinds
const (
	OutcomeSuccess            OutcomeKind = "success"
	OutcomeNotFound           OutcomeKind = "not_found"
	OutcomeVerificationFailed OutcomeKind = "verification_failed"
	OutcomeMalformedInput     OutcomeKind = "malformed_input"
	OutcomeStorageUnavailable OutcomeKind = "storage_unavailable"
)

// Outcome is the structured result of a dispatch
type Outcome struct {
	Kind    OutcomeKind
	Fields  map[string]interface{}
	Message string
}

// OK reports whether the action succeeded
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// Result is what the speech layer verbalizes: the field map on success,
// the message otherwise.
func (o Outcome) Result() interface{} {
	if o.OK() {
		return o.Fields
	}
	return o.Message
}

func success(fields map[string]interface{}) Outcome {
	return Outcome{Kind: OutcomeSuccess, Fields: fields}
}

func failure(kind OutcomeKind, message string) Outcome {
	return Outcome{Kind: kind, Message: message}
}
