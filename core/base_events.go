package core

// CriticalErrorEvent reports an unrecoverable handler failure. The runner
// ends the session when it sees one.
type CriticalErrorEvent struct {
	Error   string
	Relayer string
}

func (e *CriticalErrorEvent) GetId() string {
	return "shared.critical_error"
}

// WarningEvent reports a recoverable problem, such as a dropped message.
type WarningEvent struct {
	Error   string
	Relayer string
}

func (e *WarningEvent) GetId() string {
	return "shared.warning"
}

// EndCallEvent is fired when the session should terminate, e.g. because the
// peer hung up. The runner handles it by stopping the pipeline gracefully.
type EndCallEvent struct {
	Reason string
}

func (e *EndCallEvent) GetId() string {
	return "shared.end_call"
}
