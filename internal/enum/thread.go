package enum

type ThreadStatus string

const (
	ThreadStatusProcessing     ThreadStatus = "PROCESSING"
	ThreadStatusFollowupActive ThreadStatus = "FOLLOWUP_ACTIVE"
	ThreadStatusDelegated      ThreadStatus = "DELEGATED"
	ThreadStatusCompleted      ThreadStatus = "COMPLETED"
	ThreadStatusError          ThreadStatus = "ERROR"
)

func (t ThreadStatus) String() string {
	return string(t)
}

// IsTerminal reports whether a thread in this status can never transition again.
func (t ThreadStatus) IsTerminal() bool {
	switch t {
	case ThreadStatusDelegated, ThreadStatusCompleted, ThreadStatusError:
		return true
	}
	return false
}

type StopReason string

const (
	StopReasonNone              StopReason = ""
	StopReasonNotInterested     StopReason = "NOT_INTERESTED"
	StopReasonContinueOverEmail StopReason = "CONTINUE_OVER_EMAIL"
	StopReasonContactProvided   StopReason = "CONTACT_PROVIDED"
	StopReasonCreatorReplied    StopReason = "CREATOR_REPLIED"
	StopReasonClarification     StopReason = "CLARIFICATION_NEEDED"
	StopReasonUnknownIntent     StopReason = "UNKNOWN_INTENT"
	StopReasonMaxSendFailures   StopReason = "MAX_SEND_FAILURES"
)

func (t StopReason) String() string {
	return string(t)
}
