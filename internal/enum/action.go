package enum

type Action string

const (
	ActionSendStage1Followup Action = "SEND_STAGE_1_FOLLOWUP"
	ActionDelegateToHuman    Action = "DELEGATE_TO_HUMAN"
	ActionMarkComplete       Action = "MARK_COMPLETE"
	ActionSkip               Action = "SKIP"
)

func (t Action) String() string {
	return string(t)
}
