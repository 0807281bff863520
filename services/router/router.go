package router

import (
	"github.com/outreachloop/followup/internal/enum"
	"github.com/outreachloop/followup/internal/models"
)

// Decision is the routed outcome for one analyzed reply. Persistence and
// side effects are applied by the caller.
type Decision struct {
	Action     enum.Action
	ToStatus   enum.ThreadStatus
	StopReason enum.StopReason
	ToStage    int
	Reason     string
}

// Decide routes an analyzed reply against the thread state, first match wins.
// It is stateless and side-effect free.
func Decide(analysis *models.EmailAnalysis, existing *models.Thread) Decision {
	if analysis == nil {
		analysis = &models.EmailAnalysis{Intent: enum.IntentUnclear}
	}

	if existing != nil {
		if analysis.Intent == enum.IntentContinueOverEmail {
			return Decision{
				Action:     enum.ActionMarkComplete,
				ToStatus:   enum.ThreadStatusCompleted,
				StopReason: enum.StopReasonContinueOverEmail,
				ToStage:    existing.CurrentStage,
				Reason:     "creator wants to continue over email",
			}
		}
		return Decision{
			Action:     enum.ActionDelegateToHuman,
			ToStatus:   enum.ThreadStatusDelegated,
			StopReason: enum.StopReasonCreatorReplied,
			ToStage:    existing.CurrentStage,
			Reason:     "creator replied on a tracked thread",
		}
	}

	switch {
	case analysis.Intent == enum.IntentNotInterested:
		return Decision{
			Action:     enum.ActionMarkComplete,
			ToStatus:   enum.ThreadStatusCompleted,
			StopReason: enum.StopReasonNotInterested,
			Reason:     "creator is not interested",
		}
	case analysis.Intent == enum.IntentContinueOverEmail:
		return Decision{
			Action:     enum.ActionMarkComplete,
			ToStatus:   enum.ThreadStatusCompleted,
			StopReason: enum.StopReasonContinueOverEmail,
			Reason:     "creator wants to continue over email",
		}
	case analysis.Intent == enum.IntentContactProvided || analysis.HasContact():
		return Decision{
			Action:     enum.ActionDelegateToHuman,
			ToStatus:   enum.ThreadStatusDelegated,
			StopReason: enum.StopReasonContactProvided,
			Reason:     "contact details provided",
		}
	case analysis.Intent == enum.IntentInterested:
		return Decision{
			Action:   enum.ActionSendStage1Followup,
			ToStatus: enum.ThreadStatusFollowupActive,
			ToStage:  1,
			Reason:   "interested, no contact yet",
		}
	case analysis.Intent == enum.IntentClarification:
		return Decision{
			Action:     enum.ActionDelegateToHuman,
			ToStatus:   enum.ThreadStatusDelegated,
			StopReason: enum.StopReasonClarification,
			Reason:     "creator asked for clarification",
		}
	}

	// Fail safe toward a human for anything the classifier could not place.
	return Decision{
		Action:     enum.ActionDelegateToHuman,
		ToStatus:   enum.ThreadStatusDelegated,
		StopReason: enum.StopReasonUnknownIntent,
		Reason:     "intent could not be classified",
	}
}
