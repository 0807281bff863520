package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/outreachloop/followup/internal/enum"
	"github.com/outreachloop/followup/internal/models"
)

func TestDecide_NewThread(t *testing.T) {
	tests := []struct {
		name           string
		analysis       *models.EmailAnalysis
		wantAction     enum.Action
		wantStatus     enum.ThreadStatus
		wantStopReason enum.StopReason
		wantStage      int
	}{
		{
			name:       "interested without contact starts followups",
			analysis:   &models.EmailAnalysis{Intent: enum.IntentInterested},
			wantAction: enum.ActionSendStage1Followup,
			wantStatus: enum.ThreadStatusFollowupActive,
			wantStage:  1,
		},
		{
			name:           "not interested completes",
			analysis:       &models.EmailAnalysis{Intent: enum.IntentNotInterested},
			wantAction:     enum.ActionMarkComplete,
			wantStatus:     enum.ThreadStatusCompleted,
			wantStopReason: enum.StopReasonNotInterested,
		},
		{
			name:           "continue over email completes",
			analysis:       &models.EmailAnalysis{Intent: enum.IntentContinueOverEmail},
			wantAction:     enum.ActionMarkComplete,
			wantStatus:     enum.ThreadStatusCompleted,
			wantStopReason: enum.StopReasonContinueOverEmail,
		},
		{
			name:           "contact provided delegates",
			analysis:       &models.EmailAnalysis{Intent: enum.IntentContactProvided, PhoneNumbers: []string{"+14155550100"}},
			wantAction:     enum.ActionDelegateToHuman,
			wantStatus:     enum.ThreadStatusDelegated,
			wantStopReason: enum.StopReasonContactProvided,
		},
		{
			name:           "phone beats interested intent",
			analysis:       &models.EmailAnalysis{Intent: enum.IntentInterested, PhoneNumbers: []string{"+14155550100"}},
			wantAction:     enum.ActionDelegateToHuman,
			wantStatus:     enum.ThreadStatusDelegated,
			wantStopReason: enum.StopReasonContactProvided,
		},
		{
			name:           "address alone counts as contact",
			analysis:       &models.EmailAnalysis{Intent: enum.IntentInterested, HasAddress: true},
			wantAction:     enum.ActionDelegateToHuman,
			wantStatus:     enum.ThreadStatusDelegated,
			wantStopReason: enum.StopReasonContactProvided,
		},
		{
			name:           "clarification delegates",
			analysis:       &models.EmailAnalysis{Intent: enum.IntentClarification},
			wantAction:     enum.ActionDelegateToHuman,
			wantStatus:     enum.ThreadStatusDelegated,
			wantStopReason: enum.StopReasonClarification,
		},
		{
			name:           "unclear delegates with unknown intent",
			analysis:       &models.EmailAnalysis{Intent: enum.IntentUnclear},
			wantAction:     enum.ActionDelegateToHuman,
			wantStatus:     enum.ThreadStatusDelegated,
			wantStopReason: enum.StopReasonUnknownIntent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Decide(tt.analysis, nil)

			assert.Equal(t, tt.wantAction, decision.Action)
			assert.Equal(t, tt.wantStatus, decision.ToStatus)
			assert.Equal(t, tt.wantStopReason, decision.StopReason)
			assert.Equal(t, tt.wantStage, decision.ToStage)
		})
	}
}

func TestDecide_ExistingThread(t *testing.T) {
	existing := &models.Thread{
		ID:           "thread_1",
		Status:       enum.ThreadStatusFollowupActive,
		CurrentStage: 2,
	}

	t.Run("continue over email completes the thread", func(t *testing.T) {
		decision := Decide(&models.EmailAnalysis{Intent: enum.IntentContinueOverEmail}, existing)

		assert.Equal(t, enum.ActionMarkComplete, decision.Action)
		assert.Equal(t, enum.ThreadStatusCompleted, decision.ToStatus)
		assert.Equal(t, enum.StopReasonContinueOverEmail, decision.StopReason)
		assert.Equal(t, 2, decision.ToStage)
	})

	t.Run("any other intent delegates as creator replied", func(t *testing.T) {
		for _, intent := range []enum.Intent{
			enum.IntentInterested,
			enum.IntentNotInterested,
			enum.IntentClarification,
			enum.IntentContactProvided,
			enum.IntentUnclear,
		} {
			decision := Decide(&models.EmailAnalysis{Intent: intent}, existing)

			assert.Equal(t, enum.ActionDelegateToHuman, decision.Action, "intent %s", intent)
			assert.Equal(t, enum.ThreadStatusDelegated, decision.ToStatus, "intent %s", intent)
			assert.Equal(t, enum.StopReasonCreatorReplied, decision.StopReason, "intent %s", intent)
		}
	})
}

func TestDecide_NilAnalysisDelegates(t *testing.T) {
	decision := Decide(nil, nil)

	assert.Equal(t, enum.ActionDelegateToHuman, decision.Action)
	assert.Equal(t, enum.StopReasonUnknownIntent, decision.StopReason)
}
