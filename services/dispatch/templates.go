package dispatch

import "time"

// Follow-up copy is fixed per stage.
var stageTemplates = map[int]string{
	1: "Could you share your WhatsApp contact and address with me? I will ask my team to connect with you immediately.",
	2: "Just checking in — can you please share your WhatsApp contact so we can connect quickly?",
	3: "Wanted to follow up again — we'd love to take this forward but just need your WhatsApp number to coordinate better.",
}

// nextStageDelay is the wait before the following stage becomes due.
var nextStageDelay = map[int]time.Duration{
	1: 24 * time.Hour,
	2: 48 * time.Hour,
}

const maxStage = 3
