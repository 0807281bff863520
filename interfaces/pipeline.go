package interfaces

import (
	"context"

	"github.com/outreachloop/followup/internal/models"
)

// PipelineService runs the inbound reply pipeline with bounded concurrency.
type PipelineService interface {
	// Submit queues one inbound message for processing. Blocks while all
	// workers are busy.
	Submit(ctx context.Context, message *models.InboundMessage)
	// Drain waits for in-flight messages to finish.
	Drain(ctx context.Context)
}
