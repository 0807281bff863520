package interfaces

import (
	"golang.org/x/net/context"

	"github.com/outreachloop/followup/internal/models"
)

// AnalyzerService classifies reply intent and extracts contact details.
type AnalyzerService interface {
	Analyze(ctx context.Context, message *models.InboundMessage) (*models.EmailAnalysis, error)
}
