package trainingdata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/outreachloop/followup/internal/enum"
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/utils"
)

// Recorder appends classified reply bodies to a JSONL file for building a
// local intent classifier later. Failures are logged and swallowed; the
// pipeline never depends on this path.
type Recorder struct {
	path string
	log  logger.Logger
	mu   sync.Mutex
}

type sample struct {
	EmailText   string `json:"email_text"`
	IntentLabel string `json:"intent_label"`
	RecordedAt  string `json:"recorded_at"`
}

func NewRecorder(path string, log logger.Logger) *Recorder {
	return &Recorder{
		path: path,
		log:  log,
	}
}

func (r *Recorder) Record(body string, intent enum.Intent) {
	body = strings.Join(strings.Fields(body), " ")
	if body == "" || intent == "" {
		return
	}

	line, err := json.Marshal(sample{
		EmailText:   body,
		IntentLabel: intent.String(),
		RecordedAt:  utils.Now().Format("2006-01-02T15:04:05Z"),
	})
	if err != nil {
		r.log.Warnf("failed to encode training sample: %v", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			r.log.Warnf("failed to create training data dir: %v", err)
			return
		}
	}

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.log.Warnf("failed to open training data file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		r.log.Warnf("failed to append training sample: %v", err)
	}
}
