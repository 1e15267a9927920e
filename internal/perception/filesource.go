package perception

import (
	"context"
	"os"
	"strings"
	"time"
)

// FileSource bridges an external capture pipeline through two text files:
// the vision side rewrites scenePath with the latest scene description, the
// ASR side rewrites heardPath when someone speaks. Heard text is reported
// once per file update so a stale transcript cannot retrigger the gate.
type FileSource struct {
	scenePath string
	heardPath string

	pollEvery time.Duration
	heardSeen time.Time
}

// NewFileSource builds a source over the given bridge files. pollEvery is
// how often Observe re-reads them.
func NewFileSource(scenePath, heardPath string, pollEvery time.Duration) *FileSource {
	if pollEvery < 100*time.Millisecond {
		pollEvery = 100 * time.Millisecond
	}
	return &FileSource{scenePath: scenePath, heardPath: heardPath, pollEvery: pollEvery}
}

// Observe implements Source. It paces itself with pollEvery so the cached
// observer's capture loop does not spin on file reads.
func (f *FileSource) Observe(ctx context.Context) (Observation, error) {
	select {
	case <-ctx.Done():
		return Observation{}, ctx.Err()
	case <-time.After(f.pollEvery):
	}

	obs := Observation{CapturedAt: time.Now()}
	if data, err := os.ReadFile(f.scenePath); err == nil {
		obs.Scene = strings.TrimSpace(string(data))
	}
	if info, err := os.Stat(f.heardPath); err == nil && info.ModTime().After(f.heardSeen) {
		if data, err := os.ReadFile(f.heardPath); err == nil {
			obs.Heard = strings.TrimSpace(string(data))
			f.heardSeen = info.ModTime()
		}
	}
	return obs, nil
}
