// Package telemetry records coarse usage events as JSON lines in the user
// data directory and uploads accumulated session logs on request. Nothing
// here blocks or fails a build: recording is best-effort and upload is an
// explicit command.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vk/svcforge/internal/config"
	"github.com/vk/svcforge/internal/ctxlog"
)

// event is one recorded line.
type event struct {
	Date   string         `json:"date"`
	UserID string         `json:"user_id"`
	Name   string         `json:"name"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// Recorder appends events to one session file per process.
type Recorder struct {
	mu      sync.Mutex
	enabled bool
	userID  string
	file    *os.File
	enc     *json.Encoder
}

// NewRecorder opens a session log when telemetry is enabled. A disabled or
// unopenable recorder is still usable; it just drops events.
func NewRecorder(ctx context.Context, cfg config.Telemetry) *Recorder {
	r := &Recorder{enabled: cfg.Enabled, userID: cfg.UserID}
	if !cfg.Enabled {
		return r
	}
	dir, err := sessionDir()
	if err == nil {
		err = os.MkdirAll(dir, 0o755)
	}
	var file *os.File
	if err == nil {
		name := fmt.Sprintf("%d-%d.jsonl", time.Now().Unix(), os.Getpid())
		file, err = os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	}
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Could not open telemetry session log; events will be dropped.", "error", err)
		r.enabled = false
		return r
	}
	r.file = file
	r.enc = json.NewEncoder(file)
	return r
}

// Emit records one event. Errors are swallowed; telemetry never interferes
// with the command being run.
func (r *Recorder) Emit(name string, attrs map[string]any) {
	if r == nil || !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(event{
		Date:   time.Now().UTC().Format(time.RFC3339),
		UserID: r.userID,
		Name:   name,
		Attrs:  attrs,
	})
}

// Close flushes and closes the session log.
func (r *Recorder) Close() {
	if r == nil || r.file == nil {
		return
	}
	_ = r.file.Close()
}

func sessionDir() (string, error) {
	data, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(data, "telemetry"), nil
}
