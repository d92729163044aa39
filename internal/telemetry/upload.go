package telemetry

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"resty.dev/v3"

	"github.com/vk/svcforge/internal/config"
	"github.com/vk/svcforge/internal/ctxlog"
)

// Upload posts each accumulated session log to the configured endpoint,
// gzip-compressed, deleting files the server accepted. Below the configured
// minimum file count nothing is sent, which batches tiny sessions.
func Upload(ctx context.Context, cfg config.Telemetry) error {
	logger := ctxlog.FromContext(ctx)
	if !cfg.Enabled || cfg.Endpoint == "" {
		logger.Debug("Telemetry upload skipped: disabled or no endpoint.")
		return nil
	}

	dir, err := sessionDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) < cfg.MinFiles {
		logger.Debug("Not enough session logs to upload yet.", "have", len(entries), "want", cfg.MinFiles)
		return nil
	}

	client := resty.New().SetTimeout(5 * time.Second)
	defer client.Close()

	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("could not read file `%s`: %w", path, err)
		}

		var compressed bytes.Buffer
		gz := gzip.NewWriter(&compressed)
		if _, err := gz.Write(content); err != nil {
			return err
		}
		if err := gz.Close(); err != nil {
			return err
		}

		res, err := client.R().
			SetContext(ctx).
			SetHeader("Content-Encoding", "gzip").
			SetBody(compressed.Bytes()).
			Post(cfg.Endpoint)
		if err != nil {
			return fmt.Errorf("upload `%s`: %w", entry.Name(), err)
		}
		if !res.IsSuccess() {
			return fmt.Errorf("upload `%s`: server returned %d", entry.Name(), res.StatusCode())
		}
		logger.Debug("Uploaded session log.", "file", entry.Name(), "status", res.StatusCode())
		uploaded++
		_ = os.Remove(path)
	}
	logger.Info("Telemetry upload complete.", "uploaded", uploaded)
	return nil
}
