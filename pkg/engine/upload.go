package engine

import (
	"context"
	"fmt"

	"github.com/finchops/azreserve/pkg/storage"
)

// UploadArtifacts copies the local output directory to the configured S3
// target. A single failed object is logged and skipped rather than
// aborting the rest of the upload.
func (e *Engine) UploadArtifacts(ctx context.Context) error {
	if e.s3Target == "" {
		return nil
	}

	remote, err := storage.NewS3Store(ctx, e.s3Target)
	if err != nil {
		return fmt.Errorf("open upload target: %w", err)
	}

	local := storage.NewLocalStore(e.outputDir)
	keys, err := local.List(ctx, "")
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}

	e.Logger.Info("Uploading artifacts to S3", "target", e.s3Target, "files", len(keys))

	for _, key := range keys {
		data, err := local.Get(ctx, key)
		if err != nil {
			e.Logger.Warn("Failed to read artifact", "file", key, "error", err)
			continue
		}
		if err := remote.Put(ctx, key, data); err != nil {
			e.Logger.Warn("Failed to upload artifact", "file", key, "error", err)
			continue
		}
	}

	return nil
}
