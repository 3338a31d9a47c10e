package processor

import (
	"context"

	"renderbridge/internal/pkg/logger"
	"renderbridge/internal/ports"
)

// Cleanup removes staged input objects from storage once the render server
// holds its own copy.
type Cleanup struct {
	enabled bool
	sp      ports.StorageProvider
	log     *logger.Logger
}

// NewCleanup returns a Cleanup. It is a no-op unless enabled and sp is set.
func NewCleanup(enabled bool, sp ports.StorageProvider, log *logger.Logger) *Cleanup {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Cleanup{enabled: enabled && sp != nil, sp: sp, log: log}
}

// InputUploaded deletes objectKey. Failures are logged, never returned: the
// job has already moved past the input.
func (c *Cleanup) InputUploaded(ctx context.Context, objectKey string) {
	if !c.enabled || objectKey == "" {
		return
	}
	if err := c.sp.DeleteObject(ctx, objectKey); err != nil {
		c.log.FromContext(ctx).Warn("failed to delete staged input",
			"object_key", objectKey,
			"provider", c.sp.Provider(),
			"error", err.Error(),
		)
		return
	}
	c.log.FromContext(ctx).Debug("staged input deleted", "object_key", objectKey)
}
