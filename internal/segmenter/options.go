package segmenter

import (
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/segmenter-mcp/internal/logging"
)

type options struct {
	logger   logrus.FieldLogger
	progress Progress
	budget   int64
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger used for pass summaries and warnings.
// A nil logger keeps the default, which discards everything.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProgress sets the progress and cancellation capability polled between
// merge passes.
func WithProgress(p Progress) Option {
	return func(o *options) {
		o.progress = p
	}
}

// WithMemoryBudget limits the bytes the segment arena may take. Zero or a
// negative value means no limit.
func WithMemoryBudget(bytes int64) Option {
	return func(o *options) {
		o.budget = bytes
	}
}

func discardLogger() logrus.FieldLogger {
	return logging.Discard()
}
