package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

// Auditor is the contract every audit subsystem implements. An audit consumes
// the current page state and produces a fresh, scored AuditResult. Recoverable
// failures are reported inside the result; a returned error means the result
// could not be produced at all.
type Auditor interface {
	Name() string
	Description() string
	Audit(ctx context.Context, page schemas.Page) (*schemas.AuditResult, error)
}

// BaseAuditor provides the name, description and logger plumbing shared by
// the audit implementations. It is intended to be embedded.
type BaseAuditor struct {
	name        string
	description string
	Logger      *zap.Logger // Exposed for use in specific auditor implementations.
}

// NewBaseAuditor creates a BaseAuditor with a named sub-logger.
func NewBaseAuditor(name, description string, logger *zap.Logger) *BaseAuditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseAuditor{
		name:        name,
		description: description,
		Logger:      logger.Named(name),
	}
}

// Name returns the auditor's name.
func (b *BaseAuditor) Name() string {
	return b.name
}

// Description returns the auditor's description.
func (b *BaseAuditor) Description() string {
	return b.description
}
