package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

// CheckFunc runs one independent rule and returns its findings.
type CheckFunc func(ctx context.Context) ([]schemas.Finding, error)

// Check is a named rule in an audit battery.
type Check struct {
	ID  string
	Run CheckFunc
}

// RunChecks executes each check in order and collects the findings. A check
// that returns an error, panics, or produces an invalid finding is logged and
// omitted entirely; the remaining checks still run. Cancellation stops the
// battery between checks.
func RunChecks(ctx context.Context, logger *zap.Logger, checks []Check) schemas.Findings {
	var out schemas.Findings
	for _, check := range checks {
		if ctx.Err() != nil {
			logger.Debug("Context cancelled, skipping remaining checks.", zap.String("next_check", check.ID))
			break
		}

		findings, err := runCheck(ctx, check)
		if err != nil {
			logger.Warn("Check failed, omitting from results.", zap.String("check", check.ID), zap.Error(err))
			continue
		}

		var staged schemas.Findings
		valid := true
		for _, f := range findings {
			if err := staged.Add(f); err != nil {
				logger.Warn("Check produced an invalid finding, omitting from results.",
					zap.String("check", check.ID), zap.Error(err))
				valid = false
				break
			}
		}
		if !valid {
			continue
		}
		for _, f := range staged.All() {
			_ = out.Add(f)
		}
	}
	return out
}

func runCheck(ctx context.Context, check Check) (findings []schemas.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check %s panicked: %v", check.ID, r)
		}
	}()
	return check.Run(ctx)
}

// Merge appends every finding of src into dst.
func Merge(dst *schemas.Findings, src schemas.Findings) {
	for _, f := range src.All() {
		_ = dst.Add(f)
	}
}

// MustFinding builds a finding from constant inputs and panics on an invalid
// combination. Only use it with literal categories and severities.
func MustFinding(id string, category schemas.Category, severity schemas.Severity, message string) schemas.Finding {
	f, err := schemas.NewFinding(id, category, severity, message)
	if err != nil {
		panic(err)
	}
	return f
}

// Violation, Warning, Passed and Incomplete are shorthands over MustFinding.
func Violation(id string, severity schemas.Severity, message string) schemas.Finding {
	return MustFinding(id, schemas.CategoryViolation, severity, message)
}

func Warning(id string, severity schemas.Severity, message string) schemas.Finding {
	return MustFinding(id, schemas.CategoryWarning, severity, message)
}

func Passed(id, message string) schemas.Finding {
	return MustFinding(id, schemas.CategoryPassed, "", message)
}

func Incomplete(id, message string) schemas.Finding {
	return MustFinding(id, schemas.CategoryIncomplete, "", message)
}
