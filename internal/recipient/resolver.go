// internal/recipient/resolver.go
package recipient

import (
	"context"
	"sort"
	"time"

	"school-notify/internal/common/errors"
	"school-notify/internal/common/logger"
	"school-notify/internal/models"
)

// Resolver expands a recipient specification into a concrete, de-duplicated
// recipient set. Resolution is re-runnable; the notification aggregate
// freezes the result exactly once when dispatch begins.
type Resolver struct {
	dir    Directory
	logger logger.Logger
}

func NewResolver(dir Directory, log logger.Logger) *Resolver {
	return &Resolver{
		dir:    dir,
		logger: log.WithFields(map[string]interface{}{"component": "recipient-resolver"}),
	}
}

// Resolve returns the sorted union of all expansions of the spec. Any lookup
// failure aborts the whole resolution; a partial recipient set must never be
// frozen as authoritative.
func (r *Resolver) Resolve(ctx context.Context, spec models.RecipientSpec, asOf time.Time) ([]string, error) {
	if spec.Empty() {
		return nil, errors.NewRecipientSpecInvalidError("recipient spec selects nobody")
	}

	set := map[string]bool{}

	// explicit user IDs are unconditionally included
	for _, id := range spec.UserIDs {
		if id != "" {
			set[id] = true
		}
	}

	for _, role := range spec.Roles {
		ids, err := r.dir.LookupUsersByRole(ctx, role)
		if err != nil {
			return nil, resolutionErr(err)
		}
		for _, id := range ids {
			set[id] = true
		}
	}

	for _, cs := range spec.Classes {
		ids, err := r.dir.LookupUsersByClass(ctx, cs.ClassID, cs.Sections)
		if err != nil {
			return nil, resolutionErr(err)
		}
		for _, id := range ids {
			set[id] = true
		}
	}

	for _, f := range spec.Filters {
		if f.Attribute == "" {
			return nil, errors.NewRecipientSpecInvalidError("attribute filter without attribute")
		}
		ids, err := r.dir.LookupUsersByAttribute(ctx, f, asOf)
		if err != nil {
			return nil, resolutionErr(err)
		}
		for _, id := range ids {
			set[id] = true
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)

	r.logger.Debug("recipient spec resolved", map[string]interface{}{
		"recipients": len(out),
		"asOf":       asOf,
	})

	return out, nil
}

// resolutionErr keeps spec errors as-is and wraps lookup failures as
// retryable resolution errors.
func resolutionErr(err error) error {
	if errors.CodeOf(err) == errors.ErrCodeRecipientSpecInvalid {
		return err
	}
	return errors.NewRecipientResolutionFailedError(err)
}
