package dedup

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// Resolver applies an auto-resolution policy to a conflict set in which
// every conflict is auto-resolvable.
type Resolver interface {
	Resolve(ctx context.Context, existing model.Product, incoming IncomingProduct, conflicts []DataConflict) error
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, existing model.Product, incoming IncomingProduct, conflicts []DataConflict) error

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, existing model.Product, incoming IncomingProduct, conflicts []DataConflict) error {
	return f(ctx, existing, incoming, conflicts)
}

// ReviewUpdater sets a product's review flag.
type ReviewUpdater interface {
	UpdateProductReviewStatus(ctx context.Context, id string, requiresReview bool, notes string) error
}

// reviewNoteFormat is the note the engine writes when it flags a product.
// The trailing severity is read back by pendingSeverity.
const reviewNoteFormat = "Conflicts detected in batch %s (max severity: %s)"

var reviewSeverityRe = regexp.MustCompile(`\(max severity: (none|minor|major|critical)\)$`)

func reviewNote(batchID string, severity Severity) string {
	return fmt.Sprintf(reviewNoteFormat, batchID, severity)
}

// pendingSeverity returns the severity recorded in a review note written by
// the engine. ok is false for notes written by anyone else.
func pendingSeverity(notes string) (sev Severity, ok bool) {
	m := reviewSeverityRe.FindStringSubmatch(notes)
	if m == nil {
		return SeverityNone, false
	}
	return Severity(m[1]), true
}

// ClearReviewResolver merges nothing. It clears a pending review flag that
// was raised for minor conflicts and leaves the product's fields as stored.
// Reviews raised for major or critical conflicts, or set outside the
// engine, stay pending.
type ClearReviewResolver struct {
	Store ReviewUpdater
}

// Resolve clears the review flag when it is set for minor conflicts only.
func (r ClearReviewResolver) Resolve(ctx context.Context, existing model.Product, _ IncomingProduct, conflicts []DataConflict) error {
	if !existing.RequiresReview {
		return nil
	}
	if sev, ok := pendingSeverity(existing.ReviewNotes); !ok || sev.rank() > SeverityMinor.rank() {
		zap.L().Debug("dedup: keeping pending review",
			zap.String("product_id", existing.ID),
			zap.String("review_notes", existing.ReviewNotes),
		)
		return nil
	}
	note := fmt.Sprintf("Minor conflicts auto-resolved (%d fields)", len(conflicts))
	if err := r.Store.UpdateProductReviewStatus(ctx, existing.ID, false, note); err != nil {
		return eris.Wrapf(err, "dedup: clear review for %s", existing.ID)
	}
	return nil
}
