package evaluation

import (
	"fmt"
	"time"

	"github.com/23skdu/longbow-amreval/internal/amr"
	"github.com/23skdu/longbow-amreval/internal/config"
	"github.com/23skdu/longbow-amreval/internal/metrics"
)

// DateLayout matches the timestamps written into prediction headers.
const DateLayout = "2006-01-02 15:04:05.000000"

// Reconciler derives the metadata of a predicted graph from its reference.
type Reconciler struct {
	Annotator string
	Now       func() time.Time
}

func NewReconciler(annotator string) *Reconciler {
	if annotator == "" {
		annotator = config.DefaultAnnotator
	}
	return &Reconciler{Annotator: annotator, Now: time.Now}
}

// Reconcile copies ref, stamps annotator and date, defaults tok, moves the
// original sentence from snt_org to snt and drops save-date. ref is never
// modified.
func (r *Reconciler) Reconcile(ref amr.Metadata) (amr.Metadata, error) {
	orig, ok := ref["snt_org"]
	if !ok {
		metrics.RecordValidationError("reconcile", "snt_org")
		return nil, fmt.Errorf("%w: snt_org", ErrMissingMetadata)
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	md := ref.Clone()
	md["annotator"] = r.Annotator
	md["date"] = now().Format(DateLayout)
	if _, ok := md["tok"]; !ok {
		if snt, ok := md["snt"]; ok {
			md["tok"] = snt
		} else {
			md["tok"] = orig
		}
	}
	md["snt"] = orig
	delete(md, "snt_org")
	delete(md, "save-date")
	return md, nil
}
