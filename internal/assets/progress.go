package assets

import (
	"fmt"
	"strings"
)

type EventKind string

const (
	EventGathered        EventKind = "gathered"
	EventFetched         EventKind = "fetched"
	EventPlanned         EventKind = "planned"
	EventBatchCreated    EventKind = "batch_created"
	EventChunkUploaded   EventKind = "chunk_uploaded"
	EventBatchCommitted  EventKind = "batch_committed"
	EventBatchRestarted  EventKind = "batch_restarted"
	EventBatchFailed     EventKind = "batch_failed"
	EventConsentRequired EventKind = "consent_required"
)

// Event is a progress notification. Fields that do not apply to Kind are zero.
type Event struct {
	Kind    EventKind
	Batch   int
	Batches int
	BatchID BatchID
	Key     string
	Count   int
	Bytes   int
	Err     error
}

// ProgressFunc receives events in order from the goroutine running the sync,
// except EventChunkUploaded which may arrive from upload workers.
type ProgressFunc func(Event)

func (f ProgressFunc) emit(ev Event) {
	if f != nil {
		f(ev)
	}
}

// ChangeSummary describes the destructive part of a plan. A key the plan
// deletes and creates again is Replaced, not Deleted.
type ChangeSummary struct {
	Deleted  []string
	Replaced []string
	Unset    []*UnsetAssetContent
}

func summarize(batches []*PlannedBatch) *ChangeSummary {
	created := make(map[string]bool)
	for _, b := range batches {
		for _, op := range b.Operations {
			if c, ok := op.(*CreateAsset); ok {
				created[c.Key] = true
			}
		}
	}

	s := &ChangeSummary{}
	for _, b := range batches {
		for _, op := range b.Destructive() {
			switch o := op.(type) {
			case *DeleteAsset:
				if created[o.Key] {
					s.Replaced = append(s.Replaced, o.Key)
				} else {
					s.Deleted = append(s.Deleted, o.Key)
				}
			case *UnsetAssetContent:
				s.Unset = append(s.Unset, o)
			}
		}
	}
	return s
}

func (s *ChangeSummary) Empty() bool {
	return s.Count() == 0
}

// Count is the number of destructive changes.
func (s *ChangeSummary) Count() int {
	return len(s.Deleted) + len(s.Replaced) + len(s.Unset)
}

// String renders the summary for a confirmation prompt.
func (s *ChangeSummary) String() string {
	var sb strings.Builder
	if len(s.Deleted) > 0 {
		fmt.Fprintf(&sb, "%d asset(s) will be deleted:\n", len(s.Deleted))
		for _, key := range s.Deleted {
			fmt.Fprintf(&sb, "  - %s\n", key)
		}
	}
	if len(s.Replaced) > 0 {
		fmt.Fprintf(&sb, "%d asset(s) will be replaced:\n", len(s.Replaced))
		for _, key := range s.Replaced {
			fmt.Fprintf(&sb, "  - %s\n", key)
		}
	}
	if len(s.Unset) > 0 {
		fmt.Fprintf(&sb, "%d encoding(s) will be removed:\n", len(s.Unset))
		for _, op := range s.Unset {
			fmt.Fprintf(&sb, "  - %s (%s)\n", op.Key, op.ContentEncoding)
		}
	}
	return sb.String()
}
