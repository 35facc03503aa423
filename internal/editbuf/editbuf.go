// Package editbuf collects edits produced by independent lowering passes
// and applies them to a single source buffer without pass-ordering
// leakage (spec §4.1). One Buffer is created per translation unit at the
// start of the rewrite phase and discarded immediately after apply.
package editbuf

import (
	"sort"

	"github.com/ccfront/cc/internal/ccerrors"
)

// Edit is one non-overlapping replacement: bytes [Start, End) in the
// original buffer become Replacement.
type Edit struct {
	Start       int
	End         int
	Replacement string
	Pass        string
	Priority    int
}

// Buffer accumulates Edits plus the two append-only generated-code
// channels (prototypes, definitions) spec §4.1 names.
type Buffer struct {
	edits        []Edit
	prototypes   []string
	definitions  []string
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Add records an edit. Empty replacement over an empty span is discarded
// silently (spec §4.1 "Failure modes").
func (b *Buffer) Add(e Edit) {
	if e.Replacement == "" && e.Start == e.End {
		return
	}
	b.edits = append(b.edits, e)
}

// AddPrototype appends text to the prototype stream, emitted after the
// translation unit's include directives.
func (b *Buffer) AddPrototype(text string) {
	b.prototypes = append(b.prototypes, text)
}

// AddDefinition appends text to the definition stream, emitted at end of
// file.
func (b *Buffer) AddDefinition(text string) {
	b.definitions = append(b.definitions, text)
}

// Prototypes returns the concatenated prototype stream.
func (b *Buffer) Prototypes() string {
	return join(b.prototypes)
}

// Definitions returns the concatenated definition stream.
func (b *Buffer) Definitions() string {
	return join(b.definitions)
}

func join(parts []string) string {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return string(out)
}

// ordered returns edits sorted the way spec §4.1 requires them applied:
// descending Start (so earlier offsets stay valid across applications);
// ties broken by descending Priority, then ascending End (the larger,
// outer span is applied last and survives).
func (b *Buffer) ordered() []Edit {
	out := make([]Edit, len(b.edits))
	copy(out, b.edits)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start > out[j].Start
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].End < out[j].End
	})
	return out
}

// Apply validates non-overlap and offset range against src, then
// produces the rewritten buffer. Overlapping edits and out-of-range
// offsets are fatal InternalErrors naming the conflicting pass tags
// (spec §4.1 "Failure modes").
func (b *Buffer) Apply(src []byte) (string, error) {
	ordered := b.ordered()

	// Overlap + range check. ordered() is descending by Start, so a
	// conflict is between adjacent entries once duplicated starts are
	// resolved; check every consecutive pair in source order instead,
	// since overlap is symmetric regardless of apply order.
	byStart := make([]Edit, len(ordered))
	copy(byStart, ordered)
	sort.Slice(byStart, func(i, j int) bool { return byStart[i].Start < byStart[j].Start })
	for i, e := range byStart {
		if e.Start < 0 || e.End > len(src) || e.Start > e.End {
			return "", ccerrors.NewInternalError("editbuf",
				"edit from pass "+e.Pass+" has out-of-range offsets")
		}
		if i > 0 {
			prev := byStart[i-1]
			if prev.End > e.Start {
				return "", ccerrors.NewInternalError("editbuf",
					"overlapping edits from pass "+prev.Pass+" and pass "+e.Pass)
			}
		}
	}

	out := append([]byte(nil), src...)
	for _, e := range ordered {
		var rewritten []byte
		rewritten = append(rewritten, out[:e.Start]...)
		rewritten = append(rewritten, e.Replacement...)
		rewritten = append(rewritten, out[e.End:]...)
		out = rewritten
	}
	return string(out), nil
}

// Len returns the number of edits currently queued.
func (b *Buffer) Len() int { return len(b.edits) }
