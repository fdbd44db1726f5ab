package workflow

// Labels used by RevisionRouter.
const (
	LabelRevise  = "revise"
	LabelForward = "forward"
)

// RevisionPolicy describes a quality-gate loop. The gate stage owns both
// fields it reads: it sets the needs-revision flag and increments the
// revision count on every review.
type RevisionPolicy[S any] struct {
	NeedsRevision func(state S) bool
	RevisionCount func(state S) int
	// Ceiling is how many times the gate may send work back. Once the count
	// passes it the forward label is chosen regardless of the gate outcome.
	Ceiling int
	// Revise and Forward override the default labels.
	Revise  string
	Forward string
}

// RevisionRouter builds the router of a gate stage. With Ceiling n the
// revised stage runs at most n+1 times per run.
func RevisionRouter[S any](p RevisionPolicy[S]) Router[S] {
	revise, forward := p.Revise, p.Forward
	if revise == "" {
		revise = LabelRevise
	}
	if forward == "" {
		forward = LabelForward
	}
	return func(state S) string {
		if p.NeedsRevision(state) && p.RevisionCount(state) <= p.Ceiling {
			return revise
		}
		return forward
	}
}
