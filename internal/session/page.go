package session

import "github.com/nerrad567/benchdash/internal/render"

// Page is the page a session is showing.
type Page int

const (
	PageFleet Page = iota
	PageOverview
	PageGraph
)

// String returns the page name used in logs.
func (p Page) String() string {
	return p.kind().String()
}

func (p Page) kind() render.Kind {
	switch p {
	case PageOverview:
		return render.KindOverview
	case PageGraph:
		return render.KindGraph
	default:
		return render.KindFleet
	}
}
