package pipeline

// StatusOK is the task status code that lets the pipeline continue past a
// gate. Any other code is an outcome signal, not a failure.
const StatusOK = 200

const (
	ChangeTypeUpdate = "UPDATE"
	ChangeTypeCreate = "CREATE"
)

// ChangeTypeRoute names the path the entry branch takes.
type ChangeTypeRoute int

const (
	RouteUnknown ChangeTypeRoute = iota
	RouteUpdate
	RouteCreate
)

// RouteChangeType selects the entry path from the event's change type.
func RouteChangeType(doc *Document) ChangeTypeRoute {
	switch doc.ChangeType() {
	case ChangeTypeUpdate:
		return RouteUpdate
	case ChangeTypeCreate:
		return RouteCreate
	default:
		return RouteUnknown
	}
}

// ShouldTranslate reports whether the create task produced something worth
// translating.
func ShouldTranslate(doc *Document) bool {
	return statusIs(doc, TaskCreate, StatusOK)
}

// ShouldClassify reports whether the translate task succeeded.
func ShouldClassify(doc *Document) bool {
	return statusIs(doc, TaskTranslate, StatusOK)
}

func statusIs(doc *Document, task TaskName, code int) bool {
	r, ok := doc.Result(task)
	return ok && r.StatusCode == code
}

// changeTypeBranch adapts RouteChangeType to a BranchFunc over node IDs.
func changeTypeBranch(update, create, unknown string) BranchFunc {
	return func(doc *Document) string {
		switch RouteChangeType(doc) {
		case RouteUpdate:
			return update
		case RouteCreate:
			return create
		default:
			return unknown
		}
	}
}

// gate adapts a predicate to a two-way BranchFunc.
func gate(pred func(*Document) bool, pass, otherwise string) BranchFunc {
	return func(doc *Document) string {
		if pred(doc) {
			return pass
		}
		return otherwise
	}
}
