package pipeline

// State names of the case pipeline graph.
const (
	StateEntryBranch        = "EntryBranch"
	StateUpdateTask         = "UpdateTask"
	StateCreateTask         = "CreateTask"
	StateTranslationGate    = "TranslationGate"
	StateTranslateTask      = "TranslateTask"
	StateClassificationGate = "ClassificationGate"
	StateClassifyTask       = "ClassifyTask"

	StateDone               = "Done"
	StateSkipClassification = "SkipClassification"
	StateSkipTranslation    = "SkipTranslation"
	StateAfterUpdate        = "AfterUpdate"
	StateUnknownChangeType  = "UnknownChangeType"
	StateFail               = "Fail"
	StateTimedOut           = "TimedOut"
)

// GraphName is the name of the case pipeline graph.
const GraphName = "CaseDataPipeline"

// BuildGraph assembles the case pipeline:
//
//	EntryBranch ─UPDATE→ UpdateTask → AfterUpdate
//	            ─CREATE→ CreateTask → TranslationGate ─200→ TranslateTask → ClassificationGate ─200→ ClassifyTask → Done
//	                                                  └──→ SkipTranslation                      └──→ SkipClassification
//	            └──────→ UnknownChangeType
//
// Every task node catches escalations into Fail. TimedOut has no incoming
// edge; the engine resolves to it when the execution budget runs out.
func BuildGraph() *Graph {
	b := newGraphBuilder(GraphName, StateEntryBranch)

	transient := DefaultRetryPolicy()

	b.branch(StateEntryBranch, "Choice - Change Event",
		changeTypeBranch(StateUpdateTask, StateCreateTask, StateUnknownChangeType))
	b.choice(StateEntryBranch, StateUpdateTask, `changeType == "UPDATE"`)
	b.choice(StateEntryBranch, StateCreateTask, `changeType == "CREATE"`)
	b.otherwise(StateEntryBranch, StateUnknownChangeType)

	b.task(StateUpdateTask, "Update Cases", TaskUpdate, StateAfterUpdate, transient, EventLagRetryPolicy())

	b.task(StateCreateTask, "Insert New Cases", TaskCreate, StateTranslationGate, transient)
	b.branch(StateTranslationGate, "Choice - Run Translation",
		gate(ShouldTranslate, StateTranslateTask, StateSkipTranslation))
	b.choice(StateTranslationGate, StateTranslateTask, "create_result.statusCode == 200")
	b.otherwise(StateTranslationGate, StateSkipTranslation)

	b.task(StateTranslateTask, "Translate Data", TaskTranslate, StateClassificationGate, transient)
	b.branch(StateClassificationGate, "Choice - Run Classification",
		gate(ShouldClassify, StateClassifyTask, StateSkipClassification))
	b.choice(StateClassificationGate, StateClassifyTask, "translate_result.statusCode == 200")
	b.otherwise(StateClassificationGate, StateSkipClassification)

	b.task(StateClassifyTask, "Classify Data", TaskClassify, StateDone, transient)

	b.terminal(StateDone, "Done", OutcomeDone)
	b.terminal(StateSkipClassification, "Skip Classification", OutcomeSkipClassification)
	b.terminal(StateSkipTranslation, "Skip Translation", OutcomeSkipTranslation)
	b.terminal(StateAfterUpdate, "After Update", OutcomeAfterUpdate)
	b.terminal(StateUnknownChangeType, "Unknown ChangeType", OutcomeUnknownChangeType)
	b.terminal(StateFail, "Record Failure", OutcomeFail)
	b.terminal(StateTimedOut, "Timed Out", OutcomeTimedOut)

	return b.g
}

type graphBuilder struct {
	g *Graph
}

func newGraphBuilder(name, entry string) *graphBuilder {
	return &graphBuilder{g: &Graph{
		Name:  name,
		Entry: entry,
		Nodes: make(map[string]*Node),
	}}
}

// task adds a task node with its success edge and its catch edge into Fail.
func (b *graphBuilder) task(id, label string, task TaskName, next string, policies ...RetryPolicy) {
	b.g.Nodes[id] = &Node{ID: id, Kind: NodeKindTask, Label: label, Task: task, Policies: policies}
	b.edge(id, next, EdgeNext, "")
	b.edge(id, StateFail, EdgeCatch, "error")
}

func (b *graphBuilder) branch(id, label string, decide BranchFunc) {
	b.g.Nodes[id] = &Node{ID: id, Kind: NodeKindBranch, Label: label, Decide: decide}
}

func (b *graphBuilder) choice(from, to, cond string) {
	b.edge(from, to, EdgeChoice, cond)
}

func (b *graphBuilder) otherwise(from, to string) {
	b.edge(from, to, EdgeDefault, "otherwise")
}

func (b *graphBuilder) terminal(id, label string, outcome Outcome) {
	b.g.Nodes[id] = &Node{ID: id, Kind: NodeKindTerminal, Label: label, Outcome: outcome}
}

func (b *graphBuilder) edge(from, to string, kind EdgeKind, label string) {
	b.g.Edges = append(b.g.Edges, &Edge{From: from, To: to, Kind: kind, Label: label})
}
