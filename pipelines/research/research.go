// Package research builds the hierarchical research workflow: a supervisor
// classifies the question, one research branch answers it, and the result is
// summarised and saved as a report.
package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/stategraph/pipelines"
	"github.com/BaSui01/stategraph/workflow"
	"go.uber.org/zap"
)

// GraphName is the compiled graph's name.
const GraphName = "research"

// Node names.
const (
	NodeSupervisor = "Supervisor"
	NodeMedical    = "MedicalResearch"
	NodeFinancial  = "FinancialResearch"
	NodeGeneral    = "GeneralResearch"
	NodeSummary    = "CreateSummary"
	NodeSave       = "SaveSummary"
)

// Topics returned by the classifier; each is a router label.
const (
	TopicMedical   = "medical"
	TopicFinancial = "financial"
	TopicGeneral   = "general"
)

// Placeholders for failed steps.
const (
	ResearchUnavailable = "Research unavailable."
	SummaryFailed       = "Summary generation failed. Please try again."
)

// State fields. Messages is replaced wholesale by every node that extends it.
var (
	Messages   = workflow.NewField[[]string]("messages")
	Topic      = workflow.NewField[string]("topic")
	Summary    = workflow.NewField[string]("summary")
	ReportPath = workflow.NewField[string]("report_path")
)

// NewInitialState seeds the conversation with the user's question.
func NewInitialState(query string) workflow.State {
	s := Messages.Set(workflow.NewState(), []string{query})
	s = Topic.Set(s, "")
	return Summary.Set(s, "")
}

var topicKeywords = []struct {
	topic    string
	keywords []string
}{
	{TopicMedical, []string{"health", "disease", "treatment", "symptom", "medical"}},
	{TopicFinancial, []string{"stock", "finance", "market", "invest"}},
}

// Classify maps a question to a topic by keyword; anything unmatched is general.
func Classify(query string) string {
	q := strings.ToLower(query)
	for _, tk := range topicKeywords {
		for _, kw := range tk.keywords {
			if strings.Contains(q, kw) {
				return tk.topic
			}
		}
	}
	return TopicGeneral
}

// Generator produces free text with reasoning blocks removed.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Deps are the collaborators of the research graph.
type Deps struct {
	Generator Generator
	Sink      ReportSink
	// Classifier overrides Classify.
	Classifier func(query string) string
}

// NewGraph compiles the research graph.
func NewGraph(deps Deps, opts pipelines.Options) (*workflow.CompiledGraph, error) {
	if deps.Generator == nil || deps.Sink == nil {
		return nil, fmt.Errorf("research: generator and sink are required")
	}
	if deps.Classifier == nil {
		deps.Classifier = Classify
	}
	n := &nodes{deps: deps}

	route := workflow.RouterFunc(func(ctx context.Context, s workflow.State) (string, error) {
		return Topic.GetOr(s, ""), nil
	})

	g := opts.Apply(workflow.NewStateGraph(GraphName)).
		AddNodeFunc(NodeSupervisor, n.supervisor).
		AddNodeFunc(NodeMedical, n.researcher("Medical", "medical")).
		AddNodeFunc(NodeFinancial, n.researcher("Financial", "financial")).
		AddNodeFunc(NodeGeneral, n.researcher("General", "general")).
		AddNodeFunc(NodeSummary, n.createSummary).
		AddNodeFunc(NodeSave, n.saveSummary).
		SetEntry(NodeSupervisor).
		AddConditionalEdges(NodeSupervisor, route, map[string]string{
			TopicMedical:   NodeMedical,
			TopicFinancial: NodeFinancial,
			TopicGeneral:   NodeGeneral,
		}).
		AddEdge(NodeMedical, NodeSummary).
		AddEdge(NodeFinancial, NodeSummary).
		AddEdge(NodeGeneral, NodeSummary).
		AddEdge(NodeSummary, NodeSave).
		AddEdge(NodeSave, workflow.END)

	return g.Compile()
}

// Run executes one question and returns the final state.
func Run(ctx context.Context, graph *workflow.CompiledGraph, query string, opts ...workflow.RunOption) (*workflow.RunResult, error) {
	return graph.Run(ctx, NewInitialState(query), opts...)
}

type nodes struct {
	deps Deps
}

// appendMessage returns a new list; the state's list is never modified.
func appendMessage(s workflow.State, msg string) []string {
	prev := Messages.GetOr(s, nil)
	out := make([]string, 0, len(prev)+1)
	out = append(out, prev...)
	return append(out, msg)
}

func lastMessage(s workflow.State) string {
	msgs := Messages.GetOr(s, nil)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func firstMessage(s workflow.State) string {
	msgs := Messages.GetOr(s, nil)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[0]
}

func (n *nodes) supervisor(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
	topic := n.deps.Classifier(lastMessage(s))
	rt.Log().Debug("question classified", zap.String("topic", topic))

	delta := Topic.Set(workflow.NewState(), topic)
	return Messages.Set(delta, appendMessage(s, "Topic classified as: "+topic)), nil
}

func (n *nodes) researcher(label, domain string) workflow.NodeFunc {
	return func(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
		prompt := fmt.Sprintf("Research this %s topic: %s", domain, firstMessage(s))
		text, err := n.deps.Generator.Generate(ctx, prompt)
		if err != nil {
			msg := fmt.Sprintf("[%s Research] %s", label, ResearchUnavailable)
			return Messages.Set(workflow.NewState(), appendMessage(s, msg)), fmt.Errorf("%s research: %w", domain, err)
		}
		msg := fmt.Sprintf("[%s Research] %s", label, text)
		return Messages.Set(workflow.NewState(), appendMessage(s, msg)), nil
	}
}

func (n *nodes) createSummary(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
	prompt := "Create a short summary from: " + lastMessage(s)
	text, err := n.deps.Generator.Generate(ctx, prompt)
	if err != nil {
		delta := Summary.Set(workflow.NewState(), SummaryFailed)
		return Messages.Set(delta, appendMessage(s, "[Summary] "+SummaryFailed)), fmt.Errorf("create summary: %w", err)
	}
	delta := Summary.Set(workflow.NewState(), text)
	return Messages.Set(delta, appendMessage(s, "[Summary] "+text)), nil
}

func (n *nodes) saveSummary(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
	report := Report{
		RunID:   rt.RunID,
		Query:   firstMessage(s),
		Topic:   Topic.GetOr(s, ""),
		Summary: Summary.GetOr(s, ""),
	}
	location, err := n.deps.Sink.Save(ctx, report)
	if err != nil {
		msg := "[Document Not Saved] " + err.Error()
		return Messages.Set(workflow.NewState(), appendMessage(s, msg)), fmt.Errorf("save summary: %w", err)
	}
	delta := ReportPath.Set(workflow.NewState(), location)
	return Messages.Set(delta, appendMessage(s, "[Document Saved] Summary saved to "+location)), nil
}
