package context

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/pkg/errors"
	"github.com/pkoukk/tiktoken-go"

	"github.com/user/composablestudio/internal/compose"
	"github.com/user/composablestudio/internal/types"
)

// TokenCounter counts the tokens of a piece of text.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewTokenCounter returns a counter for the named tiktoken encoding, or for
// the encoding of a model name such as "gpt-4o".
func NewTokenCounter(encoding string) (TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		enc, err = tiktoken.EncodingForModel(encoding)
		if err != nil {
			return nil, errors.Wrapf(err, "get tokenizer %s", encoding)
		}
	}
	return tiktokenCounter{enc: enc}, nil
}

// Message is one turn of the transcript handed to the agent engine.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PreambleData feeds DefaultPreamble.
type PreambleData struct {
	Time           string
	Name           string
	CompositionID  types.CompositionID
	Step           types.Step
	AllowedNext    []string
	Components     []string
	Context        []string
	PendingActions []string
}

// Engine assembles token-budgeted transcripts of a composition's chat.
type Engine struct {
	counter   TokenCounter
	maxTokens int
	reserve   int
	preamble  *template.Template
	now       func() time.Time
}

// New creates an engine using the named tiktoken encoding.
// maxTokens is the agent model's context window size.
// reserve is the number of tokens to keep free for the model's response.
func New(encoding string, maxTokens, reserve int) (*Engine, error) {
	counter, err := NewTokenCounter(encoding)
	if err != nil {
		return nil, err
	}
	return NewWithCounter(counter, maxTokens, reserve), nil
}

// NewWithCounter creates an engine with a caller-supplied token counter.
func NewWithCounter(counter TokenCounter, maxTokens, reserve int) *Engine {
	tmpl := template.Must(template.New("preamble").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(DefaultPreamble))
	return &Engine{
		counter:   counter,
		maxTokens: maxTokens,
		reserve:   reserve,
		preamble:  tmpl,
		now:       time.Now,
	}
}

// CountTokens returns the token count of text.
func (e *Engine) CountTokens(text string) int {
	return e.counter.Count(text)
}

// BuildTranscript returns the system preamble followed by the most recent
// chat messages that fit the token budget, oldest first. Messages still
// marked as thinking are skipped.
func (e *Engine) BuildTranscript(session *types.Session, components []types.PageComponent) ([]Message, error) {
	if session == nil {
		return nil, errors.New("build transcript: nil session")
	}

	sys, err := e.renderPreamble(session, components)
	if err != nil {
		return nil, err
	}
	remaining := e.maxTokens - e.reserve - e.counter.Count(sys)
	if remaining < 0 {
		remaining = 0
	}

	var recent []Message
	log := session.Compose.CurrentMessages
	for i := len(log) - 1; i >= 0; i-- {
		m := log[i]
		if m.Thinking {
			continue
		}
		msg := toMessage(m)
		n := e.counter.Count(msg.Content)
		if n > remaining {
			break
		}
		remaining -= n
		recent = append(recent, msg)
	}

	out := make([]Message, 0, len(recent)+1)
	out = append(out, Message{Role: "system", Content: sys})
	for i := len(recent) - 1; i >= 0; i-- {
		out = append(out, recent[i])
	}
	return out, nil
}

func (e *Engine) renderPreamble(session *types.Session, components []types.PageComponent) (string, error) {
	data := PreambleData{
		Time:           e.now().UTC().Format(time.RFC3339),
		Name:           session.Composition.Name,
		CompositionID:  session.Composition.ID,
		Step:           session.State.Step,
		PendingActions: session.State.PendingActions,
	}
	for _, s := range compose.AllowedNext(session.State.Step) {
		data.AllowedNext = append(data.AllowedNext, string(s))
	}
	for _, c := range components {
		data.Components = append(data.Components, describeComponent(c))
	}
	keys := make([]string, 0, len(session.State.Context))
	for k := range session.State.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data.Context = append(data.Context, fmt.Sprintf("%s: %v", k, session.State.Context[k]))
	}

	var b strings.Builder
	if err := e.preamble.Execute(&b, data); err != nil {
		return "", errors.Wrap(err, "render preamble")
	}
	return b.String(), nil
}

func describeComponent(c types.PageComponent) string {
	s := fmt.Sprintf("%s (%s)", c.ID, c.Type)
	if !c.Visible {
		s += " hidden"
	}
	switch d := c.Data.(type) {
	case *types.HeroData:
		s += fmt.Sprintf(": %q", d.Title)
	case *types.TwoColumnHeroData:
		s += fmt.Sprintf(": %q", d.Title)
	case *types.CTAData:
		s += fmt.Sprintf(": %q", d.Title)
	case *types.FeaturesData:
		s += fmt.Sprintf(": %d items", len(d.Items))
	}
	return s
}

func roleName(r types.Role) string {
	if r == types.RoleAgent {
		return "assistant"
	}
	return string(r)
}

func toMessage(m types.ChatMessage) Message {
	var b strings.Builder
	b.WriteString(m.Content)
	for _, a := range m.Attachments {
		fmt.Fprintf(&b, "\n[attachment %s: %s, %s]", a.Name, a.Kind, a.Size)
		if a.Analysis != nil && a.Analysis.Summary != "" {
			fmt.Fprintf(&b, " %s", a.Analysis.Summary)
		}
	}
	if m.VisualAnalysis != nil {
		fmt.Fprintf(&b, "\n[visual analysis: %s]", m.VisualAnalysis.Summary)
	}
	for _, o := range m.Disambiguation {
		fmt.Fprintf(&b, "\n[option %s: %s (%s)]", o.ID, o.Label, o.PreviewData.Type)
	}
	return Message{Role: roleName(m.Role), Content: b.String()}
}
