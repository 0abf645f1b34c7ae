package types

import (
	"time"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleSystem:
		return true
	}
	return false
}

type ActionKind string

const (
	ActionButton ActionKind = "button"
	ActionInput  ActionKind = "input"
)

func (k ActionKind) Valid() bool {
	return k == ActionButton || k == ActionInput
}

type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentCode     AttachmentKind = "code"
	AttachmentArchive  AttachmentKind = "archive"
	AttachmentOther    AttachmentKind = "other"
)

func (k AttachmentKind) Valid() bool {
	switch k {
	case AttachmentImage, AttachmentDocument, AttachmentAudio, AttachmentVideo,
		AttachmentCode, AttachmentArchive, AttachmentOther:
		return true
	}
	return false
}

// ChatMessage is one turn of the studio conversation. Messages are
// immutable once appended to a log.
type ChatMessage struct {
	ID             MessageID              `json:"id"`
	Role           Role                   `json:"role"`
	Content        string                 `json:"content"`
	Timestamp      time.Time              `json:"timestamp"`
	Thinking       bool                   `json:"thinking,omitempty"`
	Thoughts       []AgentThought         `json:"thoughts,omitempty"`
	Actions        []MessageAction        `json:"actions,omitempty"`
	Attachments    []MessageAttachment    `json:"attachments,omitempty"`
	VisualAnalysis *VisualAnalysis        `json:"visual_analysis,omitempty"`
	Disambiguation []DisambiguationOption `json:"disambiguation,omitempty"`
	// SelectedOption is set once the disambiguation has been resolved; the
	// option set then holds only that option.
	SelectedOption string `json:"selected_option,omitempty"`
}

// MessageAction is a clickable affordance on a message. Command names the
// handler the dispatcher runs when the action is invoked, e.g.
// "disambiguate:<option-id>" or "advance:hero-created".
type MessageAction struct {
	ID      string     `json:"id"`
	Label   string     `json:"label"`
	Kind    ActionKind `json:"kind"`
	Value   string     `json:"value,omitempty"`
	Command string     `json:"command,omitempty"`
}

type MessageAttachment struct {
	ID       AttachmentID        `json:"id"`
	Kind     AttachmentKind      `json:"kind"`
	Name     string              `json:"name"`
	Size     string              `json:"size"`
	URL      string              `json:"url,omitempty"`
	Preview  string              `json:"preview,omitempty"`
	Analysis *AttachmentAnalysis `json:"analysis,omitempty"`
}

type AttachmentAnalysis struct {
	Summary       string   `json:"summary"`
	ExtractedText string   `json:"extracted_text,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// VisualAnalysis is the agent's reading of an uploaded screenshot or mockup.
type VisualAnalysis struct {
	Summary            string          `json:"summary"`
	DetectedComponents []ComponentType `json:"detected_components,omitempty"`
	Palette            []string        `json:"palette,omitempty"`
	Layout             string          `json:"layout,omitempty"`
	Confidence         float64         `json:"confidence"`
}

// AgentThought is one item of a simulated reasoning trace.
type AgentThought struct {
	ID         ThoughtID `json:"id"`
	Content    string    `json:"content"`
	DurationMs int64     `json:"duration_ms"`
	Completed  bool      `json:"completed"`
}

// DisambiguationOption is one candidate interpretation of an ambiguous
// instruction, carrying a preview of the component it would produce.
type DisambiguationOption struct {
	ID          string           `json:"id"`
	Label       string           `json:"label"`
	Description string           `json:"description"`
	Confidence  float64          `json:"confidence"`
	PreviewData ComponentPreview `json:"preview_data"`
}
