package types

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// ComponentType discriminates the payload carried by a PageComponent.
type ComponentType string

const (
	ComponentHero          ComponentType = "hero"
	ComponentFeatures      ComponentType = "features"
	ComponentCTA           ComponentType = "cta"
	ComponentText          ComponentType = "text"
	ComponentImage         ComponentType = "image"
	ComponentTwoColumnHero ComponentType = "two-column-hero"
	ComponentSection       ComponentType = "section"
	ComponentGrid          ComponentType = "grid"
	ComponentTestimonials  ComponentType = "testimonials"
	ComponentStats         ComponentType = "stats"
	ComponentFAQ           ComponentType = "faq"
)

// ComponentTypes lists every known component type in palette order.
var ComponentTypes = []ComponentType{
	ComponentHero, ComponentFeatures, ComponentCTA, ComponentText, ComponentImage,
	ComponentTwoColumnHero, ComponentSection, ComponentGrid, ComponentTestimonials,
	ComponentStats, ComponentFAQ,
}

func (t ComponentType) Valid() bool {
	_, err := NewComponentData(t)
	return err == nil
}

// ComponentData is the typed payload of a component. Each ComponentType has
// exactly one implementation.
type ComponentData interface {
	ComponentType() ComponentType
	Validate() error
}

// NewComponentData returns an empty payload for t.
func NewComponentData(t ComponentType) (ComponentData, error) {
	switch t {
	case ComponentHero:
		return &HeroData{}, nil
	case ComponentFeatures:
		return &FeaturesData{}, nil
	case ComponentCTA:
		return &CTAData{}, nil
	case ComponentText:
		return &TextData{}, nil
	case ComponentImage:
		return &ImageData{}, nil
	case ComponentTwoColumnHero:
		return &TwoColumnHeroData{}, nil
	case ComponentSection:
		return &SectionData{}, nil
	case ComponentGrid:
		return &GridData{}, nil
	case ComponentTestimonials:
		return &TestimonialsData{}, nil
	case ComponentStats:
		return &StatsData{}, nil
	case ComponentFAQ:
		return &FAQData{}, nil
	}
	return nil, errors.Errorf("unknown component type %q", t)
}

// DecodeComponentData decodes raw into the payload type registered for t.
// An empty or null raw value decodes to a nil payload.
func DecodeComponentData(t ComponentType, raw json.RawMessage) (ComponentData, error) {
	data, err := NewComponentData(t)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, errors.Wrapf(err, "decode %s payload", t)
	}
	return data, nil
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PageComponent is a block placed on the page canvas.
type PageComponent struct {
	ID       ComponentID
	Type     ComponentType
	Data     ComponentData
	Position Position
	Visible  bool
}

type pageComponentJSON struct {
	ID       ComponentID     `json:"id"`
	Type     ComponentType   `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	Position Position        `json:"position"`
	Visible  bool            `json:"visible"`
}

// Validate checks that the payload matches the declared type and is itself valid.
func (c PageComponent) Validate() error {
	if c.ID == "" {
		return errors.New("component id is empty")
	}
	return ComponentPreview{Type: c.Type, Data: c.Data}.Validate()
}

func (c PageComponent) MarshalJSON() ([]byte, error) {
	raw, err := marshalData(c.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(pageComponentJSON{
		ID:       c.ID,
		Type:     c.Type,
		Data:     raw,
		Position: c.Position,
		Visible:  c.Visible,
	})
}

func (c *PageComponent) UnmarshalJSON(b []byte) error {
	var aux pageComponentJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	data, err := DecodeComponentData(aux.Type, aux.Data)
	if err != nil {
		return err
	}
	*c = PageComponent{
		ID:       aux.ID,
		Type:     aux.Type,
		Data:     data,
		Position: aux.Position,
		Visible:  aux.Visible,
	}
	return nil
}

// ComponentPreview is a partial rendering of a candidate component: its type
// and payload without placement.
type ComponentPreview struct {
	Type ComponentType
	Data ComponentData
}

type componentPreviewJSON struct {
	Type ComponentType   `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (p ComponentPreview) Validate() error {
	if !p.Type.Valid() {
		return errors.Errorf("unknown component type %q", p.Type)
	}
	if p.Data == nil {
		return errors.Errorf("%s component has no data", p.Type)
	}
	if p.Data.ComponentType() != p.Type {
		return errors.Errorf("payload of type %s does not match component type %s", p.Data.ComponentType(), p.Type)
	}
	return p.Data.Validate()
}

func (p ComponentPreview) MarshalJSON() ([]byte, error) {
	raw, err := marshalData(p.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(componentPreviewJSON{Type: p.Type, Data: raw})
}

func (p *ComponentPreview) UnmarshalJSON(b []byte) error {
	var aux componentPreviewJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	data, err := DecodeComponentData(aux.Type, aux.Data)
	if err != nil {
		return err
	}
	*p = ComponentPreview{Type: aux.Type, Data: data}
	return nil
}

func marshalData(data ComponentData) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s payload", data.ComponentType())
	}
	return b, nil
}

type HeroData struct {
	Title           string `json:"title"`
	Subtitle        string `json:"subtitle,omitempty"`
	CTAText         string `json:"cta_text,omitempty"`
	CTAURL          string `json:"cta_url,omitempty"`
	BackgroundImage string `json:"background_image,omitempty"`
	Alignment       string `json:"alignment,omitempty"`
}

func (*HeroData) ComponentType() ComponentType { return ComponentHero }

func (d *HeroData) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("hero title is required")
	}
	return validateAlignment(d.Alignment)
}

type FeatureItem struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

type FeaturesData struct {
	Title string        `json:"title,omitempty"`
	Items []FeatureItem `json:"items"`
}

func (*FeaturesData) ComponentType() ComponentType { return ComponentFeatures }

func (d *FeaturesData) Validate() error {
	if len(d.Items) == 0 {
		return errors.New("features need at least one item")
	}
	for i, item := range d.Items {
		if strings.TrimSpace(item.Title) == "" {
			return errors.Errorf("feature %d has no title", i)
		}
	}
	return nil
}

type CTAData struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ButtonText  string `json:"button_text"`
	ButtonURL   string `json:"button_url,omitempty"`
	Variant     string `json:"variant,omitempty"`
}

func (*CTAData) ComponentType() ComponentType { return ComponentCTA }

func (d *CTAData) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("cta title is required")
	}
	if strings.TrimSpace(d.ButtonText) == "" {
		return errors.New("cta button text is required")
	}
	switch d.Variant {
	case "", "primary", "secondary", "outline":
		return nil
	}
	return errors.Errorf("unknown cta variant %q", d.Variant)
}

type TextData struct {
	Content   string `json:"content"`
	Alignment string `json:"alignment,omitempty"`
}

func (*TextData) ComponentType() ComponentType { return ComponentText }

func (d *TextData) Validate() error {
	if strings.TrimSpace(d.Content) == "" {
		return errors.New("text content is required")
	}
	return validateAlignment(d.Alignment)
}

type ImageData struct {
	Src     string `json:"src"`
	Alt     string `json:"alt,omitempty"`
	Caption string `json:"caption,omitempty"`
}

func (*ImageData) ComponentType() ComponentType { return ComponentImage }

func (d *ImageData) Validate() error {
	if strings.TrimSpace(d.Src) == "" {
		return errors.New("image src is required")
	}
	return nil
}

type TwoColumnHeroData struct {
	Title         string `json:"title"`
	Subtitle      string `json:"subtitle,omitempty"`
	CTAText       string `json:"cta_text,omitempty"`
	ImageSrc      string `json:"image_src,omitempty"`
	ImageAlt      string `json:"image_alt,omitempty"`
	ImagePosition string `json:"image_position,omitempty"`
}

func (*TwoColumnHeroData) ComponentType() ComponentType { return ComponentTwoColumnHero }

func (d *TwoColumnHeroData) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("two-column hero title is required")
	}
	switch d.ImagePosition {
	case "", "left", "right":
		return nil
	}
	return errors.Errorf("image position must be left or right, got %q", d.ImagePosition)
}

type SectionData struct {
	Title      string        `json:"title,omitempty"`
	Background string        `json:"background,omitempty"`
	Children   []ComponentID `json:"children,omitempty"`
}

func (*SectionData) ComponentType() ComponentType { return ComponentSection }

func (d *SectionData) Validate() error {
	seen := make(map[ComponentID]bool, len(d.Children))
	for _, id := range d.Children {
		if seen[id] {
			return errors.Errorf("section lists child %s twice", id)
		}
		seen[id] = true
	}
	return nil
}

type GridItem struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
	Image string `json:"image,omitempty"`
}

type GridData struct {
	Columns int        `json:"columns"`
	Items   []GridItem `json:"items,omitempty"`
}

func (*GridData) ComponentType() ComponentType { return ComponentGrid }

func (d *GridData) Validate() error {
	if d.Columns < 1 || d.Columns > 6 {
		return errors.Errorf("grid columns must be between 1 and 6, got %d", d.Columns)
	}
	return nil
}

type Testimonial struct {
	Quote     string `json:"quote"`
	Author    string `json:"author"`
	Role      string `json:"role,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type TestimonialsData struct {
	Title string        `json:"title,omitempty"`
	Items []Testimonial `json:"items"`
}

func (*TestimonialsData) ComponentType() ComponentType { return ComponentTestimonials }

func (d *TestimonialsData) Validate() error {
	if len(d.Items) == 0 {
		return errors.New("testimonials need at least one item")
	}
	for i, item := range d.Items {
		if strings.TrimSpace(item.Quote) == "" || strings.TrimSpace(item.Author) == "" {
			return errors.Errorf("testimonial %d needs a quote and an author", i)
		}
	}
	return nil
}

type Stat struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type StatsData struct {
	Title string `json:"title,omitempty"`
	Items []Stat `json:"items"`
}

func (*StatsData) ComponentType() ComponentType { return ComponentStats }

func (d *StatsData) Validate() error {
	if len(d.Items) == 0 {
		return errors.New("stats need at least one item")
	}
	for i, item := range d.Items {
		if item.Label == "" || item.Value == "" {
			return errors.Errorf("stat %d needs a label and a value", i)
		}
	}
	return nil
}

type FAQItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type FAQData struct {
	Title string    `json:"title,omitempty"`
	Items []FAQItem `json:"items"`
}

func (*FAQData) ComponentType() ComponentType { return ComponentFAQ }

func (d *FAQData) Validate() error {
	if len(d.Items) == 0 {
		return errors.New("faq needs at least one item")
	}
	for i, item := range d.Items {
		if strings.TrimSpace(item.Question) == "" || strings.TrimSpace(item.Answer) == "" {
			return errors.Errorf("faq item %d needs a question and an answer", i)
		}
	}
	return nil
}

func validateAlignment(a string) error {
	switch a {
	case "", "left", "center", "right":
		return nil
	}
	return errors.Errorf("unknown alignment %q", a)
}
