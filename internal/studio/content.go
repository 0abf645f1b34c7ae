package studio

import (
	"context"
	"time"

	"github.com/user/composablestudio/internal/types"
)

// Content models are shared by every composition, so the read and schema
// operations below are not tied to one and leave no audit trail.

func (s *Service) ListContentModels(ctx context.Context) ([]types.ContentModel, error) {
	return s.stores.Content.ListModels(ctx)
}

func (s *Service) ContentModel(ctx context.Context, id types.ModelID) (*types.ContentModel, error) {
	return s.stores.Content.GetModel(ctx, id)
}

// AddContentField appends a field to an existing model.
func (s *Service) AddContentField(ctx context.Context, id types.ModelID, field types.ContentField) (model *types.ContentModel, err error) {
	start := time.Now()
	defer func() { s.observe("add_content_field", start, err) }()
	return s.stores.Content.AddField(ctx, id, field)
}

// DeleteContentModel removes a model together with its entries.
func (s *Service) DeleteContentModel(ctx context.Context, id types.ModelID) (err error) {
	start := time.Now()
	defer func() { s.observe("delete_content_model", start, err) }()
	return s.stores.Content.DeleteModel(ctx, id)
}

func (s *Service) ListContentEntries(ctx context.Context, id types.ModelID) ([]types.ContentEntry, error) {
	return s.stores.Content.ListEntries(ctx, id)
}

func (s *Service) ContentEntry(ctx context.Context, id types.EntryID) (*types.ContentEntry, error) {
	return s.stores.Content.GetEntry(ctx, id)
}

// Component returns one placed component.
func (s *Service) Component(ctx context.Context, id types.CompositionID, componentID types.ComponentID) (*types.PageComponent, error) {
	return s.stores.Canvas.Get(ctx, id, componentID)
}

// Attachment returns the metadata and bytes of an uploaded file.
func (s *Service) Attachment(ctx context.Context, id types.AttachmentID) (*types.MessageAttachment, []byte, error) {
	meta, err := s.stores.Attachments.GetMeta(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.stores.Attachments.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return meta, data, nil
}

// AnalyzeAttachment stores the agent's analysis of an uploaded file.
func (s *Service) AnalyzeAttachment(ctx context.Context, id types.AttachmentID, analysis types.AttachmentAnalysis) (att *types.MessageAttachment, err error) {
	start := time.Now()
	defer func() { s.observe("analyze_attachment", start, err) }()
	return s.stores.Attachments.SetAnalysis(ctx, id, analysis)
}

// DefineContentModel stores a model outside any composition, as done by
// bulk imports. No audit entry is recorded.
func (s *Service) DefineContentModel(ctx context.Context, model types.ContentModel) (created *types.ContentModel, err error) {
	start := time.Now()
	defer func() { s.observe("define_content_model", start, err) }()
	return s.stores.Content.CreateModel(ctx, model)
}
