package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/user/composablestudio/internal/compose"
	"github.com/user/composablestudio/internal/types"
)

// previewChars bounds the text preview stored with code and document uploads.
const previewChars = 280

// attachmentWrapper is the on-disk format for attachment files.
type attachmentWrapper struct {
	Meta *types.MessageAttachment `json:"meta"`
	Data []byte                   `json:"data"`
}

// AttachmentStore stores uploaded files as individual JSON files.
// Files are located at compositions/<compositionID>/attachments/<attachmentID>.json.
type AttachmentStore struct {
	root string
}

// NewAttachmentStore creates a new file-backed AttachmentStore rooted at the given directory.
func NewAttachmentStore(root string) *AttachmentStore {
	return &AttachmentStore{root: root}
}

func (a *AttachmentStore) attachmentsDir(id types.CompositionID) string {
	return filepath.Join(a.root, "compositions", string(id), "attachments")
}

// findAttachment locates an attachment file by id across all compositions.
func (a *AttachmentStore) findAttachment(id types.AttachmentID) (string, error) {
	if err := checkID("attachment id", string(id)); err != nil {
		return "", err
	}
	pattern := filepath.Join(a.root, "compositions", "*", "attachments", string(id)+".json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", errors.Wrap(err, "glob attachment")
	}
	if len(matches) == 0 {
		return "", &compose.NotFoundError{Kind: "attachment", ID: string(id)}
	}
	return matches[0], nil
}

func (a *AttachmentStore) readWrapper(path string) (*attachmentWrapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read attachment file")
	}
	var wrapper attachmentWrapper
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, errors.Wrap(err, "unmarshal attachment")
	}
	return &wrapper, nil
}

func (a *AttachmentStore) writeWrapper(path string, wrapper *attachmentWrapper) error {
	content, err := json.Marshal(wrapper)
	if err != nil {
		return errors.Wrap(err, "marshal attachment")
	}
	return writeFileAtomic(path, content)
}

// Put stores data under the composition and returns the attachment
// descriptor a message can carry.
func (a *AttachmentStore) Put(_ context.Context, id types.CompositionID, name string, data []byte) (*types.MessageAttachment, error) {
	if err := checkID("composition id", string(id)); err != nil {
		return nil, err
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, &compose.ValidationError{Field: "attachment name", Reason: "empty"}
	}

	kind := KindForName(name)
	meta := &types.MessageAttachment{
		ID:   types.NewAttachmentID(),
		Kind: kind,
		Name: name,
		Size: humanize.Bytes(uint64(len(data))),
	}
	if kind == types.AttachmentCode || kind == types.AttachmentDocument {
		meta.Preview = textPreview(data)
	}

	path := filepath.Join(a.attachmentsDir(id), string(meta.ID)+".json")
	if err := a.writeWrapper(path, &attachmentWrapper{Meta: meta, Data: data}); err != nil {
		return nil, errors.Wrap(err, "save attachment")
	}
	return meta, nil
}

// Get returns the raw bytes of the attachment.
func (a *AttachmentStore) Get(_ context.Context, id types.AttachmentID) ([]byte, error) {
	path, err := a.findAttachment(id)
	if err != nil {
		return nil, err
	}
	wrapper, err := a.readWrapper(path)
	if err != nil {
		return nil, err
	}
	return wrapper.Data, nil
}

// GetMeta returns the descriptor of the attachment.
func (a *AttachmentStore) GetMeta(_ context.Context, id types.AttachmentID) (*types.MessageAttachment, error) {
	path, err := a.findAttachment(id)
	if err != nil {
		return nil, err
	}
	wrapper, err := a.readWrapper(path)
	if err != nil {
		return nil, err
	}
	return wrapper.Meta, nil
}

// SetAnalysis records the agent's analysis result on the attachment.
func (a *AttachmentStore) SetAnalysis(_ context.Context, id types.AttachmentID, analysis types.AttachmentAnalysis) (*types.MessageAttachment, error) {
	path, err := a.findAttachment(id)
	if err != nil {
		return nil, err
	}
	wrapper, err := a.readWrapper(path)
	if err != nil {
		return nil, err
	}
	analysis.Tags = append([]string(nil), analysis.Tags...)
	wrapper.Meta.Analysis = &analysis
	if err := a.writeWrapper(path, wrapper); err != nil {
		return nil, errors.Wrap(err, "save attachment")
	}
	return wrapper.Meta, nil
}

var kindsByExt = map[string]types.AttachmentKind{
	".png": types.AttachmentImage, ".jpg": types.AttachmentImage, ".jpeg": types.AttachmentImage,
	".gif": types.AttachmentImage, ".webp": types.AttachmentImage, ".svg": types.AttachmentImage,
	".pdf": types.AttachmentDocument, ".doc": types.AttachmentDocument, ".docx": types.AttachmentDocument,
	".txt": types.AttachmentDocument, ".md": types.AttachmentDocument, ".rtf": types.AttachmentDocument,
	".mp3": types.AttachmentAudio, ".wav": types.AttachmentAudio, ".ogg": types.AttachmentAudio,
	".mp4": types.AttachmentVideo, ".mov": types.AttachmentVideo, ".webm": types.AttachmentVideo,
	".go": types.AttachmentCode, ".js": types.AttachmentCode, ".ts": types.AttachmentCode,
	".tsx": types.AttachmentCode, ".html": types.AttachmentCode, ".css": types.AttachmentCode,
	".json": types.AttachmentCode, ".py": types.AttachmentCode,
	".zip": types.AttachmentArchive, ".tar": types.AttachmentArchive, ".gz": types.AttachmentArchive,
}

// KindForName guesses the attachment kind from the file extension.
func KindForName(name string) types.AttachmentKind {
	if kind, ok := kindsByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return kind
	}
	return types.AttachmentOther
}

// textPreview returns the leading characters of data if it is valid UTF-8.
func textPreview(data []byte) string {
	if !utf8.Valid(data) {
		return ""
	}
	s := string(data)
	if utf8.RuneCountInString(s) <= previewChars {
		return s
	}
	r := []rune(s)
	return string(r[:previewChars])
}
