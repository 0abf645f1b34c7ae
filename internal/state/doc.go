// Package state provides filesystem and SQLite backed storage implementations.
package state

import "github.com/user/composablestudio/internal/types"

// Compile-time interface compliance checks.
var _ types.SessionStore = (*SessionStore)(nil)
var _ types.HistoryStore = (*HistoryStore)(nil)
var _ types.CanvasStore = (*CanvasStore)(nil)
var _ types.AttachmentStore = (*AttachmentStore)(nil)
var _ types.ContentStore = (*SQLiteContentStore)(nil)
