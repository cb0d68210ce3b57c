// Package message holds the persisted chat data model shared by the store,
// the optimistic session and the HTTP surface.
package message

import (
	"net/url"
	"path"
	"strings"
	"time"
)

type (
	// Thread groups the messages of one conversation.
	Thread struct {
		ID        string    `json:"id" bson:"_id"`
		UserID    string    `json:"userId" bson:"user_id"`
		Title     string    `json:"title" bson:"title"`
		Pinned    bool      `json:"isPinned" bson:"pinned"`
		CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	}

	// Message is one user turn and its generated responses. Variants is
	// append-only: a regeneration appends, it never replaces.
	Message struct {
		ID         string      `json:"id" bson:"_id"`
		ThreadID   string      `json:"threadId" bson:"thread_id"`
		UserID     string      `json:"userId" bson:"user_id"`
		Query      string      `json:"userQuery" bson:"query"`
		Attachment *Attachment `json:"attachment,omitempty" bson:"attachment,omitempty"`
		Search     bool        `json:"isSearch" bson:"search"`
		Variants   []Variant   `json:"aiResponse" bson:"variants"`
		CreatedAt  time.Time   `json:"createdAt" bson:"created_at"`
	}

	// Variant is one generated response. Content is mutable while streaming
	// and frozen once persisted.
	Variant struct {
		ID      string `json:"id" bson:"id"`
		Content string `json:"content" bson:"content"`
		Model   string `json:"model" bson:"model"`
	}

	// Attachment references an uploaded file by URL.
	Attachment struct {
		URL   string    `json:"url" bson:"url"`
		Media MediaKind `json:"type" bson:"media"`
	}

	// MediaKind is the coarse media category inferred from an attachment URL.
	MediaKind string
)

const (
	// MediaImage covers common raster image formats.
	MediaImage MediaKind = "image"
	// MediaPDF covers PDF documents.
	MediaPDF MediaKind = "pdf"
	// MediaFile is the fallback for everything else.
	MediaFile MediaKind = "file"
)

// InferMedia derives the media kind from the file extension of a URL. Query
// strings and fragments are ignored.
func InferMedia(rawURL string) MediaKind {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return MediaImage
	case ".pdf":
		return MediaPDF
	default:
		return MediaFile
	}
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.Attachment != nil {
		att := *m.Attachment
		out.Attachment = &att
	}
	out.Variants = append([]Variant(nil), m.Variants...)
	return &out
}
