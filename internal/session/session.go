// Package session carries the identity of one open document and its current
// series of realtime communications.
//
// A Session is passed explicitly to every operation that publishes or
// listens for realtime events. There is no package-level "current"
// session.
package session

import (
	"errors"

	"github.com/google/uuid"
)

// ErrMissingID is returned when a session is built without an ID.
var ErrMissingID = errors.New("session id is required")

// Session identifies an open document and one series of communications
// about it.
type Session struct {
	// ID is persistent for the lifetime of the open document
	ID string `json:"id"`

	// Tag identifies one series of communications. A new series (for
	// example a second slideshow run) gets a new tag so that late events
	// from the earlier series are ignored.
	Tag string `json:"tag"`

	DocumentType string `json:"document_type,omitempty"`
	DocumentName string `json:"document_name,omitempty"`
	Dialog       string `json:"dialog,omitempty"`
}

// New creates a session for a document with a fresh ID and tag.
func New(documentType, documentName string) Session {
	return Session{
		ID:           uuid.NewString(),
		Tag:          uuid.NewString(),
		DocumentType: documentType,
		DocumentName: documentName,
	}
}

// Resume rebuilds a session from an ID and tag supplied by a client.
// A missing tag starts a new series.
func Resume(id, tag string) (Session, error) {
	if id == "" {
		return Session{}, ErrMissingID
	}
	if tag == "" {
		tag = uuid.NewString()
	}
	return Session{ID: id, Tag: tag}, nil
}

// WithNewTag returns a copy of s that starts a new communication series.
func (s Session) WithNewTag() Session {
	s.Tag = uuid.NewString()
	return s
}

// WithDialog returns a copy of s bound to a dialog handle.
func (s Session) WithDialog(dialog string) Session {
	s.Dialog = dialog
	return s
}

// Matches reports whether an event addressed to (id, tag) belongs to s.
func (s Session) Matches(id, tag string) bool {
	return s.ID == id && s.Tag == tag
}
