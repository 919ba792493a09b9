// Package realtime streams progress events to the dialogs that asked for them.
//
// Every event is addressed to a session ID and a tag. Listeners accept only
// events whose session ID and tag both match their own session; everything
// else is ignored. Events for one tag are delivered in the order they were
// published.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eshaffer321/ledger-balancer/internal/session"
)

// Event names.
const (
	EventSetImageNumber  = "set_image_number"
	EventNewImage        = "new_image"
	EventInvoiceProgress = "invoice_progress"
	EventDone            = "done"
)

// Event is a single message pushed to listeners.
type Event struct {
	SessionID string          `json:"session_id"`
	Tag       string          `json:"tag"`
	Name      string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Seq       uint64          `json:"seq"`
	At        time.Time       `json:"at"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Name)
	}
	return json.Unmarshal(e.Payload, v)
}

// NewEvent builds an event for sess with payload marshalled to JSON.
// A nil payload produces an event without one.
func NewEvent(sess session.Session, name string, payload any) (Event, error) {
	ev := Event{SessionID: sess.ID, Tag: sess.Tag, Name: name}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", name, err)
		}
		ev.Payload = raw
	}
	return ev, nil
}

// ImageCount announces how many images a slideshow run will produce.
type ImageCount struct {
	NImages int `json:"n_images"`
}

// NewImage reports that image ImgID of NImages is ready.
type NewImage struct {
	ImgID   int    `json:"img_id"`
	NImages int    `json:"n_images"`
	FileURL string `json:"file_url"`
}

// InvoiceProgress reports that invoice Index of Total has been handled.
type InvoiceProgress struct {
	Index   int    `json:"index"`
	Total   int    `json:"total"`
	Invoice string `json:"invoice"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// Done closes a series of events.
type Done struct {
	Message string `json:"message"`
}

// Listener filters events for one session.
type Listener struct {
	sess session.Session
}

// NewListener returns a listener for sess.
func NewListener(sess session.Session) Listener {
	return Listener{sess: sess}
}

// Accept reports whether ev is addressed to the listener's session and tag.
func (l Listener) Accept(ev Event) bool {
	return l.sess.Matches(ev.SessionID, ev.Tag)
}
