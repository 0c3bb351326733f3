package triggers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"pulse/internal/docstore"
	"pulse/internal/models"
)

// Kind is what happened to a document or an account.
type Kind string

const (
	KindCreate        Kind = "create"
	KindUpdate        Kind = "update"
	KindDelete        Kind = "delete"
	KindAccountCreate Kind = "account.create"
	KindAccountDelete Kind = "account.delete"
)

// DocumentKinds are the kinds of a write handler that reacts to any change.
var DocumentKinds = []Kind{KindCreate, KindUpdate, KindDelete}

func (k Kind) account() bool {
	return k == KindAccountCreate || k == KindAccountDelete
}

// Event is one document change or account lifecycle notification.
type Event struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Path    string          `json:"path,omitempty"`
	Before  docstore.Data   `json:"before,omitempty"`
	After   docstore.Data   `json:"after,omitempty"`
	Time    time.Time       `json:"time"`
	Account *models.Account `json:"account,omitempty"`

	// Params holds the path parameters of the matched pattern.
	Params map[string]string `json:"-"`
}

var ErrInvalidEvent = errors.New("invalid event")

func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	switch e.Kind {
	case KindCreate, KindUpdate, KindDelete:
		if !docstore.IsDocumentPath(e.Path) {
			return fmt.Errorf("%w: bad document path %q", ErrInvalidEvent, e.Path)
		}
	case KindAccountCreate, KindAccountDelete:
		if e.Account == nil || e.Account.UID == "" {
			return fmt.Errorf("%w: missing account uid", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	return nil
}

// DecodeEvent parses and validates a JSON event.
func DecodeEvent(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return e, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := e.Validate(); err != nil {
		return e, err
	}
	return e, nil
}

// FromChange turns a committed store write into an event.
func FromChange(c docstore.Change) Event {
	kind := KindUpdate
	switch {
	case c.Before == nil:
		kind = KindCreate
	case c.After == nil:
		kind = KindDelete
	}
	return Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		Path:   c.Path,
		Before: c.Before,
		After:  c.After,
		Time:   time.Now().UTC(),
	}
}

func (e *Event) Param(name string) string {
	return e.Params[name]
}

// DocID is the id of the changed document.
func (e *Event) DocID() string {
	_, id := docstore.SplitDocument(e.Path)
	return id
}

// BeforeTo decodes the previous document state into v. It reports false
// when there is none.
func (e *Event) BeforeTo(v any) (bool, error) {
	if e.Before == nil {
		return false, nil
	}
	return true, docstore.Decode(e.Before, v)
}

// AfterTo decodes the new document state into v.
func (e *Event) AfterTo(v any) (bool, error) {
	if e.After == nil {
		return false, nil
	}
	return true, docstore.Decode(e.After, v)
}

// StateTo decodes the document after the change into v, or the document
// before it for deletes.
func (e *Event) StateTo(v any) error {
	if e.After != nil {
		return docstore.Decode(e.After, v)
	}
	return docstore.Decode(e.Before, v)
}

// Changed reports whether field differs between Before and After. Numbers
// compare by value whatever their encoding.
func (e *Event) Changed(field string) bool {
	b, bok := docstore.Lookup(e.Before, field)
	a, aok := docstore.Lookup(e.After, field)
	if bok != aok {
		return true
	}
	if bn, ok := docstore.Number(b); ok {
		an, ok := docstore.Number(a)
		return !ok || an != bn
	}
	return !reflect.DeepEqual(a, b)
}
