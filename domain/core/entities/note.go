package entities

import (
	"time"

	"notecanvas/pkg/utils"
)

const (
	MaxTitleLength = 200
	ColorLength    = 7
)

// NoteFields are the user-editable attributes of a note. They are shared by
// create and update requests and by the stored Note.
type NoteFields struct {
	Title     string  `json:"title" validate:"required,max=200"`
	Content   string  `json:"content"`
	Color     string  `json:"color" validate:"required,hexcolor,len=7"`
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
}

// Validate applies the field constraints every store enforces before a write.
func (f NoteFields) Validate() error {
	return utils.ValidateStruct(f)
}

// Note is a card on the canvas. ID is assigned by the store on creation.
type Note struct {
	ID int64 `json:"id"`
	NoteFields
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewNote stamps both timestamps with at.
func NewNote(fields NoteFields, at time.Time) *Note {
	at = at.UTC()
	return &Note{
		NoteFields: fields,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

// Apply replaces the editable fields and refreshes UpdatedAt. CreatedAt is
// never touched.
func (n *Note) Apply(fields NoteFields, at time.Time) {
	n.NoteFields = fields
	n.Touch(at)
}

// MoveTo changes only the position.
func (n *Note) MoveTo(x, y float64, at time.Time) {
	n.PositionX = x
	n.PositionY = y
	n.Touch(at)
}

// Touch sets UpdatedAt, clamped so it never precedes CreatedAt.
func (n *Note) Touch(at time.Time) {
	at = at.UTC()
	if at.Before(n.CreatedAt) {
		at = n.CreatedAt
	}
	n.UpdatedAt = at
}

func (n *Note) Validate() error {
	return n.NoteFields.Validate()
}

// Clone returns a copy safe to hand outside a store lock.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}
