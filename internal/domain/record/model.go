package record

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/openclinical/ccda-analyst/internal/platform/ccda"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// Record maps to the patient_record table: one ingested C-CDA document and
// the identity extracted from its header.
type Record struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  string    `db:"patient_id" json:"patient_id"`
	FullName   string    `db:"full_name" json:"full_name"`
	DOB        string    `db:"dob" json:"dob"`
	Gender     string    `db:"gender" json:"gender"`
	Filename   string    `db:"filename" json:"filename"`
	XMLContent string    `db:"xml_content" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Label is the line shown in the patient picker.
func (r *Record) Label() string {
	return fmt.Sprintf("%s (ID: %s) - DOB: %s", r.FullName, r.PatientID, r.DOB)
}

// Identity returns the extracted header fields.
func (r *Record) Identity() ccda.PatientIdentity {
	return ccda.PatientIdentity{
		Identifier:        r.PatientID,
		FullName:          r.FullName,
		DateOfBirth:       r.DOB,
		AdministrativeSex: r.Gender,
	}
}

// ErrNotUTF8 is returned for documents whose bytes are not UTF-8. The raw
// markup is stored as text, so other encodings cannot be kept verbatim.
var ErrNotUTF8 = errors.New("document is not valid UTF-8")

// FromDocument parses a raw document and builds an unsaved record. It fails
// when the markup is not well-formed or not UTF-8; a document without a
// usable patient header still yields a record carrying the sentinel identity.
func FromDocument(filename string, data []byte) (*Record, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s: %w", filename, ErrNotUTF8)
	}
	id, err := ccda.ExtractIdentityFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &Record{
		PatientID:  id.Identifier,
		FullName:   id.FullName,
		DOB:        id.DateOfBirth,
		Gender:     id.AdministrativeSex,
		Filename:   filename,
		XMLContent: string(data),
	}, nil
}

// Summary is the API view of a record with its picker label.
type Summary struct {
	*Record
	Label string `json:"label"`
}

func newSummaries(recs []*Record) []Summary {
	out := make([]Summary, 0, len(recs))
	for _, r := range recs {
		out = append(out, Summary{Record: r, Label: r.Label()})
	}
	return out
}
