package ccda

import "fmt"

// CDANamespace is the primary namespace of a C-CDA document.
const CDANamespace = "urn:hl7-org:v3"

// Sentinel values returned in place of data that could not be extracted.
const (
	Unknown    = "Unknown"
	ParseError = "Parse Error"

	NoNarrativeText = "No narrative text."
	NoSectionsFound = "No structured clinical sections found."
)

// PatientIdentity is the compact demographic record extracted from the CDA
// header at ingestion time.
type PatientIdentity struct {
	Identifier        string `json:"identifier"`
	FullName          string `json:"full_name"`
	DateOfBirth       string `json:"dob"`
	AdministrativeSex string `json:"gender"`
}

// UnknownIdentity is returned when the patient-role path cannot be walked.
func UnknownIdentity() PatientIdentity {
	return PatientIdentity{
		Identifier:        Unknown,
		FullName:          ParseError,
		DateOfBirth:       Unknown,
		AdministrativeSex: Unknown,
	}
}

// ClinicalSection is one titled narrative block of a document.
type ClinicalSection struct {
	Title         string `json:"title"`
	NarrativeText string `json:"text"`
}

// Source is the input of the flattener. Values read from storage are
// resolved into a Source with SourceOf before they reach the flattener.
type Source interface {
	source()
}

// Markup is textual C-CDA markup.
type Markup string

func (Markup) source() {}

// Foreign wraps a value that is not textual markup.
type Foreign struct {
	Value any
}

func (Foreign) source() {}

// TypeName reports the Go type of the wrapped value.
func (f Foreign) TypeName() string {
	return fmt.Sprintf("%T", f.Value)
}

// SourceOf resolves an untyped stored value into a Source.
func SourceOf(v any) Source {
	switch t := v.(type) {
	case Markup:
		return t
	case string:
		return Markup(t)
	case []byte:
		return Markup(t)
	case Foreign:
		return t
	default:
		return Foreign{Value: v}
	}
}
