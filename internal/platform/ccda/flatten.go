package ccda

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Flattener renders the clinical sections of a C-CDA document as plain
// text. It holds no mutable state and is safe for concurrent use.
type Flattener struct{}

// NewFlattener creates a new section flattener.
func NewFlattener() *Flattener {
	return &Flattener{}
}

// Flatten returns one "### TITLE" block per titled section, in document
// order, separated by blank lines. It never fails: a non-text source or a
// parse failure is reported as a diagnostic string, and a document without
// titled sections yields NoSectionsFound.
func (f *Flattener) Flatten(src Source) string {
	sections, err := f.Sections(src)
	if err != nil {
		return err.Error()
	}
	if len(sections) == 0 {
		return NoSectionsFound
	}

	blocks := make([]string, len(sections))
	for i, s := range sections {
		blocks[i] = "### " + s.Title + "\n" + s.NarrativeText + "\n"
	}
	return strings.Join(blocks, "\n")
}

// FlattenString is Flatten for markup already held as a string.
func (f *Flattener) FlattenString(markup string) string {
	return f.Flatten(Markup(markup))
}

// Sections parses the source and returns its titled sections. Untitled
// sections are skipped.
func (f *Flattener) Sections(src Source) (sections []ClinicalSection, err error) {
	defer func() {
		if r := recover(); r != nil {
			sections, err = nil, &ParseFailure{Detail: fmt.Sprint(r)}
		}
	}()

	var markup Markup
	switch s := src.(type) {
	case Markup:
		markup = s
	case Foreign:
		return nil, &InputTypeError{TypeName: s.TypeName()}
	case nil:
		return nil, &InputTypeError{TypeName: "<nil>"}
	default:
		return nil, &InputTypeError{TypeName: fmt.Sprintf("%T", src)}
	}

	root, err := ParseTree([]byte(markup))
	if err != nil {
		return nil, &ParseFailure{Detail: strings.TrimPrefix(err.Error(), "ccda: ")}
	}
	root = root.StripNamespaces()

	for _, sec := range root.Descendants("", "section") {
		title := sec.Child("", "title")
		if title == nil || title.Text == "" {
			continue
		}

		narrative := NoNarrativeText
		if text := sec.Child("", "text"); text != nil {
			narrative = collapseWhitespace(text.InnerText())
		}

		sections = append(sections, ClinicalSection{
			Title:         strings.TrimSpace(upper(title.Text)),
			NarrativeText: narrative,
		})
	}
	return sections, nil
}

// InputTypeError reports a source that is not textual markup.
type InputTypeError struct {
	TypeName string
}

func (e *InputTypeError) Error() string {
	return fmt.Sprintf("Error: Expected string data but got %s. Reload database.", e.TypeName)
}

// ParseFailure reports markup that could not be decoded.
type ParseFailure struct {
	Detail string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("PARSING ERROR: %s\n(Returning raw XML might help debug).", e.Detail)
}

// upper applies full Unicode case mapping (e.g. "ß" becomes "SS"). A Caser
// is not safe for concurrent use, so one is built per call.
func upper(s string) string {
	return cleanText(cases.Upper(language.Und).String(s))
}

// collapseWhitespace joins the whitespace-separated fields of s with single
// spaces and removes leftover control characters.
func collapseWhitespace(s string) string {
	return cleanText(strings.Join(strings.Fields(s), " "))
}

var stripControls = runes.Remove(runes.Predicate(func(r rune) bool {
	return unicode.IsControl(r) && !unicode.IsSpace(r)
}))

func cleanText(s string) string {
	out, _, err := transform.String(stripControls, s)
	if err != nil {
		return s
	}
	return out
}
