package ccda

import "strings"

// ExtractIdentity reads the patient demographics from the recordTarget of a
// parsed document. Element lookups are qualified with CDANamespace.
//
// Identifier and administrative sex fall back to Unknown on their own. The
// patient, name, family and birthTime elements are required: if any of them
// is missing the whole result is UnknownIdentity.
func ExtractIdentity(root *Node) PatientIdentity {
	role := findPatientRole(root)
	if role == nil {
		return UnknownIdentity()
	}

	id := Unknown
	if idNode := role.Child(CDANamespace, "id"); idNode != nil {
		id = idNode.AttrOr("extension", Unknown)
	}

	patient := role.Child(CDANamespace, "patient")
	name := patient.Child(CDANamespace, "name")
	if name == nil {
		return UnknownIdentity()
	}

	var givens []string
	for _, g := range name.ChildrenNamed(CDANamespace, "given") {
		if g.Text != "" {
			givens = append(givens, g.Text)
		}
	}
	family := name.Child(CDANamespace, "family")
	if family == nil {
		return UnknownIdentity()
	}

	birthTime := patient.Child(CDANamespace, "birthTime")
	if birthTime == nil {
		return UnknownIdentity()
	}

	sex := Unknown
	if gender := patient.Child(CDANamespace, "administrativeGenderCode"); gender != nil {
		sex = gender.AttrOr("displayName", Unknown)
	}

	return PatientIdentity{
		Identifier:        id,
		FullName:          strings.Join(givens, " ") + " " + family.Text,
		DateOfBirth:       FormatBirthDate(birthTime.AttrOr("value", "")),
		AdministrativeSex: sex,
	}
}

// ExtractIdentityFromBytes parses raw markup and extracts the identity. The
// returned error is only ever a parse failure.
func ExtractIdentityFromBytes(data []byte) (PatientIdentity, error) {
	root, err := ParseTree(data)
	if err != nil {
		return PatientIdentity{}, err
	}
	return ExtractIdentity(root), nil
}

// findPatientRole returns the first patientRole child of any recordTarget
// below root.
func findPatientRole(root *Node) *Node {
	for _, rt := range root.Descendants(CDANamespace, "recordTarget") {
		if role := rt.Child(CDANamespace, "patientRole"); role != nil {
			return role
		}
	}
	return nil
}

// FormatBirthDate converts an HL7 timestamp (YYYYMMDD...) to YYYY-MM-DD.
// Values shorter than eight characters are returned unchanged.
func FormatBirthDate(s string) string {
	r := []rune(s)
	if len(r) < 8 {
		return s
	}
	return string(r[:4]) + "-" + string(r[4:6]) + "-" + string(r[6:8])
}
