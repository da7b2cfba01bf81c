package ccda

import (
	"fmt"
	"strings"
)

// testDocument wraps the given body components in a CCD with a standard
// recordTarget.
func testDocument(sections ...string) string {
	var body strings.Builder
	for _, s := range sections {
		body.WriteString("<component>")
		body.WriteString(s)
		body.WriteString("</component>\n")
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ClinicalDocument xmlns="urn:hl7-org:v3" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <title>Continuity of Care Document</title>
  %s
  <component>
    <structuredBody>
%s    </structuredBody>
  </component>
</ClinicalDocument>`, testRecordTarget(testPatientXML()), body.String())
}

func testRecordTarget(patient string) string {
	return `<recordTarget>
    <patientRole>
      <id root="2.16.840.1.113883.19.5" extension="MRN-0042"/>
      <addr><city>Springfield</city></addr>
      ` + patient + `
    </patientRole>
  </recordTarget>`
}

func testPatientXML() string {
	return `<patient>
        <name use="L">
          <given>John</given>
          <given>Quincy</given>
          <family>Public</family>
        </name>
        <administrativeGenderCode code="M" codeSystem="2.16.840.1.113883.5.1" displayName="Male"/>
        <birthTime value="19850304"/>
      </patient>`
}

const medicationsSection = `<section>
        <code code="10160-0" codeSystem="2.16.840.1.113883.6.1"/>
        <title>Medications</title>
        <text>
          <list>
            <item><content ID="med1">aspirin</content> 81 mg
              daily</item>
          </list>
        </text>
      </section>`

const allergiesSection = `<section>
        <code code="48765-2" codeSystem="2.16.840.1.113883.6.1"/>
        <title>Allergies</title>
        <entry><act classCode="ACT" moodCode="EVN"/></entry>
      </section>`

const vitalsSection = `<section>
        <title>  Vital Signs </title>
        <text>
          <table border="1">
            <thead><tr><th>Date</th> <th>BP</th></tr></thead>
            <tbody>
              <tr><td>2024-01-15</td>	<td>120/80 <sub>mmHg</sub></td></tr>
            </tbody>
          </table>
        </text>
      </section>`
