package pptx

import (
	"encoding/xml"
	"strings"
	"time"

	"slidecast/internal/textutil"
)

const corePropertiesPart = "docProps/core.xml"

// Properties are the document-level fields from docProps/core.xml.
type Properties struct {
	Title   string
	Author  string
	Created time.Time
}

type corePropsXML struct {
	Title   string `xml:"title"`
	Creator string `xml:"creator"`
	Created string `xml:"created"`
}

// ReadProperties reads the core document properties. The part is optional;
// a malformed part yields a warning and zero properties.
func ReadProperties(c *Container) (Properties, []Warning) {
	if !c.Has(corePropertiesPart) {
		return Properties{}, nil
	}
	data, err := c.Read(corePropertiesPart)
	if err != nil {
		return Properties{}, []Warning{{Part: corePropertiesPart, Code: WarnMalformedProperties, Message: err.Error()}}
	}
	var doc corePropsXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Properties{}, []Warning{{Part: corePropertiesPart, Code: WarnMalformedProperties, Message: err.Error()}}
	}
	props := Properties{
		Title:  textutil.NormalizeText(doc.Title),
		Author: textutil.NormalizeText(doc.Creator),
	}
	var warnings []Warning
	if created := strings.TrimSpace(doc.Created); created != "" {
		ts, err := time.Parse(time.RFC3339, created)
		if err != nil {
			warnings = append(warnings, Warning{Part: corePropertiesPart, Code: WarnMalformedProperties, Message: "created: " + err.Error()})
		} else {
			props.Created = ts.UTC()
		}
	}
	return props, warnings
}
