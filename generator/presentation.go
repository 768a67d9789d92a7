package generator

import "strings"

// Section is one displayed stage output.
type Section struct {
	Field   string   `json:"field"`
	Heading string   `json:"heading"`
	Text    string   `json:"text"`
	Items   []string `json:"items,omitempty"`
}

// Presentation 是每次运行后交给展示层的数据：标题 + 各输出字段。
type Presentation struct {
	Pipeline string    `json:"pipeline"`
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

var sectionHeadings = map[string]string{
	FieldAnalysis:    "AI Analysis",
	FieldFirstDraft:  "First Draft",
	FieldCritique:    "AI Analysis of First Draft",
	FieldFinalOutput: "Final Output",
}

// structuredFields are split on ItemSeparator for display.
var structuredFields = map[string]bool{
	FieldCritique: true,
}

// Present builds the display mapping for res. The title is the brand when
// the pipeline has one.
func Present(res *GenerationResult) Presentation {
	p := Presentation{
		Pipeline: res.Pipeline(),
		Title:    strings.TrimSpace(res.Value(FieldBrand)),
	}
	for _, field := range res.Outputs() {
		heading, ok := sectionHeadings[field]
		if !ok {
			heading = field
		}
		sec := Section{Field: field, Heading: heading, Text: strings.TrimSpace(res.Value(field))}
		if structuredFields[field] {
			sec.Items = StructuredText(sec.Text).Items()
		}
		p.Sections = append(p.Sections, sec)
	}
	return p
}

// Section returns the section for field.
func (p Presentation) Section(field string) (Section, bool) {
	for _, s := range p.Sections {
		if s.Field == field {
			return s, true
		}
	}
	return Section{}, false
}
