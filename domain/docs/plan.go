package docs

import "strings"

// MetadataPlannedSections is the metadata key under which the analysis
// stage records the section plan for later stages and the quality gate.
const MetadataPlannedSections = "planned_sections"

// FormatPlan serializes a section plan for metadata storage.
func FormatPlan(planned []SectionType) string {
	parts := make([]string, len(planned))
	for i, typ := range planned {
		parts[i] = string(typ)
	}
	return strings.Join(parts, ",")
}

// ParsePlan deserializes a section plan from metadata. Unknown entries
// are kept as-is so a plan survives section type additions.
func ParsePlan(value string) []SectionType {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	planned := make([]SectionType, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			planned = append(planned, SectionType(p))
		}
	}
	return planned
}

// Plan returns the section plan recorded during analysis, if any.
func (d Documentation) Plan() []SectionType {
	return ParsePlan(d.metadata[MetadataPlannedSections])
}
