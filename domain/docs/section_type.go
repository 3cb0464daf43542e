package docs

// SectionType categorizes a documentation section.
type SectionType string

const (
	SectionOverview        SectionType = "overview"
	SectionGettingStarted  SectionType = "getting_started"
	SectionInstallation    SectionType = "installation"
	SectionUsage           SectionType = "usage"
	SectionConfiguration   SectionType = "configuration"
	SectionArchitecture    SectionType = "architecture"
	SectionAPIReference    SectionType = "api_reference"
	SectionExamples        SectionType = "examples"
	SectionTesting         SectionType = "testing"
	SectionDeployment      SectionType = "deployment"
	SectionContributing    SectionType = "contributing"
	SectionTroubleshooting SectionType = "troubleshooting"
	SectionChangelog       SectionType = "changelog"
	SectionLicense         SectionType = "license"
)

// canonicalOrder is the fixed render order; section types not listed render
// after all listed types, in persisted order.
var canonicalOrder = []SectionType{
	SectionOverview,
	SectionGettingStarted,
	SectionInstallation,
	SectionUsage,
	SectionConfiguration,
	SectionArchitecture,
	SectionAPIReference,
	SectionExamples,
	SectionTesting,
	SectionDeployment,
	SectionContributing,
	SectionTroubleshooting,
	SectionChangelog,
	SectionLicense,
}

// uniqueSectionTypes may appear at most once per documentation.
var uniqueSectionTypes = map[SectionType]struct{}{
	SectionOverview:     {},
	SectionArchitecture: {},
	SectionLicense:      {},
	SectionChangelog:    {},
}

// CanonicalRank returns the render rank of a section type. Unknown types
// rank after every canonical type.
func CanonicalRank(t SectionType) int {
	for i, st := range canonicalOrder {
		if st == t {
			return i
		}
	}
	return len(canonicalOrder)
}

// Unique reports whether at most one section of this type may exist.
func (t SectionType) Unique() bool {
	_, ok := uniqueSectionTypes[t]
	return ok
}

// Title returns the display title for a section type.
func (t SectionType) Title() string {
	switch t {
	case SectionOverview:
		return "Overview"
	case SectionGettingStarted:
		return "Getting Started"
	case SectionInstallation:
		return "Installation"
	case SectionUsage:
		return "Usage"
	case SectionConfiguration:
		return "Configuration"
	case SectionArchitecture:
		return "Architecture"
	case SectionAPIReference:
		return "API Reference"
	case SectionExamples:
		return "Examples"
	case SectionTesting:
		return "Testing"
	case SectionDeployment:
		return "Deployment"
	case SectionContributing:
		return "Contributing"
	case SectionTroubleshooting:
		return "Troubleshooting"
	case SectionChangelog:
		return "Changelog"
	case SectionLicense:
		return "License"
	default:
		return string(t)
	}
}

// DefaultSectionSet returns the section types generated for a primary
// language when the caller does not choose explicitly.
func DefaultSectionSet(primaryLanguage string) []SectionType {
	base := []SectionType{
		SectionOverview,
		SectionGettingStarted,
		SectionInstallation,
		SectionUsage,
		SectionConfiguration,
		SectionAPIReference,
	}
	switch primaryLanguage {
	case "go", "rust", "java", "csharp":
		return append(base, SectionArchitecture, SectionTesting)
	case "javascript", "typescript", "python", "ruby":
		return append(base, SectionExamples, SectionTesting)
	default:
		return base
	}
}
