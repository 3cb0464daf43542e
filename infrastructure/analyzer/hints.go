package analyzer

import (
	"sort"
	"strings"
)

// PatternHint is a coarse architectural signal derived from tree shape
// and manifests. Hints are advisory and always carry confidence below
// 0.7: graph construction re-detects patterns from extracted entities
// and is authoritative.
type PatternHint struct {
	Name       string
	Evidence   []string
	Confidence float64
}

// Hint names.
const (
	HintLayeredArchitecture   = "layered_architecture"
	HintMVC                   = "mvc"
	HintDependencyInjection   = "dependency_injection"
	HintContinuousIntegration = "continuous_integration"
	HintContainerized         = "containerized"
	HintMicroservices         = "microservices"
)

// layerGroups name the directory vocabularies of a layered codebase. A
// hint fires when directories from three or more groups coexist.
var layerGroups = []struct {
	name    string
	aliases []string
}{
	{"interface", []string{"api", "handlers", "controllers", "routes", "transport", "rest"}},
	{"application", []string{"application", "services", "usecases", "app", "service"}},
	{"domain", []string{"domain", "models", "entities", "core", "model"}},
	{"infrastructure", []string{"infrastructure", "persistence", "repositories", "adapters", "dao", "storage"}},
}

var mvcDirs = []string{"models", "views", "controllers"}

// diMarkers match dependency names that imply a DI container.
var diMarkers = []string{
	"google/wire", "uber.org/fx", "uber.org/dig",
	"inversify", "@nestjs/", "dagger", "springframework",
}

var diFileNames = map[string]struct{}{
	"wire.go": {}, "wire_gen.go": {}, "injector.go": {},
	"inversify.config.ts": {},
}

func detectHints(files []classifiedFile, deps []Dependency) []PatternHint {
	var hints []PatternHint

	dirs := directorySet(files)

	if hint, ok := detectLayered(dirs); ok {
		hints = append(hints, hint)
	}
	if hint, ok := detectMVC(dirs); ok {
		hints = append(hints, hint)
	}
	if hint, ok := detectDI(files, deps); ok {
		hints = append(hints, hint)
	}
	if hint, ok := detectCI(files); ok {
		hints = append(hints, hint)
	}
	if hint, ok := detectContainerized(files); ok {
		hints = append(hints, hint)
	}
	if hint, ok := detectMicroservices(deps); ok {
		hints = append(hints, hint)
	}

	sort.Slice(hints, func(i, j int) bool { return hints[i].Name < hints[j].Name })
	return hints
}

// directorySet collects every directory segment of non-vendored paths.
func directorySet(files []classifiedFile) map[string]struct{} {
	dirs := map[string]struct{}{}
	for _, f := range files {
		if f.vendored {
			continue
		}
		for _, seg := range dirSegments(f.file.Path) {
			dirs[seg] = struct{}{}
		}
	}
	return dirs
}

func detectLayered(dirs map[string]struct{}) (PatternHint, bool) {
	var evidence []string
	groups := 0
	for _, group := range layerGroups {
		matched := ""
		for _, alias := range group.aliases {
			if _, ok := dirs[alias]; ok {
				matched = alias
				break
			}
		}
		if matched != "" {
			groups++
			evidence = append(evidence, matched)
		}
	}
	if groups < 3 {
		return PatternHint{}, false
	}

	sort.Strings(evidence)
	return PatternHint{
		Name:       HintLayeredArchitecture,
		Evidence:   evidence,
		Confidence: 0.4 + 0.05*float64(groups),
	}, true
}

func detectMVC(dirs map[string]struct{}) (PatternHint, bool) {
	var evidence []string
	for _, dir := range mvcDirs {
		if _, ok := dirs[dir]; ok {
			evidence = append(evidence, dir)
		}
	}
	if len(evidence) < 2 {
		return PatternHint{}, false
	}

	return PatternHint{
		Name:       HintMVC,
		Evidence:   evidence,
		Confidence: 0.3 + 0.1*float64(len(evidence)),
	}, true
}

func detectDI(files []classifiedFile, deps []Dependency) (PatternHint, bool) {
	seen := map[string]struct{}{}
	var evidence []string

	for _, d := range deps {
		for _, marker := range diMarkers {
			if strings.Contains(strings.ToLower(d.Name), marker) {
				if _, dup := seen[d.Name]; !dup {
					seen[d.Name] = struct{}{}
					evidence = append(evidence, d.Name)
				}
			}
		}
	}
	for _, f := range files {
		if f.vendored {
			continue
		}
		base := strings.ToLower(baseName(f.file.Path))
		if _, ok := diFileNames[base]; ok {
			if _, dup := seen[f.file.Path]; !dup {
				seen[f.file.Path] = struct{}{}
				evidence = append(evidence, f.file.Path)
			}
		}
	}

	if len(evidence) == 0 {
		return PatternHint{}, false
	}
	sort.Strings(evidence)
	return PatternHint{Name: HintDependencyInjection, Evidence: evidence, Confidence: 0.55}, true
}

func detectCI(files []classifiedFile) (PatternHint, bool) {
	var evidence []string
	for _, f := range files {
		if isCIPath(f.file.Path) {
			evidence = append(evidence, f.file.Path)
		}
	}
	if len(evidence) == 0 {
		return PatternHint{}, false
	}
	sort.Strings(evidence)
	return PatternHint{Name: HintContinuousIntegration, Evidence: evidence, Confidence: 0.6}, true
}

func detectContainerized(files []classifiedFile) (PatternHint, bool) {
	var evidence []string
	for _, f := range files {
		if f.vendored {
			continue
		}
		base := strings.ToLower(baseName(f.file.Path))
		if base == "dockerfile" || strings.HasPrefix(base, "dockerfile.") || isComposeName(base) {
			evidence = append(evidence, f.file.Path)
		}
	}
	if len(evidence) == 0 {
		return PatternHint{}, false
	}
	sort.Strings(evidence)
	return PatternHint{Name: HintContainerized, Evidence: evidence, Confidence: 0.6}, true
}

// detectMicroservices fires when a compose manifest declares three or
// more services.
func detectMicroservices(deps []Dependency) (PatternHint, bool) {
	var services []string
	for _, d := range deps {
		if d.Ecosystem == EcosystemDocker && d.Scope == ScopeService {
			services = append(services, d.Name)
		}
	}
	if len(services) < 3 {
		return PatternHint{}, false
	}
	sort.Strings(services)
	return PatternHint{Name: HintMicroservices, Evidence: services, Confidence: 0.55}, true
}

func isComposeName(base string) bool {
	switch base {
	case "docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml":
		return true
	}
	return false
}
