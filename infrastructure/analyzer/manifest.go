package analyzer

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Dependency is one entry read from a dependency manifest.
type Dependency struct {
	Name      string
	Version   string
	Scope     string
	Ecosystem string
	Manifest  string
}

// Dependency scopes.
const (
	ScopeRuntime  = "runtime"
	ScopeDev      = "dev"
	ScopeBuild    = "build"
	ScopeTest     = "test"
	ScopeIndirect = "indirect"
	ScopeService  = "service"
)

// Dependency ecosystems.
const (
	EcosystemGo     = "go"
	EcosystemNPM    = "npm"
	EcosystemPip    = "pip"
	EcosystemCargo  = "cargo"
	EcosystemMaven  = "maven"
	EcosystemPub    = "pub"
	EcosystemDocker = "docker"
)

type manifestParser func(path string, content []byte) ([]Dependency, error)

// manifestParsers maps lowercased manifest basenames to parsers.
var manifestParsers = map[string]manifestParser{
	"go.mod":              parseGoMod,
	"package.json":        parsePackageJSON,
	"cargo.toml":          parseCargoTOML,
	"pyproject.toml":      parsePyprojectTOML,
	"requirements.txt":    parseRequirementsTxt,
	"pubspec.yaml":        parsePubspecYAML,
	"pom.xml":             parsePomXML,
	"docker-compose.yml":  parseComposeYAML,
	"docker-compose.yaml": parseComposeYAML,
	"compose.yml":         parseComposeYAML,
	"compose.yaml":        parseComposeYAML,
}

func parseGoMod(path string, content []byte) ([]Dependency, error) {
	var deps []Dependency
	inBlock := false
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "require ("):
			inBlock = true
		case inBlock && line == ")":
			inBlock = false
		case strings.HasPrefix(line, "require "):
			deps = appendGoRequirement(deps, path, strings.TrimPrefix(line, "require "))
		case inBlock && line != "" && !strings.HasPrefix(line, "//"):
			deps = appendGoRequirement(deps, path, line)
		}
	}
	return deps, nil
}

func appendGoRequirement(deps []Dependency, manifest, line string) []Dependency {
	scope := ScopeRuntime
	if strings.HasSuffix(line, "// indirect") {
		scope = ScopeIndirect
		line = strings.TrimSuffix(line, "// indirect")
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return deps
	}
	return append(deps, Dependency{
		Name:      fields[0],
		Version:   fields[1],
		Scope:     scope,
		Ecosystem: EcosystemGo,
		Manifest:  manifest,
	})
}

func parsePackageJSON(path string, content []byte) ([]Dependency, error) {
	var doc struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var deps []Dependency
	deps = appendSortedMap(deps, doc.Dependencies, path, EcosystemNPM, ScopeRuntime)
	deps = appendSortedMap(deps, doc.DevDependencies, path, EcosystemNPM, ScopeDev)
	return deps, nil
}

func parseCargoTOML(path string, content []byte) ([]Dependency, error) {
	var doc struct {
		Dependencies      map[string]toml.Primitive `toml:"dependencies"`
		DevDependencies   map[string]toml.Primitive `toml:"dev-dependencies"`
		BuildDependencies map[string]toml.Primitive `toml:"build-dependencies"`
	}
	md, err := toml.Decode(string(content), &doc)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var deps []Dependency
	deps = appendTOMLDeps(deps, md, doc.Dependencies, path, EcosystemCargo, ScopeRuntime)
	deps = appendTOMLDeps(deps, md, doc.DevDependencies, path, EcosystemCargo, ScopeDev)
	deps = appendTOMLDeps(deps, md, doc.BuildDependencies, path, EcosystemCargo, ScopeBuild)
	return deps, nil
}

func parsePyprojectTOML(path string, content []byte) ([]Dependency, error) {
	var doc struct {
		Project struct {
			Dependencies         []string            `toml:"dependencies"`
			OptionalDependencies map[string][]string `toml:"optional-dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies map[string]toml.Primitive `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	md, err := toml.Decode(string(content), &doc)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var deps []Dependency
	for _, raw := range doc.Project.Dependencies {
		name, version := splitRequirement(raw)
		if name == "" {
			continue
		}
		deps = append(deps, Dependency{Name: name, Version: version, Scope: ScopeRuntime, Ecosystem: EcosystemPip, Manifest: path})
	}

	groups := make([]string, 0, len(doc.Project.OptionalDependencies))
	for group := range doc.Project.OptionalDependencies {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		for _, raw := range doc.Project.OptionalDependencies[group] {
			name, version := splitRequirement(raw)
			if name == "" {
				continue
			}
			deps = append(deps, Dependency{Name: name, Version: version, Scope: ScopeDev, Ecosystem: EcosystemPip, Manifest: path})
		}
	}

	// Poetry keeps a python version constraint alongside real packages.
	poetry := make(map[string]toml.Primitive, len(doc.Tool.Poetry.Dependencies))
	for name, prim := range doc.Tool.Poetry.Dependencies {
		if strings.EqualFold(name, "python") {
			continue
		}
		poetry[name] = prim
	}
	deps = appendTOMLDeps(deps, md, poetry, path, EcosystemPip, ScopeRuntime)

	return deps, nil
}

func parseRequirementsTxt(path string, content []byte) ([]Dependency, error) {
	var deps []Dependency
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		name, version := splitRequirement(line)
		if name == "" {
			continue
		}
		deps = append(deps, Dependency{
			Name:      name,
			Version:   version,
			Scope:     ScopeRuntime,
			Ecosystem: EcosystemPip,
			Manifest:  path,
		})
	}
	return deps, nil
}

func parsePubspecYAML(path string, content []byte) ([]Dependency, error) {
	var doc struct {
		Dependencies    map[string]yaml.Node `yaml:"dependencies"`
		DevDependencies map[string]yaml.Node `yaml:"dev_dependencies"`
	}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var deps []Dependency
	deps = appendPubDeps(deps, doc.Dependencies, path, ScopeRuntime)
	deps = appendPubDeps(deps, doc.DevDependencies, path, ScopeDev)
	return deps, nil
}

func parseComposeYAML(path string, content []byte) ([]Dependency, error) {
	var doc struct {
		Services map[string]struct {
			Image string `yaml:"image"`
		} `yaml:"services"`
	}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	names := make([]string, 0, len(doc.Services))
	for name := range doc.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	var deps []Dependency
	for _, name := range names {
		deps = append(deps, Dependency{
			Name:      name,
			Version:   doc.Services[name].Image,
			Scope:     ScopeService,
			Ecosystem: EcosystemDocker,
			Manifest:  path,
		})
	}
	return deps, nil
}

func parsePomXML(path string, content []byte) ([]Dependency, error) {
	var doc struct {
		Dependencies struct {
			Dependency []struct {
				GroupID    string `xml:"groupId"`
				ArtifactID string `xml:"artifactId"`
				Version    string `xml:"version"`
				Scope      string `xml:"scope"`
			} `xml:"dependency"`
		} `xml:"dependencies"`
	}
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var deps []Dependency
	for _, d := range doc.Dependencies.Dependency {
		if d.GroupID == "" || d.ArtifactID == "" {
			continue
		}
		scope := ScopeRuntime
		if d.Scope == "test" {
			scope = ScopeTest
		}
		deps = append(deps, Dependency{
			Name:      d.GroupID + ":" + d.ArtifactID,
			Version:   d.Version,
			Scope:     scope,
			Ecosystem: EcosystemMaven,
			Manifest:  path,
		})
	}
	return deps, nil
}

func appendSortedMap(deps []Dependency, m map[string]string, manifest, ecosystem, scope string) []Dependency {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		deps = append(deps, Dependency{
			Name:      name,
			Version:   m[name],
			Scope:     scope,
			Ecosystem: ecosystem,
			Manifest:  manifest,
		})
	}
	return deps
}

func appendTOMLDeps(deps []Dependency, md toml.MetaData, m map[string]toml.Primitive, manifest, ecosystem, scope string) []Dependency {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		deps = append(deps, Dependency{
			Name:      name,
			Version:   tomlVersion(md, m[name]),
			Scope:     scope,
			Ecosystem: ecosystem,
			Manifest:  manifest,
		})
	}
	return deps
}

// tomlVersion reads a dependency version that is either a bare string or
// a table with a version key.
func tomlVersion(md toml.MetaData, prim toml.Primitive) string {
	var version string
	if err := md.PrimitiveDecode(prim, &version); err == nil {
		return version
	}

	var spec struct {
		Version string `toml:"version"`
	}
	if err := md.PrimitiveDecode(prim, &spec); err == nil {
		return spec.Version
	}
	return ""
}

func appendPubDeps(deps []Dependency, m map[string]yaml.Node, manifest, scope string) []Dependency {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		version := ""
		if node := m[name]; node.Kind == yaml.ScalarNode {
			version = node.Value
		}
		deps = append(deps, Dependency{
			Name:      name,
			Version:   version,
			Scope:     scope,
			Ecosystem: EcosystemPub,
			Manifest:  manifest,
		})
	}
	return deps
}

// splitRequirement separates a pip-style requirement into name and
// version constraint. Extras in brackets are dropped from the name.
func splitRequirement(raw string) (name, version string) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, "><=~!; "); i >= 0 {
		name, version = strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i:])
	} else {
		name = raw
	}
	if i := strings.Index(name, "["); i >= 0 {
		name = name[:i]
	}
	return name, version
}
