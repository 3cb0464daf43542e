package analyzer

import (
	"sort"
	"strings"

	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/infrastructure/source"
)

// FileRole classifies what a file is for within the tree.
type FileRole string

const (
	RoleEntryPoint FileRole = "entry_point"
	RoleConfig     FileRole = "config"
	RoleDoc        FileRole = "doc"
	RoleTest       FileRole = "test"
	RoleSource     FileRole = "source"
)

// roleWeights order files by structural importance when ranking.
var roleWeights = map[FileRole]int{
	RoleEntryPoint: 30,
	RoleConfig:     20,
	RoleDoc:        15,
	RoleSource:     10,
	RoleTest:       5,
}

// knownNameBonus is added to files whose name alone marks them as central
// to understanding a project.
const knownNameBonus = 25

var entryPointNames = map[string]struct{}{
	"main.go": {}, "main.py": {}, "main.rs": {}, "main.c": {}, "main.cpp": {},
	"main.js": {}, "main.ts": {}, "main.kt": {}, "main.dart": {},
	"index.js": {}, "index.ts": {},
	"app.js": {}, "app.ts": {}, "app.py": {},
	"server.js": {}, "server.ts": {},
	"__main__.py": {}, "manage.py": {},
	"program.cs": {}, "main.java": {}, "application.java": {},
}

// configNames are manifests and build files recognized by name.
var configNames = map[string]struct{}{
	"go.mod": {}, "go.sum": {}, "package.json": {}, "package-lock.json": {},
	"yarn.lock": {}, "cargo.toml": {}, "cargo.lock": {}, "pyproject.toml": {},
	"requirements.txt": {}, "setup.py": {}, "setup.cfg": {}, "pipfile": {},
	"gemfile": {}, "pom.xml": {}, "build.gradle": {}, "build.gradle.kts": {},
	"pubspec.yaml": {}, "composer.json": {}, "dockerfile": {},
	"docker-compose.yml": {}, "docker-compose.yaml": {}, "compose.yml": {},
	"compose.yaml": {}, "makefile": {}, "cmakelists.txt": {},
	"tsconfig.json": {}, "webpack.config.js": {}, "vite.config.js": {},
	"vite.config.ts": {},
}

var configExtensions = map[string]struct{}{
	"yaml": {}, "yml": {}, "toml": {}, "ini": {}, "cfg": {}, "conf": {},
	"properties": {}, "env": {}, "csproj": {},
}

var docNames = []string{"license", "changelog", "contributing", "notice", "authors", "code_of_conduct"}

var docExtensions = map[string]struct{}{
	"md": {}, "markdown": {}, "rst": {}, "txt": {}, "adoc": {},
}

var testSegments = map[string]struct{}{
	"test": {}, "tests": {}, "spec": {}, "specs": {}, "__tests__": {}, "testdata": {},
}

var docSegments = map[string]struct{}{
	"doc": {}, "docs": {}, "documentation": {},
}

// vendoredSegments mark directories whose contents are third-party or
// generated and never worth deep analysis.
var vendoredSegments = map[string]struct{}{
	"node_modules": {}, "vendor": {}, ".git": {}, "dist": {}, "build": {},
	"bin": {}, "obj": {}, "target": {}, "out": {}, ".next": {},
	".venv": {}, "venv": {}, "__pycache__": {}, "coverage": {},
}

var ciPaths = []string{
	".gitlab-ci.yml", "jenkinsfile", "azure-pipelines.yml",
	".circleci/config.yml", ".travis.yml",
}

// knownNames earn the rank bonus; compared against lowercased basenames,
// with README* and *.csproj handled as prefixes/suffixes.
var knownNames = map[string]struct{}{
	"go.mod": {}, "package.json": {}, "cargo.toml": {}, "pyproject.toml": {},
	"pom.xml": {}, "dockerfile": {}, "makefile": {}, "requirements.txt": {},
	"pubspec.yaml": {}, "composer.json": {}, "gemfile": {},
	"build.gradle": {}, "build.gradle.kts": {},
}

type classifiedFile struct {
	file     source.FileRecord
	language string
	role     FileRole
	vendored bool
}

func classifyFiles(files []source.FileRecord) []classifiedFile {
	out := make([]classifiedFile, 0, len(files))
	for _, f := range files {
		out = append(out, classifiedFile{
			file:     f,
			language: source.LanguageForPath(f.Path),
			role:     classifyRole(f.Path),
			vendored: isVendored(f.Path),
		})
	}
	return out
}

// classifyRole assigns a structural role. Test paths win over everything:
// a main.go under testdata is a fixture, not an entry point.
func classifyRole(path string) FileRole {
	base := strings.ToLower(baseName(path))

	switch {
	case isTestPath(path, base):
		return RoleTest
	case isEntryPoint(base):
		return RoleEntryPoint
	case isConfigName(base):
		return RoleConfig
	case isDocPath(path, base):
		return RoleDoc
	}

	ext := extensionOf(base)
	if _, ok := configExtensions[ext]; ok {
		return RoleConfig
	}
	if source.LanguageForPath(path) != "" {
		return RoleSource
	}
	return ""
}

func isTestPath(path, base string) bool {
	if strings.Contains(base, "_test.") || strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") || strings.HasPrefix(base, "test_") {
		return true
	}
	for _, seg := range dirSegments(path) {
		if _, ok := testSegments[seg]; ok {
			return true
		}
	}
	return false
}

func isEntryPoint(base string) bool {
	_, ok := entryPointNames[base]
	return ok
}

func isConfigName(base string) bool {
	if _, ok := configNames[base]; ok {
		return true
	}
	return strings.HasSuffix(base, ".csproj")
}

func isDocPath(path, base string) bool {
	if strings.HasPrefix(base, "readme") {
		return true
	}
	for _, name := range docNames {
		if base == name || strings.HasPrefix(base, name+".") {
			return true
		}
	}
	if _, ok := docExtensions[extensionOf(base)]; ok {
		return true
	}
	for _, seg := range dirSegments(path) {
		if _, ok := docSegments[seg]; ok {
			return true
		}
	}
	return false
}

func isVendored(path string) bool {
	for _, seg := range dirSegments(path) {
		if _, ok := vendoredSegments[seg]; ok {
			return true
		}
	}
	return false
}

func isCIPath(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, ".github/workflows/") &&
		(strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")) {
		return true
	}
	for _, p := range ciPaths {
		if lower == p {
			return true
		}
	}
	return false
}

func hasKnownName(base string) bool {
	if _, ok := knownNames[base]; ok {
		return true
	}
	return strings.HasPrefix(base, "readme") || strings.HasSuffix(base, ".csproj")
}

// rankImportantFiles scores every classified, non-vendored file by role
// weight, size decile, and known-name bonus, keeping the top
// maxImportantFiles. Output order is deterministic: rank descending, path
// ascending.
func rankImportantFiles(files []classifiedFile) []ImportantFile {
	candidates := make([]classifiedFile, 0, len(files))
	for _, f := range files {
		if f.vendored || f.role == "" {
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return nil
	}

	deciles := sizeDeciles(candidates)

	ranked := make([]ImportantFile, 0, len(candidates))
	for _, f := range candidates {
		base := strings.ToLower(baseName(f.file.Path))
		rank := roleWeights[f.role] + deciles[f.file.Path]
		if hasKnownName(base) {
			rank += knownNameBonus
		}
		ranked = append(ranked, ImportantFile{
			Path:     f.file.Path,
			Language: f.language,
			Role:     f.role,
			Size:     f.file.Size,
			Rank:     rank,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Rank != ranked[j].Rank {
			return ranked[i].Rank > ranked[j].Rank
		}
		return ranked[i].Path < ranked[j].Path
	})

	if len(ranked) > maxImportantFiles {
		ranked = ranked[:maxImportantFiles]
	}
	return ranked
}

// sizeDeciles maps each candidate path to its size decile (0–9) within
// the candidate set.
func sizeDeciles(candidates []classifiedFile) map[string]int {
	ordered := make([]classifiedFile, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].file.Size != ordered[j].file.Size {
			return ordered[i].file.Size < ordered[j].file.Size
		}
		return ordered[i].file.Path < ordered[j].file.Path
	})

	deciles := make(map[string]int, len(ordered))
	for i, f := range ordered {
		deciles[f.file.Path] = i * 10 / len(ordered)
	}
	return deciles
}

func buildStructure(stats repo.Statistics, files, manifests []classifiedFile) StructureAnalysis {
	structure := StructureAnalysis{
		FileCount: stats.FileCount(),
		LineCount: stats.LineCount(),
	}

	dirs := map[string]struct{}{}
	for _, f := range files {
		if f.vendored {
			continue
		}
		if i := strings.Index(f.file.Path, "/"); i > 0 {
			dirs[f.file.Path[:i]] = struct{}{}
		}

		switch f.role {
		case RoleEntryPoint:
			structure.EntryPoints = append(structure.EntryPoints, f.file.Path)
		case RoleTest:
			structure.TestFiles++
		case RoleDoc:
			structure.DocFiles++
		}

		if isCIPath(f.file.Path) {
			structure.HasCI = true
		}
	}

	for dir := range dirs {
		structure.Directories = append(structure.Directories, dir)
	}
	sort.Strings(structure.Directories)
	sort.Strings(structure.EntryPoints)

	for _, m := range manifests {
		structure.ConfigFiles = append(structure.ConfigFiles, m.file.Path)
	}
	sort.Strings(structure.ConfigFiles)

	return structure
}

// manifestFiles selects parseable dependency manifests: config-role files
// outside vendored and test trees whose basename has a registered parser.
func manifestFiles(files []classifiedFile) []classifiedFile {
	var manifests []classifiedFile
	for _, f := range files {
		if f.vendored || f.role != RoleConfig {
			continue
		}
		if _, ok := manifestParsers[strings.ToLower(baseName(f.file.Path))]; ok {
			manifests = append(manifests, f)
		}
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].file.Path < manifests[j].file.Path })
	return manifests
}

func baseName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func extensionOf(base string) string {
	if i := strings.LastIndex(base, "."); i >= 0 && i < len(base)-1 {
		return base[i+1:]
	}
	return ""
}

func dirSegments(path string) []string {
	segments := strings.Split(strings.ToLower(path), "/")
	if len(segments) <= 1 {
		return nil
	}
	return segments[:len(segments)-1]
}
