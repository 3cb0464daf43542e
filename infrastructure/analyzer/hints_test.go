package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelore/codelore/infrastructure/source"
)

func hintByName(hints []PatternHint, name string) (PatternHint, bool) {
	for _, h := range hints {
		if h.Name == name {
			return h, true
		}
	}
	return PatternHint{}, false
}

func TestDetectHints_Layered(t *testing.T) {
	files := classifyFiles([]source.FileRecord{
		{Path: "api/routes.go", Size: 10},
		{Path: "services/user.go", Size: 10},
		{Path: "domain/user.go", Size: 10},
		{Path: "persistence/store.go", Size: 10},
	})

	hints := detectHints(files, nil)
	hint, ok := hintByName(hints, HintLayeredArchitecture)
	require.True(t, ok)
	assert.Equal(t, []string{"api", "domain", "persistence", "services"}, hint.Evidence)
	assert.InDelta(t, 0.6, hint.Confidence, 0.001)
}

func TestDetectHints_LayeredNeedsThreeGroups(t *testing.T) {
	files := classifyFiles([]source.FileRecord{
		{Path: "api/routes.go", Size: 10},
		{Path: "domain/user.go", Size: 10},
	})

	_, ok := hintByName(detectHints(files, nil), HintLayeredArchitecture)
	assert.False(t, ok)
}

func TestDetectHints_MVC(t *testing.T) {
	files := classifyFiles([]source.FileRecord{
		{Path: "models/user.rb", Size: 10},
		{Path: "views/user.erb", Size: 10},
		{Path: "controllers/users_controller.rb", Size: 10},
	})

	hint, ok := hintByName(detectHints(files, nil), HintMVC)
	require.True(t, ok)
	assert.Equal(t, []string{"models", "views", "controllers"}, hint.Evidence)
	assert.InDelta(t, 0.6, hint.Confidence, 0.001)
}

func TestDetectHints_DependencyInjection(t *testing.T) {
	files := classifyFiles([]source.FileRecord{
		{Path: "internal/di/wire.go", Size: 10},
	})
	deps := []Dependency{
		{Name: "github.com/google/wire", Ecosystem: EcosystemGo},
	}

	hint, ok := hintByName(detectHints(files, deps), HintDependencyInjection)
	require.True(t, ok)
	assert.Equal(t, []string{"github.com/google/wire", "internal/di/wire.go"}, hint.Evidence)
}

func TestDetectHints_Microservices(t *testing.T) {
	deps := []Dependency{
		{Name: "web", Ecosystem: EcosystemDocker, Scope: ScopeService},
		{Name: "api", Ecosystem: EcosystemDocker, Scope: ScopeService},
		{Name: "db", Ecosystem: EcosystemDocker, Scope: ScopeService},
	}

	hint, ok := hintByName(detectHints(nil, deps), HintMicroservices)
	require.True(t, ok)
	assert.Equal(t, []string{"api", "db", "web"}, hint.Evidence)

	_, ok = hintByName(detectHints(nil, deps[:2]), HintMicroservices)
	assert.False(t, ok)
}

func TestDetectHints_Containerized(t *testing.T) {
	files := classifyFiles([]source.FileRecord{
		{Path: "Dockerfile", Size: 10},
		{Path: "deploy/Dockerfile.worker", Size: 10},
	})

	hint, ok := hintByName(detectHints(files, nil), HintContainerized)
	require.True(t, ok)
	assert.Equal(t, []string{"Dockerfile", "deploy/Dockerfile.worker"}, hint.Evidence)
}

func TestDetectHints_IgnoresVendoredTrees(t *testing.T) {
	files := classifyFiles([]source.FileRecord{
		{Path: "node_modules/pkg/models/a.js", Size: 10},
		{Path: "node_modules/pkg/views/b.js", Size: 10},
		{Path: "node_modules/pkg/controllers/c.js", Size: 10},
	})

	assert.Empty(t, detectHints(files, nil))
}

func TestDetectHints_StayBelowAuthoritativeThreshold(t *testing.T) {
	files := classifyFiles([]source.FileRecord{
		{Path: "api/routes.go", Size: 10},
		{Path: "services/user.go", Size: 10},
		{Path: "domain/user.go", Size: 10},
		{Path: "infrastructure/store.go", Size: 10},
		{Path: "models/user.go", Size: 10},
		{Path: "views/user.tmpl", Size: 10},
		{Path: "controllers/user.go", Size: 10},
		{Path: "Dockerfile", Size: 10},
		{Path: ".github/workflows/ci.yml", Size: 10},
		{Path: "wire.go", Size: 10},
	})
	deps := []Dependency{
		{Name: "web", Ecosystem: EcosystemDocker, Scope: ScopeService},
		{Name: "api", Ecosystem: EcosystemDocker, Scope: ScopeService},
		{Name: "db", Ecosystem: EcosystemDocker, Scope: ScopeService},
	}

	hints := detectHints(files, deps)
	require.NotEmpty(t, hints)
	for _, h := range hints {
		assert.Less(t, h.Confidence, 0.7, h.Name)
	}
}
