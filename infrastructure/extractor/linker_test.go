package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelore/codelore/domain/entity"
)

func linkEntity(t *testing.T, filePath, name, qualified string, kind entity.Kind) entity.CodeEntity {
	t.Helper()
	e, err := entity.NewCodeEntity(fixtureRepoID, filePath, "python", name, qualified, kind,
		entity.Location{StartLine: 1, EndLine: 1}, "")
	require.NoError(t, err)
	return e
}

func TestLinkCrossFile_ResolvesCallByUniqueName(t *testing.T) {
	fetch := linkEntity(t, "app/client.py", "fetch", "app.client.fetch", entity.KindFunction)
	parse := linkEntity(t, "app/parser.py", "parse", "app.parser.parse", entity.KindFunction)

	rels := NewLinker().LinkCrossFile(
		[]entity.CodeEntity{fetch, parse},
		[]Reference{{SourceID: fetch.EntityID(), Name: "parse", Kind: RefCall, FilePath: "app/client.py"}},
	)

	require.Len(t, rels, 1)
	assert.Equal(t, fetch.EntityID(), rels[0].SourceID())
	assert.Equal(t, parse.EntityID(), rels[0].TargetID())
	assert.Equal(t, entity.RelCalls, rels[0].Type())
	assert.InDelta(t, 0.7, rels[0].Weight(), 1e-9)
	assert.InDelta(t, 75, rels[0].Confidence(), 1e-9)
	assert.Equal(t, []string{"app/client.py"}, rels[0].SourceRefs())
}

func TestLinkCrossFile_AmbiguousNameStaysExternal(t *testing.T) {
	fetch := linkEntity(t, "app/client.py", "fetch", "app.client.fetch", entity.KindFunction)
	parseA := linkEntity(t, "app/parser.py", "parse", "app.parser.parse", entity.KindFunction)
	parseB := linkEntity(t, "lib/other.py", "parse", "lib.other.parse", entity.KindFunction)

	rels := NewLinker().LinkCrossFile(
		[]entity.CodeEntity{fetch, parseA, parseB},
		[]Reference{{SourceID: fetch.EntityID(), Name: "parse", Kind: RefCall, FilePath: "app/client.py"}},
	)

	require.Len(t, rels, 1)
	assert.Equal(t, ExternalTargetPrefix+"parse", rels[0].TargetID())
	assert.True(t, IsExternalTarget(rels[0].TargetID()))
	assert.InDelta(t, 0.3, rels[0].Weight(), 1e-9)
	assert.InDelta(t, 40, rels[0].Confidence(), 1e-9)
}

func TestLinkCrossFile_QualifiedSuffixDisambiguates(t *testing.T) {
	fetch := linkEntity(t, "app/client.py", "fetch", "app.client.fetch", entity.KindFunction)
	parseA := linkEntity(t, "app/parser.py", "parse", "app.parser.parse", entity.KindFunction)
	parseB := linkEntity(t, "lib/other.py", "parse", "lib.other.parse", entity.KindFunction)

	rels := NewLinker().LinkCrossFile(
		[]entity.CodeEntity{fetch, parseA, parseB},
		[]Reference{{SourceID: fetch.EntityID(), Name: "parser.parse", Kind: RefCall, FilePath: "app/client.py"}},
	)

	require.Len(t, rels, 1)
	assert.Equal(t, parseA.EntityID(), rels[0].TargetID())
	assert.Equal(t, entity.RelCalls, rels[0].Type())
}

func TestLinkCrossFile_ImportsResolveToModules(t *testing.T) {
	client := linkEntity(t, "app/client.py", "client", "app.client", entity.KindModule)
	parser := linkEntity(t, "app/parser.py", "parser", "app.parser", entity.KindModule)

	entities := []entity.CodeEntity{client, parser}

	tests := []struct {
		name     string
		imported string
		target   string
	}{
		{"exact dotted path", "app.parser", parser.EntityID()},
		{"slash separated path", "app/parser", parser.EntityID()},
		{"relative path", "./parser", parser.EntityID()},
		{"unresolved stdlib module", "os.path", ExternalTargetPrefix + "os.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rels := NewLinker().LinkCrossFile(entities, []Reference{
				{SourceID: client.EntityID(), Name: tt.imported, Kind: RefImport, FilePath: "app/client.py"},
			})

			require.Len(t, rels, 1)
			assert.Equal(t, entity.RelDepends, rels[0].Type())
			assert.Equal(t, tt.target, rels[0].TargetID())
			if IsExternalTarget(tt.target) {
				assert.InDelta(t, 0.3, rels[0].Weight(), 1e-9)
				assert.InDelta(t, 40, rels[0].Confidence(), 1e-9)
			} else {
				assert.InDelta(t, 0.8, rels[0].Weight(), 1e-9)
				assert.InDelta(t, 85, rels[0].Confidence(), 1e-9)
			}
		})
	}
}

func TestLinkCrossFile_InheritFromInterfaceUpgrades(t *testing.T) {
	circle := linkEntity(t, "shapes/circle.py", "Circle", "shapes.circle.Circle", entity.KindClass)
	square := linkEntity(t, "shapes/square.py", "Square", "shapes.square.Square", entity.KindClass)
	shape := linkEntity(t, "shapes/shape.py", "Shape", "shapes.shape.Shape", entity.KindInterface)
	base := linkEntity(t, "shapes/base.py", "Base", "shapes.base.Base", entity.KindClass)

	rels := NewLinker().LinkCrossFile(
		[]entity.CodeEntity{circle, square, shape, base},
		[]Reference{
			{SourceID: circle.EntityID(), Name: "Shape", Kind: RefInherit, FilePath: "shapes/circle.py"},
			{SourceID: square.EntityID(), Name: "Base", Kind: RefInherit, FilePath: "shapes/square.py"},
		},
	)

	require.Len(t, rels, 2)

	impl, ok := findLinked(rels, circle.EntityID(), shape.EntityID())
	require.True(t, ok)
	assert.Equal(t, entity.RelImplementation, impl.Type(), "interface target upgrades inheritance")
	assert.InDelta(t, 0.85, impl.Weight(), 1e-9)
	assert.InDelta(t, 85, impl.Confidence(), 1e-9)

	inherit, ok := findLinked(rels, square.EntityID(), base.EntityID())
	require.True(t, ok)
	assert.Equal(t, entity.RelInheritance, inherit.Type())
}

func TestLinkCrossFile_OwnerAttachesMethodToType(t *testing.T) {
	adder := linkEntity(t, "calc/types.go", "Adder", "calc.types.Adder", entity.KindStruct)
	add := linkEntity(t, "calc/add.go", "Add", "calc.add.Adder.Add", entity.KindMethod)

	rels := NewLinker().LinkCrossFile(
		[]entity.CodeEntity{adder, add},
		[]Reference{{SourceID: add.EntityID(), Name: "Adder", Kind: RefOwner, FilePath: "calc/add.go"}},
	)

	require.Len(t, rels, 1)
	assert.Equal(t, adder.EntityID(), rels[0].SourceID(), "composition runs type to method")
	assert.Equal(t, add.EntityID(), rels[0].TargetID())
	assert.Equal(t, entity.RelComposition, rels[0].Type())
	assert.InDelta(t, 1.0, rels[0].Weight(), 1e-9)
	assert.InDelta(t, 90, rels[0].Confidence(), 1e-9)
}

func TestLinkCrossFile_UnresolvedOwnerBecomesExternalSource(t *testing.T) {
	add := linkEntity(t, "calc/add.go", "Add", "calc.add.Missing.Add", entity.KindMethod)

	rels := NewLinker().LinkCrossFile(
		[]entity.CodeEntity{add},
		[]Reference{{SourceID: add.EntityID(), Name: "Missing", Kind: RefOwner, FilePath: "calc/add.go"}},
	)

	require.Len(t, rels, 1)
	assert.Equal(t, ExternalTargetPrefix+"Missing", rels[0].SourceID())
	assert.Equal(t, add.EntityID(), rels[0].TargetID())
	assert.InDelta(t, 0.3, rels[0].Weight(), 1e-9)
}

func TestLinkCrossFile_SelfReferenceProducesNoEdge(t *testing.T) {
	recurse := linkEntity(t, "app/walk.py", "walk", "app.walk.walk", entity.KindFunction)

	rels := NewLinker().LinkCrossFile(
		[]entity.CodeEntity{recurse},
		[]Reference{{SourceID: recurse.EntityID(), Name: "walk", Kind: RefCall, FilePath: "app/walk.py"}},
	)

	assert.Empty(t, rels)
}

func TestLinkCrossFile_DuplicateReferencesMerge(t *testing.T) {
	alpha := linkEntity(t, "app/alpha.py", "alpha", "app.alpha.alpha", entity.KindFunction)
	omega := linkEntity(t, "app/omega.py", "omega", "app.omega.omega", entity.KindFunction)

	rels := NewLinker().LinkCrossFile(
		[]entity.CodeEntity{alpha, omega},
		[]Reference{
			{SourceID: alpha.EntityID(), Name: "omega", Kind: RefCall, FilePath: "app/alpha.py"},
			{SourceID: alpha.EntityID(), Name: "app.omega.omega", Kind: RefCall, FilePath: "app/beta.py"},
		},
	)

	require.Len(t, rels, 1)
	assert.Equal(t, []string{"app/alpha.py", "app/beta.py"}, rels[0].SourceRefs())
}

func findLinked(rels []entity.CodeRelationship, sourceID, targetID string) (entity.CodeRelationship, bool) {
	for _, rel := range rels {
		if rel.SourceID() == sourceID && rel.TargetID() == targetID {
			return rel, true
		}
	}
	return entity.CodeRelationship{}, false
}
