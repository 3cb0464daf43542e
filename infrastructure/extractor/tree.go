package extractor

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codelore/codelore/domain/entity"
)

// Intra-file edges are near-certain: the definition and the reference sit
// in the same parse tree. Cross-file candidates carry no weight here; the
// Linker scores them after global resolution.
const (
	localCallWeight      = 0.9
	localCallConfidence  = 90
	localSuperWeight     = 1.0
	localSuperConfidence = 95
	containsWeight       = 1.0
	containsConfidence   = 100
)

// treePass extracts entities from a single parsed file.
type treePass struct {
	lang     Language
	repoID   int64
	filePath string
	src      []byte
	walker   Walker
	defTypes map[string]struct{}

	module        entity.CodeEntity
	entities      []entity.CodeEntity
	relationships []entity.CodeRelationship
	references    []Reference

	seenIDs     map[string]struct{}
	localByName map[string][]string
	kindByID    map[string]entity.Kind

	callSources []callSource
	supers      []pendingLink
	owners      []pendingLink
}

// callSource pairs an extracted entity with its definition node so call
// sites can be attributed after all definitions are indexed.
type callSource struct {
	id   string
	node *sitter.Node
}

// pendingLink is a name that must be resolved once the whole file has been
// indexed.
type pendingLink struct {
	sourceID string
	name     string
	kind     RefKind
}

func newTreePass(lang Language, repoID int64, filePath string, src []byte) *treePass {
	return &treePass{
		lang:        lang,
		repoID:      repoID,
		filePath:    filePath,
		src:         src,
		walker:      NewWalker(),
		defTypes:    lang.Nodes().definitionTypes(),
		seenIDs:     map[string]struct{}{},
		localByName: map[string][]string{},
		kindByID:    map[string]entity.Kind{},
	}
}

func (p *treePass) run(tree *sitter.Tree) ParseResult {
	root := tree.RootNode()

	p.addModule(root)
	p.extractClasses(root)
	p.extractTopLevel(root)
	p.extractProperties(root)
	p.extractImports(root)
	p.resolveOwners()
	p.resolveSupers()
	p.resolveCalls()

	return finalizeResult(p.entities, p.relationships, p.references)
}

// addModule creates the per-file module entity that anchors imports.
func (p *treePass) addModule(root *sitter.Node) {
	name := lastSegment(modulePath(p.filePath))
	if name == "" {
		name = p.filePath
	}
	loc := entity.Location{StartLine: 1, EndLine: int(root.EndPoint().Row) + 1}
	mod, err := entity.NewCodeEntity(p.repoID, p.filePath, p.lang.Name(), name, modulePath(p.filePath), entity.KindModule, loc, "")
	if err != nil {
		return
	}
	p.module = mod
	p.seenIDs[mod.EntityID()] = struct{}{}
	p.kindByID[mod.EntityID()] = entity.KindModule
	p.entities = append(p.entities, mod)
}

func (p *treePass) extractClasses(root *sitter.Node) {
	for _, node := range p.walker.CollectNodes(root, p.lang.Nodes().ClassNodes()) {
		kind, ok := p.classKind(node)
		if !ok {
			continue
		}
		name := p.definitionName(node)
		if name == "" {
			continue
		}

		qualified := modulePath(p.filePath) + "." + name
		classID, added := p.addEntity(name, qualified, kind, node)
		if !added {
			continue
		}

		for _, super := range p.classSupers(node) {
			p.supers = append(p.supers, pendingLink{sourceID: classID, name: super.name, kind: super.kind})
		}

		p.extractClassMethods(node, classID, qualified)
	}
}

// extractClassMethods pulls the function definitions that sit directly in
// a class body and attaches them to the class.
func (p *treePass) extractClassMethods(classNode *sitter.Node, classID, classQualified string) {
	body := classNode.ChildByFieldName("body")
	if body == nil {
		return
	}

	defNodes := append(p.walker.CollectNodes(body, p.lang.Nodes().FunctionNodes()),
		p.walker.CollectNodes(body, p.lang.Nodes().MethodNodes())...)

	for _, node := range defNodes {
		if !directChildOfBody(node, body) {
			continue
		}
		name := p.definitionName(node)
		if name == "" {
			continue
		}

		methodID, added := p.addEntity(name, classQualified+"."+name, entity.KindMethod, node)
		if !added {
			p.callSources = append(p.callSources, callSource{id: methodID, node: node})
			continue
		}

		if rel, err := entity.NewRelationship(classID, methodID, entity.RelComposition, containsWeight, containsConfidence); err == nil {
			rel = rel.WithSourceRef(p.filePath)
			p.relationships = append(p.relationships, rel)
		}
		p.callSources = append(p.callSources, callSource{id: methodID, node: node})
	}
}

// extractTopLevel extracts functions and methods that are not nested inside
// another definition. Class methods were claimed by extractClasses; their
// class ancestor excludes them here.
func (p *treePass) extractTopLevel(root *sitter.Node) {
	defNodes := append(p.walker.CollectNodes(root, p.lang.Nodes().FunctionNodes()),
		p.walker.CollectNodes(root, p.lang.Nodes().MethodNodes())...)

	for _, node := range defNodes {
		if p.walker.HasAncestorOfType(node, p.defTypes) {
			continue
		}
		name := p.definitionName(node)
		if name == "" {
			continue
		}

		owner := p.receiverTypeName(node)
		kind := entity.KindFunction
		qualified := modulePath(p.filePath) + "." + name
		if owner != "" {
			kind = entity.KindMethod
			qualified = modulePath(p.filePath) + "." + owner + "." + name
		} else if isTestEntity(p.lang.Name(), p.filePath, name) {
			kind = entity.KindTest
		}

		id, added := p.addEntity(name, qualified, kind, node)
		if added && owner != "" {
			p.owners = append(p.owners, pendingLink{sourceID: id, name: owner, kind: RefOwner})
		}
		p.callSources = append(p.callSources, callSource{id: id, node: node})
	}
}

// extractProperties records module-level assignments as property entities
// for languages that declare module constants that way.
func (p *treePass) extractProperties(root *sitter.Node) {
	if p.lang.Name() != "python" {
		return
	}

	for _, node := range p.walker.CollectNodes(root, []string{"assignment"}) {
		if p.walker.HasAncestorOfType(node, p.defTypes) {
			continue
		}
		left := node.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			continue
		}
		name := p.walker.NodeText(left, p.src)
		if name == "" {
			continue
		}

		qualified := modulePath(p.filePath) + "." + name
		loc := entity.Location{StartLine: int(node.StartPoint().Row) + 1, EndLine: int(node.EndPoint().Row) + 1}
		content := truncateContent(p.walker.NodeText(node, p.src))
		prop, err := entity.NewCodeEntity(p.repoID, p.filePath, p.lang.Name(), name, qualified, entity.KindProperty, loc, content)
		if err != nil {
			continue
		}
		if _, dup := p.seenIDs[prop.EntityID()]; dup {
			continue
		}
		prop = prop.WithComplexity(complexityScore(content, p.lang.BranchKeywords()))
		p.seenIDs[prop.EntityID()] = struct{}{}
		p.kindByID[prop.EntityID()] = entity.KindProperty
		p.entities = append(p.entities, prop)
	}
}

func (p *treePass) extractImports(root *sitter.Node) {
	for _, node := range p.walker.CollectNodes(root, p.lang.Nodes().ImportNodes()) {
		for _, path := range p.importPaths(node) {
			if path == "" {
				continue
			}
			p.references = append(p.references, Reference{
				SourceID: p.module.EntityID(),
				Name:     path,
				Kind:     RefImport,
				FilePath: p.filePath,
			})
		}
	}
}

// addEntity creates an entity with derived complexity and indexes it for
// local resolution. A duplicate stable ID (e.g. an overload sharing the
// qualified name) returns the existing ID with added=false.
func (p *treePass) addEntity(name, qualified string, kind entity.Kind, node *sitter.Node) (string, bool) {
	id := entity.StableEntityID(p.repoID, p.filePath, p.lang.Name(), qualified, kind)
	if _, dup := p.seenIDs[id]; dup {
		return id, false
	}

	content := truncateContent(p.walker.NodeText(node, p.src))
	loc := entity.Location{StartLine: int(node.StartPoint().Row) + 1, EndLine: int(node.EndPoint().Row) + 1}
	ent, err := entity.NewCodeEntity(p.repoID, p.filePath, p.lang.Name(), name, qualified, kind, loc, content)
	if err != nil {
		return id, false
	}
	ent = ent.WithComplexity(complexityScore(content, p.lang.BranchKeywords()))
	if attrs := p.decorators(node); len(attrs) > 0 {
		ent = ent.WithAttributes(attrs)
	}

	p.seenIDs[id] = struct{}{}
	p.kindByID[id] = kind
	p.localByName[name] = appendUnique(p.localByName[name], id)
	p.entities = append(p.entities, ent)
	return id, true
}

func (p *treePass) resolveOwners() {
	for _, link := range p.owners {
		targetID, ok := p.resolveLocal(link.name)
		if !ok {
			p.references = append(p.references, Reference{SourceID: link.sourceID, Name: link.name, Kind: RefOwner, FilePath: p.filePath})
			continue
		}
		if rel, err := entity.NewRelationship(targetID, link.sourceID, entity.RelComposition, containsWeight, containsConfidence); err == nil {
			p.relationships = append(p.relationships, rel.WithSourceRef(p.filePath))
		}
	}
}

func (p *treePass) resolveSupers() {
	for _, link := range p.supers {
		targetID, ok := p.resolveLocal(lastSegment(link.name))
		if !ok {
			p.references = append(p.references, Reference{SourceID: link.sourceID, Name: link.name, Kind: link.kind, FilePath: p.filePath})
			continue
		}
		typ := entity.RelInheritance
		if link.kind == RefImplement || p.kindByID[targetID] == entity.KindInterface {
			typ = entity.RelImplementation
		}
		if rel, err := entity.NewRelationship(link.sourceID, targetID, typ, localSuperWeight, localSuperConfidence); err == nil {
			p.relationships = append(p.relationships, rel.WithSourceRef(p.filePath))
		}
	}
}

func (p *treePass) resolveCalls() {
	for _, src := range p.callSources {
		for _, callee := range p.calleeNames(src.node) {
			targetID, ok := p.resolveLocal(lastSegment(callee))
			if !ok {
				p.references = append(p.references, Reference{SourceID: src.id, Name: callee, Kind: RefCall, FilePath: p.filePath})
				continue
			}
			if targetID == src.id {
				continue // recursion is not an edge
			}
			if rel, err := entity.NewRelationship(src.id, targetID, entity.RelCalls, localCallWeight, localCallConfidence); err == nil {
				p.relationships = append(p.relationships, rel.WithSourceRef(p.filePath))
			}
		}
	}
}

// resolveLocal resolves a simple name against this file's definitions. Only
// an unambiguous match resolves; everything else defers to the Linker.
func (p *treePass) resolveLocal(name string) (string, bool) {
	ids := p.localByName[name]
	if len(ids) != 1 {
		return "", false
	}
	return ids[0], true
}

// calleeNames collects the names invoked within a definition, as written.
func (p *treePass) calleeNames(defNode *sitter.Node) []string {
	var names []string
	for _, call := range p.walker.CollectDescendants(defNode, p.lang.Nodes().CallNode()) {
		name := ""
		if fn := call.ChildByFieldName("function"); fn != nil {
			name = p.walker.NodeText(fn, p.src)
		} else if nameNode := call.ChildByFieldName("name"); nameNode != nil {
			name = p.walker.NodeText(nameNode, p.src)
		}
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, "({[\n") {
			continue // chained or computed callee, not a resolvable name
		}
		names = append(names, name)
	}
	return names
}

// definitionName extracts a definition's name. Anonymous function
// expressions take the name of the variable they are assigned to.
func (p *treePass) definitionName(node *sitter.Node) string {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return p.walker.NodeText(nameNode, p.src)
	}
	if parent := node.Parent(); parent != nil && parent.Type() == "variable_declarator" {
		return p.walker.NodeText(parent.ChildByFieldName("name"), p.src)
	}
	return ""
}

// classKind maps a class-like node to its entity kind. Go type_specs are
// classified by their underlying type; specs without a mapped underlying
// type (aliases, defined primitives) are skipped.
func (p *treePass) classKind(node *sitter.Node) (entity.Kind, bool) {
	kinds := p.lang.Nodes().classKinds
	if kind, ok := kinds[node.Type()]; ok {
		return kind, true
	}
	if node.Type() == "type_spec" {
		if typeChild := node.ChildByFieldName("type"); typeChild != nil {
			kind, ok := kinds[typeChild.Type()]
			return kind, ok
		}
	}
	return "", false
}

// receiverTypeName returns the receiver type of a Go method declaration.
func (p *treePass) receiverTypeName(node *sitter.Node) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	return p.walker.NodeText(p.walker.FindDescendant(recv, "type_identifier"), p.src)
}

// superRef is an inheritance or implementation target as written.
type superRef struct {
	name string
	kind RefKind
}

// classSupers extracts the superclass and interface names of a class-like
// node across the supported grammars.
func (p *treePass) classSupers(node *sitter.Node) []superRef {
	var supers []superRef

	// Python: class C(Base, pkg.Other).
	if args := node.ChildByFieldName("superclasses"); args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			child := args.NamedChild(i)
			if child == nil {
				continue
			}
			switch child.Type() {
			case "identifier", "attribute":
				supers = append(supers, superRef{name: p.walker.NodeText(child, p.src), kind: RefInherit})
			}
		}
	}

	// Java: extends and implements clauses.
	if sup := node.ChildByFieldName("superclass"); sup != nil {
		if name := p.firstTypeName(sup); name != "" {
			supers = append(supers, superRef{name: name, kind: RefInherit})
		}
	}
	if ifaces := node.ChildByFieldName("interfaces"); ifaces != nil {
		if list := p.walker.FindDescendant(ifaces, "type_list"); list != nil {
			for i := 0; i < int(list.NamedChildCount()); i++ {
				if name := p.firstTypeName(list.NamedChild(i)); name != "" {
					supers = append(supers, superRef{name: name, kind: RefImplement})
				}
			}
		}
	}

	// JavaScript and TypeScript: class heritage.
	for i := uint32(0); i < node.ChildCount(); i++ {
		heritage := node.Child(int(i))
		if heritage == nil || heritage.Type() != "class_heritage" {
			continue
		}
		for j := uint32(0); j < heritage.ChildCount(); j++ {
			clause := heritage.Child(int(j))
			if clause == nil {
				continue
			}
			switch clause.Type() {
			case "extends_clause":
				if name := p.firstTypeName(clause); name != "" {
					supers = append(supers, superRef{name: name, kind: RefInherit})
				}
			case "implements_clause":
				for k := 0; k < int(clause.NamedChildCount()); k++ {
					if name := p.firstTypeName(clause.NamedChild(k)); name != "" {
						supers = append(supers, superRef{name: name, kind: RefImplement})
					}
				}
			default:
				if p.walker.IsIdentifier(clause) || clause.Type() == "member_expression" {
					supers = append(supers, superRef{name: p.walker.NodeText(clause, p.src), kind: RefInherit})
				}
			}
		}
	}

	return supers
}

// firstTypeName returns the first identifier-like descendant, skipping
// keywords and punctuation. Generic arguments come after the base type in
// traversal order, so the first hit is the declared name.
func (p *treePass) firstTypeName(node *sitter.Node) string {
	var name string
	p.walker.Walk(node, func(n *sitter.Node) bool {
		switch n.Type() {
		case "identifier", "type_identifier", "scoped_type_identifier":
			name = p.walker.NodeText(n, p.src)
			return false
		}
		return true
	})
	return name
}

// importPaths extracts the imported module names from an import node.
func (p *treePass) importPaths(node *sitter.Node) []string {
	switch node.Type() {
	case "import_spec": // Go
		return []string{strings.Trim(p.walker.NodeText(node.ChildByFieldName("path"), p.src), "\"`")}
	case "import_from_statement": // Python
		return []string{p.walker.NodeText(node.ChildByFieldName("module_name"), p.src)}
	case "import_declaration": // Java
		if scoped := p.walker.FindDescendant(node, "scoped_identifier"); scoped != nil {
			return []string{p.walker.NodeText(scoped, p.src)}
		}
		if ident := p.walker.FindDescendant(node, "identifier"); ident != nil {
			return []string{p.walker.NodeText(ident, p.src)}
		}
		return nil
	case "import_statement":
		// JavaScript and TypeScript statements carry a source field.
		if src := node.ChildByFieldName("source"); src != nil {
			return []string{strings.Trim(p.walker.NodeText(src, p.src), "\"'`")}
		}
		// Python: import a.b, c as d.
		var paths []string
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child == nil {
				continue
			}
			switch child.Type() {
			case "dotted_name":
				paths = append(paths, p.walker.NodeText(child, p.src))
			case "aliased_import":
				paths = append(paths, p.walker.NodeText(child.ChildByFieldName("name"), p.src))
			}
		}
		return paths
	}
	return nil
}

// decorators collects Python decorator names on a wrapped definition.
func (p *treePass) decorators(node *sitter.Node) []string {
	parent := node.Parent()
	if parent == nil || parent.Type() != "decorated_definition" {
		return nil
	}

	var names []string
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		child := parent.NamedChild(i)
		if child == nil || child.Type() != "decorator" {
			continue
		}
		name := strings.TrimPrefix(p.walker.NodeText(child, p.src), "@")
		if idx := strings.IndexByte(name, '('); idx >= 0 {
			name = name[:idx]
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// directChildOfBody reports whether a definition sits directly in a class
// body, allowing one wrapping decorated definition in between.
func directChildOfBody(node, body *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	if parent.ID() == body.ID() {
		return true
	}
	if parent.Type() == "decorated_definition" {
		if grand := parent.Parent(); grand != nil && grand.ID() == body.ID() {
			return true
		}
	}
	return false
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
