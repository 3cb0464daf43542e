package extractor

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/codelore/codelore/domain/entity"
)

// Language binds a tree-sitter grammar to the node vocabulary and
// complexity indicators used during extraction.
type Language struct {
	name           string
	extensions     []string
	language       *sitter.Language
	nodes          NodeTypes
	branchKeywords []string
}

// Name returns the language name.
func (l Language) Name() string { return l.name }

// Extensions returns the file extensions handled by this language.
func (l Language) Extensions() []string { return l.extensions }

// SitterLanguage returns the tree-sitter grammar.
func (l Language) SitterLanguage() *sitter.Language { return l.language }

// Nodes returns the node type configuration.
func (l Language) Nodes() NodeTypes { return l.nodes }

// BranchKeywords returns the cyclomatic indicators counted toward entity
// complexity.
func (l Language) BranchKeywords() []string { return l.branchKeywords }

// NodeTypes defines the AST node type names a language pass looks for.
type NodeTypes struct {
	functionNodes []string
	methodNodes   []string
	classNodes    []string
	importNodes   []string
	callNode      string
	// classKinds maps a class-like node type (or, for Go type_specs, the
	// underlying type node) to the entity kind it produces. Node types
	// absent from the map are skipped.
	classKinds map[string]entity.Kind
}

// FunctionNodes returns function definition node types.
func (n NodeTypes) FunctionNodes() []string { return n.functionNodes }

// MethodNodes returns method definition node types.
func (n NodeTypes) MethodNodes() []string { return n.methodNodes }

// ClassNodes returns class-like declaration node types.
func (n NodeTypes) ClassNodes() []string { return n.classNodes }

// ImportNodes returns import statement node types.
func (n NodeTypes) ImportNodes() []string { return n.importNodes }

// CallNode returns the call expression node type.
func (n NodeTypes) CallNode() string { return n.callNode }

// definitionTypes returns the set of all definition node types, used to
// decide whether a node is nested inside another definition.
func (n NodeTypes) definitionTypes() map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range n.functionNodes {
		set[t] = struct{}{}
	}
	for _, t := range n.methodNodes {
		set[t] = struct{}{}
	}
	for _, t := range n.classNodes {
		set[t] = struct{}{}
	}
	return set
}

// LanguageConfig holds the supported language configurations.
type LanguageConfig struct {
	byName map[string]Language
	byExt  map[string]Language
}

// NewLanguageConfig creates a LanguageConfig with all supported grammars.
func NewLanguageConfig() LanguageConfig {
	byName := make(map[string]Language)
	byExt := make(map[string]Language)

	for _, lang := range []Language{
		goLanguage(),
		pythonLanguage(),
		javascriptLanguage(),
		typescriptLanguage(),
		tsxLanguage(),
		javaLanguage(),
	} {
		byName[lang.name] = lang
		for _, ext := range lang.extensions {
			byExt[ext] = lang
		}
	}

	return LanguageConfig{byName: byName, byExt: byExt}
}

// ByName returns the language configuration by name.
func (c LanguageConfig) ByName(name string) (Language, bool) {
	lang, ok := c.byName[name]
	return lang, ok
}

// ByExtension returns the language configuration for a file extension
// (including the leading dot).
func (c LanguageConfig) ByExtension(ext string) (Language, bool) {
	lang, ok := c.byExt[ext]
	return lang, ok
}

func goLanguage() Language {
	return Language{
		name:       "go",
		extensions: []string{".go"},
		language:   golang.GetLanguage(),
		nodes: NodeTypes{
			functionNodes: []string{"function_declaration"},
			methodNodes:   []string{"method_declaration"},
			classNodes:    []string{"type_spec"},
			importNodes:   []string{"import_spec"},
			callNode:      "call_expression",
			classKinds: map[string]entity.Kind{
				"struct_type":    entity.KindStruct,
				"interface_type": entity.KindInterface,
			},
		},
		branchKeywords: []string{"if", "for", "case", "select"},
	}
}

func pythonLanguage() Language {
	return Language{
		name:       "python",
		extensions: []string{".py"},
		language:   python.GetLanguage(),
		nodes: NodeTypes{
			functionNodes: []string{"function_definition"},
			classNodes:    []string{"class_definition"},
			importNodes:   []string{"import_statement", "import_from_statement"},
			callNode:      "call",
			classKinds: map[string]entity.Kind{
				"class_definition": entity.KindClass,
			},
		},
		branchKeywords: []string{"if", "elif", "for", "while", "except", "case"},
	}
}

func javascriptLanguage() Language {
	return Language{
		name:       "javascript",
		extensions: []string{".js", ".jsx", ".mjs"},
		language:   javascript.GetLanguage(),
		nodes: NodeTypes{
			functionNodes: []string{"function_declaration", "arrow_function", "function_expression"},
			methodNodes:   []string{"method_definition"},
			classNodes:    []string{"class_declaration"},
			importNodes:   []string{"import_statement"},
			callNode:      "call_expression",
			classKinds: map[string]entity.Kind{
				"class_declaration": entity.KindClass,
			},
		},
		branchKeywords: []string{"if", "for", "while", "case", "catch"},
	}
}

func typescriptLanguage() Language {
	return Language{
		name:           "typescript",
		extensions:     []string{".ts"},
		language:       typescript.GetLanguage(),
		nodes:          typescriptNodes(),
		branchKeywords: []string{"if", "for", "while", "case", "catch"},
	}
}

func tsxLanguage() Language {
	return Language{
		name:           "tsx",
		extensions:     []string{".tsx"},
		language:       tsx.GetLanguage(),
		nodes:          typescriptNodes(),
		branchKeywords: []string{"if", "for", "while", "case", "catch"},
	}
}

// typescriptNodes is shared by the typescript and tsx grammars, which use
// the same node vocabulary.
func typescriptNodes() NodeTypes {
	return NodeTypes{
		functionNodes: []string{"function_declaration", "arrow_function", "function_expression"},
		methodNodes:   []string{"method_definition"},
		classNodes: []string{
			"class_declaration", "abstract_class_declaration",
			"interface_declaration", "enum_declaration",
		},
		importNodes: []string{"import_statement"},
		callNode:    "call_expression",
		classKinds: map[string]entity.Kind{
			"class_declaration":          entity.KindClass,
			"abstract_class_declaration": entity.KindClass,
			"interface_declaration":      entity.KindInterface,
			"enum_declaration":           entity.KindEnum,
		},
	}
}

func javaLanguage() Language {
	return Language{
		name:       "java",
		extensions: []string{".java"},
		language:   java.GetLanguage(),
		nodes: NodeTypes{
			methodNodes: []string{"method_declaration", "constructor_declaration"},
			classNodes:  []string{"class_declaration", "interface_declaration", "enum_declaration"},
			importNodes: []string{"import_declaration"},
			callNode:    "method_invocation",
			classKinds: map[string]entity.Kind{
				"class_declaration":     entity.KindClass,
				"interface_declaration": entity.KindInterface,
				"enum_declaration":      entity.KindEnum,
			},
		},
		branchKeywords: []string{"if", "for", "while", "case", "catch"},
	}
}
