package service

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/codelore/codelore/domain/entity"
)

// maxParticipantsPerRole caps how many entities a detector records per
// role. Pattern ids hash the participant set, so the cap is applied on
// sorted ids to keep rebuilds stable.
const maxParticipantsPerRole = 8

// DetectPatterns runs every pattern detector over one repository's
// entities and relationships. Detectors are pure: the same input yields
// the same candidates with the same stable ids. Callers filter the result
// by confidence.
func DetectPatterns(repositoryID int64, entities []entity.CodeEntity, relationships []entity.CodeRelationship) []entity.ArchitecturalPattern {
	sorted := make([]entity.CodeEntity, len(entities))
	copy(sorted, entities)
	entity.SortEntities(sorted)

	var patterns []entity.ArchitecturalPattern
	for _, detect := range patternDetectors {
		patterns = append(patterns, detect(repositoryID, sorted, relationships)...)
	}
	return patterns
}

var patternDetectors = []func(int64, []entity.CodeEntity, []entity.CodeRelationship) []entity.ArchitecturalPattern{
	detectLayeredArchitecture,
	detectMVC,
	detectRepositoryPattern,
	detectFactory,
	detectObserver,
	detectSingleton,
	detectDDD,
	detectMicroservices,
}

// layerRoles maps architectural layers to the directory names signalling
// them. The first matching layer claims a module.
var layerRoles = []struct {
	role string
	dirs map[string]struct{}
}{
	{"presentation", segmentSet("handler", "handlers", "controller", "controllers", "api", "transport", "routes", "web", "views")},
	{"application", segmentSet("service", "services", "application", "usecase", "usecases")},
	{"domain", segmentSet("domain", "model", "models", "entity", "entities", "core")},
	{"data access", segmentSet("repository", "repositories", "persistence", "infrastructure", "storage", "store", "dao")},
}

func detectLayeredArchitecture(repositoryID int64, entities []entity.CodeEntity, relationships []entity.CodeRelationship) []entity.ArchitecturalPattern {
	layers := make(map[string][]string)
	roleByID := make(map[string]string)
	nameByID := make(map[string]string)
	for _, e := range entities {
		if e.Kind() != entity.KindModule {
			continue
		}
		for _, layer := range layerRoles {
			if !hasAnySegment(e.FilePath(), layer.dirs) {
				continue
			}
			layers[layer.role] = append(layers[layer.role], e.EntityID())
			roleByID[e.EntityID()] = layer.role
			nameByID[e.EntityID()] = e.QualifiedName()
			break
		}
	}
	if len(layers) < 3 {
		return nil
	}

	participants := make(map[string]string)
	for role, ids := range layers {
		for _, id := range capIDs(ids) {
			participants[id] = role
		}
	}

	confidence := 0.6 + 0.1*float64(len(layers)-2)
	pattern, err := entity.NewPattern(repositoryID, "Layered Architecture", entity.PatternArchitectural, confidence, participants)
	if err != nil {
		return nil
	}

	for _, layer := range layerRoles {
		if _, ok := layers[layer.role]; ok {
			pattern = pattern.WithCharacteristic(layer.role + " layer")
		}
	}
	for _, violation := range layerViolations(roleByID, nameByID, relationships) {
		pattern = pattern.WithViolation(violation)
	}
	return []entity.ArchitecturalPattern{pattern}
}

// layerViolations reports domain modules depending on the data access
// layer, the inward dependency a layered architecture forbids.
func layerViolations(roleByID, nameByID map[string]string, relationships []entity.CodeRelationship) []string {
	var violations []string
	seen := make(map[string]struct{})
	for _, rel := range relationships {
		if rel.Type() != entity.RelDepends {
			continue
		}
		if roleByID[rel.SourceID()] != "domain" || roleByID[rel.TargetID()] != "data access" {
			continue
		}
		violation := fmt.Sprintf("domain module %s depends on data access module %s",
			nameByID[rel.SourceID()], nameByID[rel.TargetID()])
		if _, dup := seen[violation]; dup {
			continue
		}
		seen[violation] = struct{}{}
		violations = append(violations, violation)
	}
	sort.Strings(violations)
	return violations
}

var (
	mvcControllerDirs = segmentSet("controllers")
	mvcViewDirs       = segmentSet("views", "templates")
	mvcModelDirs      = segmentSet("models")
)

func detectMVC(repositoryID int64, entities []entity.CodeEntity, _ []entity.CodeRelationship) []entity.ArchitecturalPattern {
	buckets := make(map[string][]string)
	for _, e := range entities {
		switch e.Kind() {
		case entity.KindClass, entity.KindStruct, entity.KindModule:
		default:
			continue
		}
		switch {
		case strings.HasSuffix(e.Name(), "Controller") || hasAnySegment(e.FilePath(), mvcControllerDirs):
			buckets["controller"] = append(buckets["controller"], e.EntityID())
		case strings.HasSuffix(e.Name(), "View") || hasAnySegment(e.FilePath(), mvcViewDirs):
			buckets["view"] = append(buckets["view"], e.EntityID())
		case strings.HasSuffix(e.Name(), "Model") || hasAnySegment(e.FilePath(), mvcModelDirs):
			buckets["model"] = append(buckets["model"], e.EntityID())
		}
	}
	if len(buckets) < 3 {
		return nil
	}

	participants := make(map[string]string)
	for role, ids := range buckets {
		for _, id := range capIDs(ids) {
			participants[id] = role
		}
	}
	pattern, err := entity.NewPattern(repositoryID, "Model-View-Controller", entity.PatternArchitectural, 0.75, participants)
	if err != nil {
		return nil
	}
	pattern = pattern.WithCharacteristic(fmt.Sprintf("%d controllers", len(buckets["controller"])))
	pattern = pattern.WithCharacteristic(fmt.Sprintf("%d views", len(buckets["view"])))
	pattern = pattern.WithCharacteristic(fmt.Sprintf("%d models", len(buckets["model"])))
	return []entity.ArchitecturalPattern{pattern}
}

func detectRepositoryPattern(repositoryID int64, entities []entity.CodeEntity, relationships []entity.CodeRelationship) []entity.ArchitecturalPattern {
	var contracts, implementations []string
	for _, e := range entities {
		if !isTypeKind(e.Kind()) {
			continue
		}
		if !hasAnyNameSuffix(e.Name(), "Repository", "Store", "DAO", "Dao") {
			continue
		}
		if e.Kind() == entity.KindInterface {
			contracts = append(contracts, e.EntityID())
		} else {
			implementations = append(implementations, e.EntityID())
		}
	}
	total := len(contracts) + len(implementations)
	if total == 0 {
		return nil
	}

	contractSet := make(map[string]struct{}, len(contracts))
	for _, id := range contracts {
		contractSet[id] = struct{}{}
	}
	interfaceBacked := false
	for _, rel := range relationships {
		if rel.Type() != entity.RelImplementation {
			continue
		}
		if _, ok := contractSet[rel.TargetID()]; ok {
			interfaceBacked = true
			break
		}
	}

	confidence := 0.65
	if interfaceBacked {
		confidence += 0.1
	}
	if total >= 3 {
		confidence += 0.05
	}

	participants := make(map[string]string)
	for _, id := range capIDs(contracts) {
		participants[id] = "contract"
	}
	for _, id := range capIDs(implementations) {
		participants[id] = "repository"
	}
	pattern, err := entity.NewPattern(repositoryID, "Repository", entity.PatternStructural, confidence, participants)
	if err != nil {
		return nil
	}
	if interfaceBacked {
		pattern = pattern.WithCharacteristic("interface-backed data access")
	}
	return []entity.ArchitecturalPattern{pattern}
}

var factoryPrefixes = []string{"New", "Create", "Make", "Build"}

// factoryProduct strips a constructor prefix and returns the product type
// name, requiring an exported-style remainder so plain verbs like
// "Newest" or "Createdb" do not match.
func factoryProduct(name string) (string, bool) {
	for _, prefix := range factoryPrefixes {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok || rest == "" {
			continue
		}
		if rest[0] >= 'A' && rest[0] <= 'Z' {
			return rest, true
		}
	}
	return "", false
}

func detectFactory(repositoryID int64, entities []entity.CodeEntity, _ []entity.CodeRelationship) []entity.ArchitecturalPattern {
	productIDs := make(map[string][]string)
	for _, e := range entities {
		if isTypeKind(e.Kind()) {
			productIDs[e.Name()] = append(productIDs[e.Name()], e.EntityID())
		}
	}

	participants := make(map[string]string)
	matches := 0
	for _, e := range entities {
		if e.Kind() != entity.KindFunction && e.Kind() != entity.KindMethod {
			continue
		}
		product, ok := factoryProduct(e.Name())
		if !ok {
			continue
		}
		ids, ok := productIDs[product]
		if !ok {
			continue
		}
		matches++
		if len(participants)+2 <= 2*maxParticipantsPerRole {
			participants[e.EntityID()] = "factory"
			participants[ids[0]] = "product"
		}
	}
	if matches < 2 {
		return nil
	}

	confidence := 0.55 + 0.05*float64(matches)
	if confidence > 0.9 {
		confidence = 0.9
	}
	pattern, err := entity.NewPattern(repositoryID, "Factory", entity.PatternCreational, confidence, participants)
	if err != nil {
		return nil
	}
	pattern = pattern.WithCharacteristic(fmt.Sprintf("%d constructors with matching product types", matches))
	return []entity.ArchitecturalPattern{pattern}
}

var (
	observerSubjectMarkers = []string{"EventBus", "Emitter", "Dispatcher", "Broker", "Publisher"}
	observerSuffixes       = []string{"Listener", "Observer", "Subscriber"}
	publishNames           = segmentSet("Publish", "Emit", "Notify", "Dispatch", "publish", "emit", "notify", "dispatch")
	subscribeNames         = segmentSet("Subscribe", "AddListener", "On", "subscribe", "add_listener", "on")
)

func detectObserver(repositoryID int64, entities []entity.CodeEntity, _ []entity.CodeRelationship) []entity.ArchitecturalPattern {
	var subjects, observers []string
	hasPublish, hasSubscribe := false, false
	for _, e := range entities {
		name := e.Name()
		switch e.Kind() {
		case entity.KindClass, entity.KindStruct, entity.KindInterface:
			if containsAny(name, observerSubjectMarkers) {
				subjects = append(subjects, e.EntityID())
			} else if hasAnyNameSuffix(name, observerSuffixes...) {
				observers = append(observers, e.EntityID())
			}
		case entity.KindMethod, entity.KindFunction:
			if _, ok := publishNames[name]; ok {
				hasPublish = true
			}
			if _, ok := subscribeNames[name]; ok {
				hasSubscribe = true
			}
		}
	}
	if len(subjects) == 0 || len(observers) == 0 {
		return nil
	}

	confidence := 0.7
	if hasPublish && hasSubscribe {
		confidence = 0.8
	}
	participants := make(map[string]string)
	for _, id := range capIDs(subjects) {
		participants[id] = "subject"
	}
	for _, id := range capIDs(observers) {
		participants[id] = "observer"
	}
	pattern, err := entity.NewPattern(repositoryID, "Observer", entity.PatternBehavioral, confidence, participants)
	if err != nil {
		return nil
	}
	if hasPublish && hasSubscribe {
		pattern = pattern.WithCharacteristic("publish and subscribe operations present")
	}
	return []entity.ArchitecturalPattern{pattern}
}

var singletonAccessors = segmentSet(
	"Instance", "GetInstance", "getInstance", "get_instance",
	"SharedInstance", "sharedInstance", "Shared", "shared",
)

func detectSingleton(repositoryID int64, entities []entity.CodeEntity, relationships []entity.CodeRelationship) []entity.ArchitecturalPattern {
	ownerOf := make(map[string]string)
	for _, rel := range relationships {
		if rel.Type() == entity.RelComposition {
			ownerOf[rel.TargetID()] = rel.SourceID()
		}
	}

	participants := make(map[string]string)
	hasOwner, lazyInit := false, false
	for _, e := range entities {
		if e.Kind() != entity.KindMethod && e.Kind() != entity.KindFunction {
			continue
		}
		if _, ok := singletonAccessors[e.Name()]; !ok {
			continue
		}
		participants[e.EntityID()] = "accessor"
		if owner, ok := ownerOf[e.EntityID()]; ok {
			participants[owner] = "singleton"
			hasOwner = true
		}
		if strings.Contains(e.Content(), "once.Do(") || strings.Contains(e.Content(), "_instance") {
			lazyInit = true
		}
	}
	if len(participants) == 0 {
		return nil
	}

	confidence := 0.65
	if hasOwner {
		confidence = 0.7
	}
	if lazyInit {
		confidence += 0.1
	}
	pattern, err := entity.NewPattern(repositoryID, "Singleton", entity.PatternCreational, confidence, participants)
	if err != nil {
		return nil
	}
	if lazyInit {
		pattern = pattern.WithCharacteristic("lazy initialization")
	}
	return []entity.ArchitecturalPattern{pattern}
}

var (
	dddDomainDirs  = segmentSet("domain")
	dddServiceDirs = segmentSet("application", "service", "services", "usecase", "usecases")
)

func detectDDD(repositoryID int64, entities []entity.CodeEntity, _ []entity.CodeRelationship) []entity.ArchitecturalPattern {
	var modules, aggregates, contracts, services []string
	for _, e := range entities {
		inDomain := hasAnySegment(e.FilePath(), dddDomainDirs)
		switch {
		case inDomain && e.Kind() == entity.KindModule:
			modules = append(modules, e.EntityID())
		case inDomain && (e.Kind() == entity.KindClass || e.Kind() == entity.KindStruct):
			aggregates = append(aggregates, e.EntityID())
		case inDomain && e.Kind() == entity.KindInterface:
			contracts = append(contracts, e.EntityID())
		case !inDomain && hasAnySegment(e.FilePath(), dddServiceDirs) && strings.HasSuffix(e.Name(), "Service"):
			services = append(services, e.EntityID())
		}
	}
	if len(modules) < 2 || len(aggregates) == 0 {
		return nil
	}

	confidence := 0.6
	if len(contracts) > 0 {
		confidence += 0.1
	}
	if len(services) > 0 {
		confidence += 0.05
	}

	participants := make(map[string]string)
	for _, id := range capIDs(modules) {
		participants[id] = "domain module"
	}
	for _, id := range capIDs(aggregates) {
		participants[id] = "aggregate"
	}
	for _, id := range capIDs(contracts) {
		participants[id] = "domain contract"
	}
	for _, id := range capIDs(services) {
		participants[id] = "application service"
	}
	pattern, err := entity.NewPattern(repositoryID, "Domain-Driven Design", entity.PatternDDD, confidence, participants)
	if err != nil {
		return nil
	}
	pattern = pattern.WithCharacteristic("isolated domain model")
	if len(contracts) > 0 {
		pattern = pattern.WithCharacteristic("storage contracts defined in the domain")
	}
	if len(services) > 0 {
		pattern = pattern.WithCharacteristic("application service layer")
	}
	return []entity.ArchitecturalPattern{pattern}
}

var (
	deployDirs   = segmentSet("k8s", "kubernetes", "deployments", "deploy", "charts", "helm", "compose")
	serviceRoots = segmentSet("services", "cmd", "apps")
)

func detectMicroservices(repositoryID int64, entities []entity.CodeEntity, _ []entity.CodeRelationship) []entity.ArchitecturalPattern {
	var manifests []string
	rootModules := make(map[string]string)
	hasProto := false
	for _, e := range entities {
		if e.Kind() != entity.KindModule {
			continue
		}
		if e.Language() == "protobuf" {
			hasProto = true
		}

		base := strings.ToLower(path.Base(e.FilePath()))
		if e.Language() == "yaml" && (strings.HasPrefix(base, "docker-compose") || hasAnySegment(e.FilePath(), deployDirs)) {
			manifests = append(manifests, e.EntityID())
			continue
		}

		segments := splitPathSegments(e.FilePath())
		if len(segments) < 3 {
			continue
		}
		if _, ok := serviceRoots[segments[0]]; !ok {
			continue
		}
		root := segments[1]
		if _, claimed := rootModules[root]; !claimed {
			rootModules[root] = e.EntityID()
		}
	}
	if len(manifests) == 0 || len(rootModules) < 2 {
		return nil
	}

	confidence := 0.7
	if hasProto {
		confidence = 0.8
	}
	participants := make(map[string]string)
	for _, id := range capIDs(manifests) {
		participants[id] = "deployment manifest"
	}
	roots := make([]string, 0, len(rootModules))
	for root := range rootModules {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	for _, root := range capIDs(roots) {
		participants[rootModules[root]] = "service"
	}
	pattern, err := entity.NewPattern(repositoryID, "Microservices", entity.PatternMicroservices, confidence, participants)
	if err != nil {
		return nil
	}
	pattern = pattern.WithCharacteristic(fmt.Sprintf("%d service roots", len(rootModules)))
	if hasProto {
		pattern = pattern.WithCharacteristic("protobuf service contracts")
	}
	return []entity.ArchitecturalPattern{pattern}
}

// capIDs keeps the first maxParticipantsPerRole values. Inputs arrive in
// sorted order, so the kept set is stable across runs.
func capIDs(ids []string) []string {
	if len(ids) > maxParticipantsPerRole {
		return ids[:maxParticipantsPerRole]
	}
	return ids
}

func segmentSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func splitPathSegments(filePath string) []string {
	return strings.FieldsFunc(strings.ToLower(filePath), func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

func hasAnySegment(filePath string, names map[string]struct{}) bool {
	for _, segment := range splitPathSegments(filePath) {
		if _, ok := names[segment]; ok {
			return true
		}
	}
	return false
}

func hasAnyNameSuffix(name string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func containsAny(name string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

func isTypeKind(k entity.Kind) bool {
	switch k {
	case entity.KindClass, entity.KindStruct, entity.KindInterface, entity.KindEnum:
		return true
	}
	return false
}
