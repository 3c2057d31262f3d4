// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pylang

import (
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/flowdiff/services/flowdiff/core"
)

// MaxWalkDepth bounds recursive AST traversal so pathological nesting
// cannot blow the stack.
const MaxWalkDepth = 200

// extraction carries per-file state during one tree walk.
type extraction struct {
	content  []byte
	filePath string
	module   string
	// isPackage is true for __init__.py files, whose module name is the
	// package itself rather than a leaf module inside it.
	isPackage bool
	table     *Table
}

// moduleName converts a project-relative file path to a dotted module
// qualified name: "src/api/handlers.py" → "src.api.handlers",
// "src/api/__init__.py" → "src.api".
func moduleName(filePath string) string {
	p := strings.TrimSuffix(filePath, path.Ext(filePath))
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	if strings.HasSuffix(p, "/__init__") {
		p = strings.TrimSuffix(p, "/__init__")
	}
	return strings.ReplaceAll(p, "/", ".")
}

// run walks the module's top-level statements and fills the table.
func (e *extraction) run(root *sitter.Node) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "import_statement":
			e.processImportStatement(child, e.table.Imports)
		case "import_from_statement":
			e.processImportFromStatement(child, e.table.Imports)
		case "class_definition":
			e.processClass(child, nil)
		case "function_definition":
			e.processFunction(child, nil, "")
		case "decorated_definition":
			e.processDecoratedDefinition(child)
		case "if_statement":
			e.processPossibleMainGuard(child)
		}
	}
}

func (e *extraction) text(node *sitter.Node) string {
	return string(e.content[node.StartByte():node.EndByte()])
}

// processImportStatement handles 'import foo.bar' and 'import foo as bar'.
// The full dotted path is recorded as its own alias so prefix-based
// resolution can match "foo.bar.fn" calls.
func (e *extraction) processImportStatement(node *sitter.Node, into map[string]string) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			p := e.text(child)
			into[p] = p
		case "aliased_import":
			var p, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "dotted_name":
					p = e.text(grandchild)
				case "identifier":
					alias = e.text(grandchild)
				}
			}
			if p != "" {
				if alias != "" {
					into[alias] = p
				} else {
					into[p] = p
				}
			}
		}
	}
}

// processImportFromStatement handles 'from x import a, b as c' including
// relative forms, binding each imported name to its fully qualified target.
func (e *extraction) processImportFromStatement(node *sitter.Node, into map[string]string) {
	var modulePath string
	var sawImport bool

	type namedImport struct {
		name  string
		alias string
	}
	var names []namedImport

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "import":
			sawImport = true
		case "relative_import":
			var prefix, name string
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "import_prefix":
					prefix = e.text(grandchild)
				case "dotted_name":
					name = e.text(grandchild)
				}
			}
			modulePath = e.resolveRelativeModule(len(prefix), name)
		case "dotted_name":
			if !sawImport {
				modulePath = e.text(child)
			} else {
				names = append(names, namedImport{name: e.text(child)})
			}
		case "identifier":
			if sawImport {
				names = append(names, namedImport{name: e.text(child)})
			}
		case "aliased_import":
			var name, alias string
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				switch grandchild.Type() {
				case "dotted_name", "identifier":
					if name == "" {
						name = e.text(grandchild)
					} else {
						alias = e.text(grandchild)
					}
				}
			}
			if name != "" {
				names = append(names, namedImport{name: name, alias: alias})
			}
		}
	}

	if modulePath == "" {
		return
	}
	for _, n := range names {
		target := modulePath + "." + n.name
		key := n.name
		if n.alias != "" {
			key = n.alias
		}
		into[key] = target
	}
}

// resolveRelativeModule turns "from ..pkg import x" dots into an absolute
// module path relative to the current module's package.
func (e *extraction) resolveRelativeModule(dots int, name string) string {
	parts := strings.Split(e.module, ".")
	// One dot means the current package (drop the module component);
	// each extra dot climbs one more level. For __init__.py the module
	// name already is the package, so the first dot drops nothing.
	drop := dots
	if e.isPackage {
		drop--
	}
	if drop < 0 {
		drop = 0
	}
	if drop > len(parts) {
		drop = len(parts)
	}
	base := parts[:len(parts)-drop]
	if name != "" {
		base = append(append([]string{}, base...), name)
	}
	return strings.Join(base, ".")
}

// processDecoratedDefinition dispatches a module-level decorated class or
// function, collecting the decorator names first.
func (e *extraction) processDecoratedDefinition(node *sitter.Node) {
	decorators := e.extractDecorators(node)
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "class_definition":
			e.processClass(child, decorators)
		case "function_definition":
			e.processFunction(child, decorators, "")
		}
	}
}

// decorator is one decorator attached to a definition: its dotted name and
// the raw argument nodes, when it was written as a call.
type decorator struct {
	name string
	call *sitter.Node
}

// extractDecorators collects decorators from a decorated_definition.
func (e *extraction) extractDecorators(node *sitter.Node) []decorator {
	var decorators []decorator
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "decorator" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			grandchild := child.Child(j)
			switch grandchild.Type() {
			case "identifier", "attribute":
				decorators = append(decorators, decorator{name: e.text(grandchild)})
			case "call":
				fn := grandchild.ChildByFieldName("function")
				if fn == nil && grandchild.ChildCount() > 0 {
					fn = grandchild.Child(0)
				}
				if fn != nil {
					decorators = append(decorators, decorator{name: e.text(fn), call: grandchild})
				}
			}
		}
	}
	return decorators
}

// processClass extracts a class, its methods, and __init__ instance-attribute
// bindings.
func (e *extraction) processClass(node *sitter.Node, decorators []decorator) {
	var name, docstring string
	var bodyNode *sitter.Node

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			if name == "" {
				name = e.text(child)
			}
		case "block":
			bodyNode = child
		}
	}
	if name == "" {
		return
	}

	qualified := e.module + "." + name
	if bodyNode != nil {
		docstring = e.extractDocstring(bodyNode)
	}

	sym := &core.Symbol{
		Name:          name,
		QualifiedName: qualified,
		Language:      LanguageName,
		FilePath:      e.filePath,
		LineNumber:    int(node.StartPoint().Row + 1),
		Documentation: docstring,
	}
	if len(decorators) > 0 {
		sym.Metadata = &core.SymbolMetadata{Decorators: decoratorNames(decorators)}
	}
	e.table.Add(sym)
	e.table.ClassesByName[name] = qualified

	if bodyNode == nil {
		return
	}
	for i := 0; i < int(bodyNode.ChildCount()); i++ {
		child := bodyNode.Child(i)
		switch child.Type() {
		case "function_definition":
			e.processFunction(child, nil, qualified)
		case "decorated_definition":
			methodDecorators := e.extractDecorators(child)
			for j := 0; j < int(child.ChildCount()); j++ {
				grandchild := child.Child(j)
				if grandchild.Type() == "function_definition" {
					e.processFunction(grandchild, methodDecorators, qualified)
				}
			}
		}
	}
}

// processFunction extracts one function or method symbol with its raw
// calls, local bindings, function-scoped imports, and decorator metadata.
func (e *extraction) processFunction(node *sitter.Node, decorators []decorator, classQualified string) {
	var name, returnType string
	var params []string
	var bodyNode *sitter.Node

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			if name == "" {
				name = e.text(child)
			}
		case "parameters":
			params = e.extractParameters(child)
		case "type":
			returnType = e.text(child)
		case "block":
			bodyNode = child
		}
	}
	if name == "" {
		return
	}

	qualified := e.module + "." + name
	if classQualified != "" {
		qualified = classQualified + "." + name
	}

	body := e.walkFunctionBody(bodyNode)

	meta := &core.SymbolMetadata{
		Parameters:    params,
		ReturnType:    returnType,
		Decorators:    decoratorNames(decorators),
		IsClassMethod: classQualified != "",
		LocalBindings: body.bindings,
		LocalImports:  body.localImports,
	}
	if method, route, ok := e.httpDecorator(decorators); ok {
		meta.HTTPMethod = method
		meta.HTTPRoute = route
	}

	sym := &core.Symbol{
		Name:          name,
		QualifiedName: qualified,
		Language:      LanguageName,
		FilePath:      e.filePath,
		LineNumber:    int(node.StartPoint().Row + 1),
		Metadata:      meta,
		RawCalls:      body.calls,
		Documentation: body.docstring,
	}
	e.table.Add(sym)

	if classQualified != "" {
		e.table.addMethod(classQualified, name)
		if name == "__init__" {
			for attr, class := range body.selfBindings {
				e.table.addInstanceBinding(classQualified, attr, class)
			}
		}
	}
	if body.usesSysArgv {
		e.table.CLIUsage[qualified] = true
	}
}

// extractParameters returns the formal parameter names of a function,
// preserving * and ** markers and dropping annotations and defaults.
func (e *extraction) extractParameters(node *sitter.Node) []string {
	var params []string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			params = append(params, e.text(child))
		case "typed_parameter", "default_parameter", "typed_default_parameter":
			if name := firstIdentifier(child, e.content); name != "" {
				params = append(params, name)
			}
		case "list_splat_pattern":
			if name := firstIdentifier(child, e.content); name != "" {
				params = append(params, "*"+name)
			}
		case "dictionary_splat_pattern":
			if name := firstIdentifier(child, e.content); name != "" {
				params = append(params, "**"+name)
			}
		}
	}
	return params
}

func firstIdentifier(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "identifier" {
			return string(content[child.StartByte():child.EndByte()])
		}
	}
	return ""
}

func decoratorNames(decorators []decorator) []string {
	if len(decorators) == 0 {
		return nil
	}
	names := make([]string, 0, len(decorators))
	for _, d := range decorators {
		names = append(names, d.name)
	}
	return names
}

// httpVerbs are the decorator attribute suffixes that map directly to an
// HTTP method, e.g. @app.get("/x").
var httpVerbs = map[string]string{
	"get":     "GET",
	"post":    "POST",
	"put":     "PUT",
	"delete":  "DELETE",
	"patch":   "PATCH",
	"head":    "HEAD",
	"options": "OPTIONS",
}

// httpDecorator recognizes FastAPI/Flask-shaped route decorators and maps
// them to an HTTP method and route path.
//
//	@app.get("/x")                    → GET /x
//	@router.post("/y")                → POST /y
//	@app.route("/z", methods=["PUT"]) → PUT /z (first listed method; GET default)
func (e *extraction) httpDecorator(decorators []decorator) (method, route string, ok bool) {
	for _, d := range decorators {
		if d.call == nil {
			continue
		}
		idx := strings.LastIndex(d.name, ".")
		if idx < 0 {
			continue
		}
		verb := d.name[idx+1:]

		if m, isVerb := httpVerbs[verb]; isVerb {
			if r := e.firstStringArgument(d.call); r != "" {
				return m, r, true
			}
			continue
		}
		if verb == "route" {
			r := e.firstStringArgument(d.call)
			if r == "" {
				continue
			}
			m := e.routeMethodsKeyword(d.call)
			if m == "" {
				m = "GET"
			}
			return m, r, true
		}
	}
	return "", "", false
}

// firstStringArgument returns the unquoted first string literal argument of
// a call node, or "".
func (e *extraction) firstStringArgument(call *sitter.Node) string {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		child := args.Child(i)
		if child.Type() == "string" {
			return stripQuotes(e.text(child))
		}
	}
	return ""
}

// routeMethodsKeyword extracts the first method from a methods=["..."]
// keyword argument on a @app.route decorator call.
func (e *extraction) routeMethodsKeyword(call *sitter.Node) string {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		child := args.Child(i)
		if child.Type() != "keyword_argument" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		valueNode := child.ChildByFieldName("value")
		if nameNode == nil || valueNode == nil || e.text(nameNode) != "methods" {
			continue
		}
		if valueNode.Type() != "list" {
			continue
		}
		for j := 0; j < int(valueNode.ChildCount()); j++ {
			item := valueNode.Child(j)
			if item.Type() == "string" {
				return strings.ToUpper(stripQuotes(e.text(item)))
			}
		}
	}
	return ""
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

// bodyFacts is everything one pass over a function body yields.
type bodyFacts struct {
	docstring    string
	calls        []string
	bindings     map[string]string
	selfBindings map[string]string
	localImports map[string]string
	usesSysArgv  bool
}

// walkFunctionBody gathers call expressions, simple constructor bindings,
// self-attribute bindings, function-scoped imports, and sys.argv usage in a
// single iterative traversal (explicit stack, bounded depth).
func (e *extraction) walkFunctionBody(body *sitter.Node) bodyFacts {
	facts := bodyFacts{}
	if body == nil {
		return facts
	}
	facts.docstring = e.extractDocstring(body)

	type stackEntry struct {
		node  *sitter.Node
		depth int
	}
	stack := []stackEntry{{node: body, depth: 0}}

	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := entry.node
		if node == nil || entry.depth > MaxWalkDepth {
			continue
		}

		switch node.Type() {
		case "call":
			if callee := e.calleeString(node, 0); callee != "" {
				facts.calls = append(facts.calls, callee)
			}
		case "assignment":
			e.recordBinding(node, &facts)
		case "import_statement":
			if facts.localImports == nil {
				facts.localImports = make(map[string]string)
			}
			e.processImportStatement(node, facts.localImports)
		case "import_from_statement":
			if facts.localImports == nil {
				facts.localImports = make(map[string]string)
			}
			e.processImportFromStatement(node, facts.localImports)
		case "attribute":
			if e.text(node) == "sys.argv" {
				facts.usesSysArgv = true
			}
		}

		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			if child := node.Child(i); child != nil {
				stack = append(stack, stackEntry{node: child, depth: entry.depth + 1})
			}
		}
	}
	return facts
}

// recordBinding captures "v = Ctor(...)" and "self.x = Ctor(...)"
// assignments. Only the bare constructor name is kept; whether it names a
// real class is the resolver's problem.
func (e *extraction) recordBinding(node *sitter.Node, facts *bodyFacts) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	if left == nil || right == nil || right.Type() != "call" {
		return
	}
	callee := e.calleeString(right, 0)
	if callee == "" {
		return
	}
	class := callee
	if idx := strings.LastIndex(class, "."); idx >= 0 {
		class = class[idx+1:]
	}

	switch left.Type() {
	case "identifier":
		if facts.bindings == nil {
			facts.bindings = make(map[string]string)
		}
		facts.bindings[e.text(left)] = class
	case "attribute":
		obj := left.ChildByFieldName("object")
		attr := left.ChildByFieldName("attribute")
		if obj != nil && attr != nil && obj.Type() == "identifier" && e.text(obj) == "self" {
			if facts.selfBindings == nil {
				facts.selfBindings = make(map[string]string)
			}
			facts.selfBindings[e.text(attr)] = class
		}
	}
}

// calleeString collapses a call's function expression to a dotted string:
// identifier → "f", attribute chains → "a.b.c", chained calls drop the
// intermediate parentheses ("Foo().bar" → "Foo.bar"). Unrepresentable
// shapes (subscripts, lambdas) yield "".
func (e *extraction) calleeString(call *sitter.Node, depth int) string {
	if depth > MaxWalkDepth {
		return ""
	}
	fn := call.ChildByFieldName("function")
	if fn == nil && call.ChildCount() > 0 {
		fn = call.Child(0)
	}
	return e.expressionPath(fn, depth+1)
}

func (e *extraction) expressionPath(node *sitter.Node, depth int) string {
	if node == nil || depth > MaxWalkDepth {
		return ""
	}
	switch node.Type() {
	case "identifier":
		return e.text(node)
	case "attribute":
		obj := node.ChildByFieldName("object")
		attr := node.ChildByFieldName("attribute")
		if attr == nil {
			return ""
		}
		base := e.expressionPath(obj, depth+1)
		if base == "" {
			return ""
		}
		return base + "." + e.text(attr)
	case "call":
		return e.calleeString(node, depth+1)
	default:
		return ""
	}
}

// extractDocstring returns the docstring of a block, if its first statement
// is a string expression.
func (e *extraction) extractDocstring(body *sitter.Node) string {
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		if child.Type() == "comment" {
			continue
		}
		if child.Type() != "expression_statement" || child.ChildCount() == 0 {
			return ""
		}
		strNode := child.Child(0)
		if strNode.Type() != "string" {
			return ""
		}
		return strings.TrimSpace(stripQuotes(e.text(strNode)))
	}
	return ""
}

// serverStartupCallees are the call shapes inside a __main__ guard that mark
// a file as a runnable server script.
func isServerStartupCall(callee string) bool {
	switch callee {
	case "uvicorn.run", "asyncio.run", "serve", "app.run", "application.run":
		return true
	}
	return strings.HasSuffix(callee, ".serve_forever")
}

// processPossibleMainGuard handles a top-level if statement. When it is a
// __main__ guard, every direct call inside it is recorded so entry-point
// marking can flag the called functions; a recognized server-startup call
// additionally produces a synthetic script-level entry symbol.
func (e *extraction) processPossibleMainGuard(node *sitter.Node) {
	cond := node.ChildByFieldName("condition")
	if cond == nil {
		return
	}
	condText := e.text(cond)
	if !strings.Contains(condText, "__name__") || !strings.Contains(condText, "__main__") {
		return
	}

	serverStartup := false

	type stackEntry struct {
		node  *sitter.Node
		depth int
	}
	stack := []stackEntry{{node: node, depth: 0}}
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := entry.node
		if n == nil || entry.depth > MaxWalkDepth {
			continue
		}
		if n.Type() == "call" {
			if callee := e.calleeString(n, 0); callee != "" {
				e.table.addMainGuardCall(e.module, callee)
				if isServerStartupCall(callee) {
					serverStartup = true
				}
			}
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if child := n.Child(i); child != nil {
				stack = append(stack, stackEntry{node: child, depth: entry.depth + 1})
			}
		}
	}

	if serverStartup {
		base := path.Base(e.filePath)
		base = strings.TrimSuffix(base, path.Ext(base))
		name := "<script:" + base + ">"
		e.table.Add(&core.Symbol{
			Name:          name,
			QualifiedName: name,
			Language:      LanguageName,
			FilePath:      e.filePath,
			LineNumber:    int(node.StartPoint().Row + 1),
			Metadata:      &core.SymbolMetadata{},
		})
	}
}
