package canon

import "stitcher/internal/program"

// Classify tags each top-level statement. Statements are neither dropped nor
// reordered; a declaration binding several names becomes one node per name,
// in binding order.
func Classify(stmts []program.Statement) []Node {
	out := make([]Node, 0, len(stmts))
	for _, s := range stmts {
		out = append(out, classify(s)...)
	}
	return out
}

func classify(s program.Statement) []Node {
	switch {
	case s.IsDeclaration() && len(s.Declarators) > 0 && !s.HasPattern():
		nodes := make([]Node, 0, len(s.Declarators))
		for _, d := range s.Declarators {
			nodes = append(nodes, &VariableDeclaration{
				Kind:        s.DeclKind,
				Name:        d.Name,
				Initializer: d.Value,
				stmt:        program.Declaration(s.DeclKind, d),
			})
		}
		return nodes

	case (s.Type == program.TypeFunctionDeclaration || s.Type == program.TypeGeneratorFunction) && s.Name != "":
		return []Node{&FunctionDeclaration{Name: s.Name, stmt: s}}

	case s.Call != nil:
		if name, ok := CalleeName(s.Call); ok {
			return []Node{&CallStatement{CalleeName: name, stmt: s}}
		}
	}
	return []Node{&OtherNode{stmt: s}}
}

// CalleeName reduces a callee to the name used as its call table key:
// the identifier itself, or "object.property" when both sides are plain
// identifiers. Any other callee shape has no name.
func CalleeName(c *program.Call) (string, bool) {
	if c == nil || c.Optional {
		return "", false
	}
	switch c.Kind {
	case program.CalleeIdentifier:
		return c.Name, c.Name != ""
	case program.CalleeMember:
		if c.ObjectType == "identifier" && c.PropertyType == "property_identifier" {
			return c.Object + "." + c.Property, true
		}
	}
	return "", false
}
