package canon

// DeclarationTable holds declared variables and functions. The first
// declaration of a name fixes both its content and its position; later
// declarations of the same name are discarded.
//
// Variables and functions share one namespace: a function named like an
// already declared variable is discarded too.
type DeclarationTable struct {
	names map[string]struct{}
	vars  []*VariableDeclaration
	funcs []*FunctionDeclaration
	fnSet map[string]struct{}

	// dropped lists discarded names in the order they were seen.
	dropped []string
}

// NewDeclarationTable returns an empty table.
func NewDeclarationTable() *DeclarationTable {
	return &DeclarationTable{
		names: make(map[string]struct{}),
		fnSet: make(map[string]struct{}),
	}
}

// AddVariable inserts v unless its name is already declared. It reports
// whether v was kept.
func (t *DeclarationTable) AddVariable(v *VariableDeclaration) bool {
	if !t.claim(v.Name) {
		return false
	}
	t.vars = append(t.vars, v)
	return true
}

// AddFunction inserts f unless its name is already declared. It reports
// whether f was kept.
func (t *DeclarationTable) AddFunction(f *FunctionDeclaration) bool {
	if !t.claim(f.Name) {
		return false
	}
	t.funcs = append(t.funcs, f)
	t.fnSet[f.Name] = struct{}{}
	return true
}

func (t *DeclarationTable) claim(name string) bool {
	if _, ok := t.names[name]; ok {
		t.dropped = append(t.dropped, name)
		return false
	}
	t.names[name] = struct{}{}
	return true
}

// HasFunction reports whether name is a declared function.
func (t *DeclarationTable) HasFunction(name string) bool {
	_, ok := t.fnSet[name]
	return ok
}

// Variables returns kept variable declarations in first-seen order.
func (t *DeclarationTable) Variables() []*VariableDeclaration { return t.vars }

// Functions returns kept function declarations in first-seen order.
func (t *DeclarationTable) Functions() []*FunctionDeclaration { return t.funcs }

// Dropped returns the names of discarded redeclarations.
func (t *DeclarationTable) Dropped() []string { return t.dropped }

// CallTable holds top-level calls keyed by callee name. A repeated call
// replaces the stored statement but keeps the slot of the first occurrence.
type CallTable struct {
	slots   map[string]int
	entries []*CallStatement

	// replaced lists callee names whose content was overwritten.
	replaced []string
}

// NewCallTable returns an empty table.
func NewCallTable() *CallTable {
	return &CallTable{slots: make(map[string]int)}
}

// Set records c under its callee name.
func (t *CallTable) Set(c *CallStatement) {
	if i, ok := t.slots[c.CalleeName]; ok {
		t.entries[i] = c
		t.replaced = append(t.replaced, c.CalleeName)
		return
	}
	t.slots[c.CalleeName] = len(t.entries)
	t.entries = append(t.entries, c)
}

// Get returns the call currently stored for name.
func (t *CallTable) Get(name string) (*CallStatement, bool) {
	i, ok := t.slots[name]
	if !ok {
		return nil, false
	}
	return t.entries[i], true
}

// Len returns the number of distinct callee names.
func (t *CallTable) Len() int { return len(t.entries) }

// Entries returns stored calls in first-seen order.
func (t *CallTable) Entries() []*CallStatement { return t.entries }

// Replaced returns the callee names whose stored call was overwritten.
func (t *CallTable) Replaced() []string { return t.replaced }

// Partition splits the table into ordinary and entrypoint calls, keeping
// table order within each. A call is an entrypoint when its callee is a bare
// identifier naming a function in decls.
func (t *CallTable) Partition(decls *DeclarationTable) (ordinary, entrypoints []*CallStatement) {
	for _, c := range t.entries {
		if c.IsEntrypointCandidate() && decls.HasFunction(c.CalleeName) {
			entrypoints = append(entrypoints, c)
		} else {
			ordinary = append(ordinary, c)
		}
	}
	return ordinary, entrypoints
}
