package engine

import (
	"fmt"
	"strings"
	"unicode"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/armature/pkg/rig"
	"github.com/chazu/armature/pkg/spec"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms rig script source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: attach-to -> attach_to
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpComponent wraps a rig.Component so it can be returned from
// `component` and consumed by its parent or by `assembly`.
type sexpComponent struct {
	c *rig.Component
}

func (s *sexpComponent) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(component %q :name %q :side %s)", s.c.Type(), s.c.Name, s.c.Side)
}
func (s *sexpComponent) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a three-component vector.
type sexpVec3 struct {
	vec [3]float64
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec[0], v.vec[1], v.vec[2])
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	order      []string
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			i++
			continue
		}
		if _, seen := result.kw[name]; !seen {
			result.order = append(result.order, name)
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i += 2
		} else {
			// Keyword at end with no value: treat as flag with nil.
			result.kw[name] = zygo.SexpNull
			i++
		}
	}
	return result
}

// camelCase converts a kebab-case keyword to the camelCase parameter key
// builders read: neck-links -> neckLinks.
func camelCase(kw string) string {
	parts := strings.FieldsFunc(kw, func(r rune) bool { return r == '-' || r == '_' })
	if len(parts) == 0 {
		return kw
	}
	var sb strings.Builder
	sb.WriteString(parts[0])
	for _, p := range parts[1:] {
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		sb.WriteString(string(r))
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts an integer from a SexpInt.
func toInt(s zygo.Sexp) (int, error) {
	if v, ok := s.(*zygo.SexpInt); ok {
		return int(v.Val), nil
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

// toBool extracts a boolean. A bare trailing keyword counts as true.
func toBool(s zygo.Sexp) (bool, error) {
	switch v := s.(type) {
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return true, nil
		}
	}
	return false, fmt.Errorf("expected boolean, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_left) and plain strings ("L").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

// toSide converts a keyword or string to a spec.Side.
func toSide(s zygo.Sexp) (spec.Side, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return "", fmt.Errorf("expected side keyword (:left, :right, :center): %w", err)
	}
	return spec.ParseSide(name)
}

// toComponent extracts a component from a sexpComponent.
func toComponent(s zygo.Sexp) (*rig.Component, error) {
	if c, ok := s.(*sexpComponent); ok {
		return c.c, nil
	}
	return nil, fmt.Errorf("expected component, got %T (%s)", s, s.SexpString(nil))
}

// toParam converts a script value to a component parameter. Lists
// become []any.
func toParam(s zygo.Sexp) (any, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return int(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpStr:
		return toKeywordString(v)
	case *sexpVec3:
		return v.vec, nil
	case *zygo.SexpPair, *zygo.SexpArray:
		items, err := sexpListToSlice(v)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			if out[i], err = toParam(item); err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
		}
		return out, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return true, nil
		}
	}
	return nil, fmt.Errorf("unsupported parameter value %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// builder collects the result of one evaluation.
type builder struct {
	registry *rig.Registry
	root     *rig.Component
}

// attachChildren adds every component in args under parent. Lists of
// components are flattened.
func attachChildren(parent *rig.Component, args []zygo.Sexp) error {
	for i, arg := range args {
		if _, ok := arg.(*sexpComponent); !ok {
			items, err := sexpListToSlice(arg)
			if err != nil {
				return fmt.Errorf("child %d: expected component, got %T (%s)", i, arg, arg.SexpString(nil))
			}
			if err := attachChildren(parent, items); err != nil {
				return err
			}
			continue
		}
		child, _ := toComponent(arg)
		if child.Parent() != nil {
			return fmt.Errorf("child %d: %s is already attached to %s", i, child, child.Parent())
		}
		if err := parent.AddChild(child); err != nil {
			return err
		}
	}
	return nil
}

// mirrorComponent copies c and its descendants onto the opposite side.
func (b *builder) mirrorComponent(c *rig.Component) (*rig.Component, error) {
	m, err := b.registry.Create(c.Type(), c.Params())
	if err != nil {
		return nil, err
	}
	m.Name = c.Name
	m.Side = c.Side.Mirror()
	m.AttachmentID = c.AttachmentID
	m.AttachTopLevelOnly = c.AttachTopLevelOnly
	for _, child := range c.Children() {
		mc, err := b.mirrorComponent(child)
		if err != nil {
			return nil, err
		}
		if err := m.AddChild(mc); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// registerBuiltins installs the rig script builtins into a zygomys
// environment. The builtins build components from b's registry and record
// the declared assembly on b.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *builder) {

	// -----------------------------------------------------------------------
	// (component "spine" :name "spine" :side :left :attach -1 :attach-top true
	//            :links 4 :origin (vec3 0 1 0) child...)
	//
	// Keywords other than name, side, attach and attach-top become
	// parameters, with kebab-case names converted to camelCase.
	// -----------------------------------------------------------------------
	env.AddFunction("component", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("component requires a type argument")
		}
		typeName, err := toKeywordString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("component: type: %w", err)
		}

		params := rig.Params{}
		for _, kw := range pa.order {
			switch kw {
			case "name", "side", "attach", "attach-top":
				continue
			}
			v, err := toParam(pa.kw[kw])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("component: %s: %w", kw, err)
			}
			params[camelCase(kw)] = v
		}

		c, err := b.registry.Create(typeName, params)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("component: %w", err)
		}
		if v, ok := pa.kw["name"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("component: name: %w", err)
			}
			c.Name = s
		}
		if v, ok := pa.kw["side"]; ok {
			side, err := toSide(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("component: side: %w", err)
			}
			c.Side = side
		}
		if v, ok := pa.kw["attach"]; ok {
			id, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("component: attach: %w", err)
			}
			c.AttachmentID = id
		}
		if v, ok := pa.kw["attach-top"]; ok {
			top, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("component: attach-top: %w", err)
			}
			c.AttachTopLevelOnly = top
		}

		if err := attachChildren(c, pa.positional[1:]); err != nil {
			return zygo.SexpNull, fmt.Errorf("component %q: %w", c.Name, err)
		}
		return &sexpComponent{c: c}, nil
	})

	// -----------------------------------------------------------------------
	// (mirror (component "arm" :side :left))
	// -----------------------------------------------------------------------
	env.AddFunction("mirror", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("mirror requires exactly 1 argument, got %d", len(args))
		}
		c, err := toComponent(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("mirror: %w", err)
		}
		m, err := b.mirrorComponent(c)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("mirror: %w", err)
		}
		return &sexpComponent{c: m}, nil
	})

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var v [3]float64
		for i, axis := range []string{"x", "y", "z"} {
			f, err := toFloat64(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %s: %w", axis, err)
			}
			v[i] = f
		}
		return &sexpVec3{vec: v}, nil
	})

	// -----------------------------------------------------------------------
	// (assembly "biped" (component "root" ...))
	//
	// Declares the root of the rig. An unnamed root takes the assembly's
	// name.
	// -----------------------------------------------------------------------
	env.AddFunction("assembly", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("assembly requires a name and one root component")
		}
		if b.root != nil {
			return zygo.SexpNull, fmt.Errorf("assembly: %q already declared", b.root.Name)
		}
		asmName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("assembly: name: %w", err)
		}
		root, err := toComponent(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("assembly: %w", err)
		}
		if root.Parent() != nil {
			return zygo.SexpNull, fmt.Errorf("assembly: root %s is attached to %s", root, root.Parent())
		}
		if root.Name == root.Type() {
			root.Name = asmName
		}
		b.root = root
		return args[1], nil
	})
}
