package spec

import "fmt"

// Severity indicates whether a validation finding is a broken invariant
// or merely advisory.
type Severity int

const (
	SeverityError   Severity = iota // broken tree invariant
	SeverityWarning                 // informational
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Spec     *Spec
	Message  string
	Severity Severity
}

func (e ValidationError) Error() string {
	if e.Spec == nil {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] spec %s: %s", e.Severity, e.Spec, e.Message)
}

// Validate checks the structural invariants of the tree under root and
// returns every finding. It never mutates the tree.
func Validate(root *Spec) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateLinks(root)...)
	errs = append(errs, validateBindings(root)...)
	errs = append(errs, validatePassthrough(root)...)
	errs = append(errs, validateNames(root)...)
	return errs
}

// HasErrors reports whether any finding is an error.
func HasErrors(findings []ValidationError) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// validateLinks checks that each child points back at the parent that
// lists it and that no spec is listed twice.
func validateLinks(root *Spec) []ValidationError {
	var errs []ValidationError
	seen := make(map[*Spec]*Spec)
	var visit func(s *Spec)
	visit = func(s *Spec) {
		for _, c := range s.children {
			if prev, ok := seen[c]; ok {
				errs = append(errs, ValidationError{
					Spec:     c,
					Message:  fmt.Sprintf("listed under both %s and %s", prev, s),
					Severity: SeverityError,
				})
				continue
			}
			seen[c] = s
			if c.parent != s {
				errs = append(errs, ValidationError{
					Spec:     c,
					Message:  fmt.Sprintf("parent is %v, but listed under %s", c.parent, s),
					Severity: SeverityError,
				})
			}
			if c.Kind != s.Kind {
				errs = append(errs, ValidationError{
					Spec:     c,
					Message:  fmt.Sprintf("%s spec under a %s spec", c.Kind, s.Kind),
					Severity: SeverityError,
				})
			}
			visit(c)
		}
	}
	visit(root)
	return errs
}

func validateBindings(root *Spec) []ValidationError {
	var errs []ValidationError
	for s := range FlattenAll([]*Spec{root}) {
		switch {
		case s.Kind == KindJoint && s.binding == nil:
			errs = append(errs, ValidationError{Spec: s, Message: "joint has no binding", Severity: SeverityError})
		case s.Kind == KindJoint && s.binding.driven != s:
			errs = append(errs, ValidationError{Spec: s, Message: "binding drives a different spec", Severity: SeverityError})
		case s.Kind == KindPivot && s.binding != nil:
			errs = append(errs, ValidationError{Spec: s, Message: "pivot carries a binding", Severity: SeverityError})
		}
	}
	return errs
}

func validatePassthrough(root *Spec) []ValidationError {
	var errs []ValidationError
	for s := range FlattenAll([]*Spec{root}) {
		if s.Kind == KindPivot && s.Passthrough {
			errs = append(errs, ValidationError{
				Spec:     s,
				Message:  "passthrough has no effect on pivots",
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}

// validateNames warns about materializing specs that share a name; the
// live scene will disambiguate one of them.
func validateNames(root *Spec) []ValidationError {
	var errs []ValidationError
	names := make(map[string]bool)
	for s := range Flatten([]*Spec{root}, Filter{}) {
		if s.Name == "" {
			errs = append(errs, ValidationError{Spec: s, Message: "empty name", Severity: SeverityWarning})
			continue
		}
		if names[s.Name] {
			errs = append(errs, ValidationError{
				Spec:     s,
				Message:  fmt.Sprintf("duplicate name %q", s.Name),
				Severity: SeverityWarning,
			})
		}
		names[s.Name] = true
	}
	return errs
}
