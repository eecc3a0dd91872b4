package engine

import (
	"strings"
	"testing"

	"github.com/chazu/armature/pkg/rig"
	"github.com/chazu/armature/pkg/spec"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(component "spine" :name "spine")`,
			expect: `(component "spine" "__kw_name" "spine")`,
		},
		{
			name:   "multiple keywords",
			input:  `(component "arm" :twist 2 :attach -1)`,
			expect: `(component "arm" "__kw_twist" 2 "__kw_attach" -1)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(def left-arm x)`,
			expect: `(def left_arm x)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:neck-links`,
			expect: `"__kw_neck-links"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

func TestCamelCase(t *testing.T) {
	tests := map[string]string{
		"links":         "links",
		"neck-links":    "neckLinks",
		"attach-to-tip": "attachToTip",
		"already_snake": "alreadySnake",
	}
	for in, want := range tests {
		if got := camelCase(in); got != want {
			t.Errorf("camelCase(%q) = %q, want %q", in, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Evaluation tests
// ---------------------------------------------------------------------------

func evaluate(t *testing.T, source string) *rig.Component {
	t.Helper()
	root, evalErrs, err := New(nil, nil).Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if root == nil {
		t.Fatal("expected a root component")
	}
	return root
}

func evalErrors(t *testing.T, source string) []EvalError {
	t.Helper()
	root, evalErrs, err := New(nil, nil).Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if root != nil {
		t.Fatalf("expected nil root, got %s", root)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval errors")
	}
	return evalErrs
}

func TestBiped(t *testing.T) {
	source := `
; a minimal biped
(assembly "biped"
  (component "root"
    (component "spine" :name "spine" :links 3 :origin (vec3 0 1 0)
      (component "head" :name "head" :attach -1 :neck-links 2 :jaw false)
      (component "clavicle" :name "clav" :side :left :attach -1
        (component "arm" :name "arm" :side :left :twist 1)))))
`
	root := evaluate(t, source)
	if root.Name != "biped" || root.Type() != "root" {
		t.Errorf("root = %s", root)
	}

	spine := root.Find("spine")
	if spine == nil || spine.Type() != "spine" {
		t.Fatalf("spine = %v", spine)
	}
	if got := spine.Params().Int("links", 0); got != 3 {
		t.Errorf("links = %d", got)
	}
	if got := spine.Params().Vec("origin", [3]float64{}); got != [3]float64{0, 1, 0} {
		t.Errorf("origin = %v", got)
	}

	head := root.Find("head")
	if head.AttachmentID != -1 {
		t.Errorf("head attach = %d", head.AttachmentID)
	}
	if got := head.Params().Int("neckLinks", 0); got != 2 {
		t.Errorf("neckLinks = %d", got)
	}
	if head.Params().Bool("jaw", true) {
		t.Error("jaw = true")
	}

	arm := root.Find("arm")
	if arm.Side != spec.SideLeft || arm.Parent() != root.Find("clav") {
		t.Errorf("arm = %s side %s parent %v", arm, arm.Side, arm.Parent())
	}
	if n := len(spine.Children()); n != 2 {
		t.Errorf("spine children = %d", n)
	}
}

func TestBareComponentIsRoot(t *testing.T) {
	root := evaluate(t, `(component "chain" :name "tentacle" :links 6 :attach-top true)`)
	if root.Name != "tentacle" || root.Params().Int("links", 0) != 6 {
		t.Errorf("root = %s params %v", root, root.Params())
	}
	if !root.AttachTopLevelOnly {
		t.Error("attach-top not applied")
	}
}

func TestChildrenFromList(t *testing.T) {
	source := `
(def fingers (list
  (component "chain" :name "index" :links 3)
  (component "chain" :name "middle" :links 3)))
(assembly "hand" (component "root" :name "palm" fingers))
`
	root := evaluate(t, source)
	if root.Name != "palm" {
		t.Errorf("named root renamed to %q", root.Name)
	}
	if n := len(root.Children()); n != 2 {
		t.Errorf("children = %d", n)
	}
}

func TestMirror(t *testing.T) {
	source := `
(def left (component "clavicle" :name "clav" :side :left
  (component "arm" :name "arm" :side :left :twist 2)))
(assembly "body" (component "root" left (mirror left)))
`
	root := evaluate(t, source)
	kids := root.Children()
	if len(kids) != 2 {
		t.Fatalf("children = %d", len(kids))
	}
	right := kids[1]
	if right.Side != spec.SideRight || right.Name != "clav" {
		t.Errorf("mirrored = %s side %s", right, right.Side)
	}
	arm := right.Children()[0]
	if arm.Side != spec.SideRight || arm.Params().Int("twist", 0) != 2 {
		t.Errorf("mirrored arm = %s side %s params %v", arm, arm.Side, arm.Params())
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantMsg string
	}{
		{"unknown type", `(component "wing")`, "unknown component type"},
		{"bad side", `(component "arm" :side :up)`, "unknown side"},
		{"bad attach", `(component "arm" :attach "top")`, "expected integer"},
		{"bad child", `(component "root" 42)`, "expected component"},
		{"missing type", `(component :name "x")`, "requires a type"},
		{"vec3 arity", `(vec3 1 2)`, "exactly 3"},
		{"two assemblies", `(assembly "a" (component "root")) (assembly "b" (component "root"))`, "already declared"},
		{"duplicate names", `(component "root" :name "x" (component "chain" :name "x"))`, "duplicate component"},
		{"child attached twice", `(def c (component "chain")) (component "root" c c)`, "already attached"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := evalErrors(t, tt.source)
			if !strings.Contains(errs[0].Message, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", errs[0].Message, tt.wantMsg)
			}
		})
	}
}
