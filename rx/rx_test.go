package rx

import "testing"

func TestCompileAndFindAt(t *testing.T) {
	p, err := Compile(`\b(if)\b`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	m, ok := p.FindAt("if x", 0)
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Start() != 0 || m.End() != 2 {
		t.Fatalf("match span = [%d,%d), want [0,2)", m.Start(), m.End())
	}
	g1, present := m.Group(1)
	if !present || g1 != "if" {
		t.Fatalf("group 1 = %q, present=%v, want %q", g1, present, "if")
	}
}

func TestFindAtRespectsStartOffset(t *testing.T) {
	p, err := Compile(`x`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := p.FindAt("xx", 2); ok {
		t.Fatal("expected no match starting at the end of the string")
	}
	m, ok := p.FindAt("xx", 1)
	if !ok || m.Start() != 1 {
		t.Fatalf("expected match starting at 1, got ok=%v m=%v", ok, m)
	}
}

func TestCompileInvalidPattern(t *testing.T) {
	if _, err := Compile(`(unclosed`); err == nil {
		t.Fatal("expected an error for an invalid pattern")
	}
}

func TestLazySharesCompileResult(t *testing.T) {
	lz := NewLazy(`\d+`)
	p1, err1 := lz.Get()
	p2, err2 := lz.Get()
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if p1 != p2 {
		t.Fatal("Lazy.Get must return the same compiled Pattern on every call")
	}
}

func TestLazyCachesFailure(t *testing.T) {
	lz := NewLazy(`(unclosed`)
	_, err1 := lz.Get()
	_, err2 := lz.Get()
	if err1 == nil || err2 == nil {
		t.Fatal("expected both calls to report the cached compile error")
	}
}

func TestBackreferenceSupport(t *testing.T) {
	p, err := Compile(`(['"` + "`" + `])\w+\1`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := p.FindAt(`'abc'`, 0); !ok {
		t.Fatal("expected backreference pattern to match")
	}
	if _, ok := p.FindAt(`'abc"`, 0); ok {
		t.Fatal("mismatched quote must not match")
	}
}

func TestGroupRangeDistinguishesRepeatedCaptureText(t *testing.T) {
	p, err := Compile(`(a)(a)`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	m, ok := p.FindAt("aa", 0)
	if !ok {
		t.Fatal("expected a match")
	}
	s1, e1, ok1 := m.GroupRange(1)
	s2, e2, ok2 := m.GroupRange(2)
	if !ok1 || !ok2 {
		t.Fatalf("expected both groups to participate, got ok1=%v ok2=%v", ok1, ok2)
	}
	if s1 != 0 || e1 != 1 {
		t.Fatalf("group 1 range = [%d,%d), want [0,1)", s1, e1)
	}
	if s2 != 1 || e2 != 2 {
		t.Fatalf("group 2 range = [%d,%d), want [1,2)", s2, e2)
	}
}

func TestLookaroundSupport(t *testing.T) {
	p, err := Compile(`foo(?=bar)`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := p.FindAt("foobar", 0); !ok {
		t.Fatal("expected lookahead match against foobar")
	}
	if _, ok := p.FindAt("foobaz", 0); ok {
		t.Fatal("lookahead should reject foobaz")
	}
}
