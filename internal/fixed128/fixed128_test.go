package fixed128

import "testing"

func TestParseValid(t *testing.T) {
	cases := map[string]string{
		"0":           "0",
		"100":         "100",
		"0.1":         "0.1",
		"30":          "30",
		"1.000000000000000000": "1",
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", in, err)
		}
		if got.String() != want {
			t.Errorf("Parse(%q).String() = %q, want %q", in, got.String(), want)
		}
	}
}

func TestParseRejects(t *testing.T) {
	bad := []string{"", "+1", "-1", ".5", "5.", " 1", "1 ", "1.2.3", "abc", "1.2345678901234567890"}
	for _, s := range bad {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", s)
		}
	}
}

func TestScale(t *testing.T) {
	v, _ := Parse("1.50")
	if v.Scale() != 1 {
		t.Errorf("Scale() = %d, want 1", v.Scale())
	}
	v2, _ := Parse("100")
	if v2.Scale() != 0 {
		t.Errorf("Scale() = %d, want 0", v2.Scale())
	}
}

func TestArithmetic(t *testing.T) {
	a, _ := Parse("100")
	b, _ := Parse("30")
	if a.Sub(b).String() != "70" {
		t.Errorf("Sub = %s, want 70", a.Sub(b).String())
	}
	if b.Add(a).String() != "130" {
		t.Errorf("Add = %s, want 130", b.Add(a).String())
	}
	if !a.GreaterThan(b) {
		t.Errorf("expected a > b")
	}
	if a.Min(b).String() != "30" {
		t.Errorf("Min = %s, want 30", a.Min(b).String())
	}
}

func TestOverflow(t *testing.T) {
	if _, err := Parse("18446744073709551616"); err == nil {
		t.Errorf("expected overflow error for u64::MAX+1")
	}
}
