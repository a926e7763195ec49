package room

import "testing"

func TestRandomTokenIsValid(t *testing.T) {
	for i := 0; i < 200; i++ {
		tok := RandomToken()
		if !Valid(tok) {
			t.Fatalf("RandomToken produced invalid token %q", tok)
		}
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		token string
		want  bool
	}{
		{"do-re-mi", true},
		{"sol-sol-si", true},
		{"do-re", false},
		{"do-re-mi-fa", false},
		{"do-ti-mi", false},
		{"DO-RE-MI", false},
		{"", false},
		{"do--mi", false},
	}
	for _, tc := range cases {
		if got := Valid(tc.token); got != tc.want {
			t.Errorf("Valid(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Do-Mi-Sol ": "do-mi-sol",
		"do mi sol":    "do-mi-sol",
		"#la,si,do":    "la-si-do",
		"re":           "re",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
