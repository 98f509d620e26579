package ports

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseSpec_Valid(t *testing.T) {
	cases := map[string]PortSet{
		"22":              {22},
		"22,80":           {22, 80},
		"80,22":           {80, 22},
		"1-3":             {1, 2, 3},
		"22,80,8000-8002": {22, 80, 8000, 8001, 8002},
		"22,80-82,80":     {22, 80, 81, 82},
		" 443 , 1-2 ":     {443, 1, 2},
		"5-5":             {5},
		"65535":           {65535},
		"3-4,1-5":         {3, 4, 1, 2, 5},
	}
	for spec, want := range cases {
		t.Run(spec, func(t *testing.T) {
			got, err := ParseSpec(spec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("got %v want %v", got, want)
			}
		})
	}
}

func TestParseSpec_Invalid(t *testing.T) {
	cases := []string{
		"",        // empty
		"0",       // invalid port
		"65536",   // invalid port
		"70000",   // invalid port
		"10-1",    // reversed range
		"50-10",   // reversed range
		"abc",     // bad token
		"22,",     // empty token
		"1-70000", // out of range in range
		"-5",      // missing start
		"5-",      // missing end
		"1-2-3",   // too many dashes
		"+80",     // sign
		"22,x,80", // bad token in the middle
	}
	for _, spec := range cases {
		t.Run(spec, func(t *testing.T) {
			got, err := ParseSpec(spec)
			if err == nil {
				t.Fatalf("expected error for spec %q", spec)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if got != nil {
				t.Fatalf("expected no partial result, got %v", got)
			}
		})
	}
}

func TestParseSpec_ErrorNamesToken(t *testing.T) {
	_, err := ParseSpec("22,50-10")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Token != "50-10" {
		t.Fatalf("token = %q, want 50-10", pe.Token)
	}
}

func TestParseSpec_Invariants(t *testing.T) {
	specs := []string{"1-1024", "22,80-82,80", "65530-65535,1,2,3", "8080,80,8080-8082", DefaultSpec}
	for _, spec := range specs {
		set, err := ParseSpec(spec)
		if err != nil {
			t.Fatalf("%s: %v", spec, err)
		}
		seen := map[int]bool{}
		for _, p := range set {
			if p < 1 || p > 65535 {
				t.Fatalf("%s: port %d out of range", spec, p)
			}
			if seen[p] {
				t.Fatalf("%s: duplicate port %d", spec, p)
			}
			seen[p] = true
		}

		again, err := ParseSpec(set.String())
		if err != nil {
			t.Fatalf("%s: reparse %q: %v", spec, set.String(), err)
		}
		if !reflect.DeepEqual(again, set) {
			t.Fatalf("%s: reparse mismatch: %v vs %v", spec, again, set)
		}
	}
}

func TestPortSetString(t *testing.T) {
	cases := []struct {
		in   PortSet
		want string
	}{
		{PortSet{22}, "22"},
		{PortSet{22, 80, 81, 82}, "22,80-82"},
		{PortSet{3, 4, 1, 2, 5}, "3-4,1-2,5"},
		{PortSet{}, ""},
	}
	for _, c := range cases {
		if got := c.in.String(); got != c.want {
			t.Errorf("%v.String() = %q, want %q", c.in, got, c.want)
		}
	}
}
