package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		{"x", 5, 5},
		{" 42", 7, 7},
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		page, size         string
		wantPage, wantSize int
	}{
		{"", "", 1, DefaultPageSize},
		{"3", "10", 3, 10},
		{"0", "0", 1, 1},
		{"-2", "500", 1, MaxPageSize},
		{"abc", "x", 1, DefaultPageSize},
	}
	for _, tc := range cases {
		p, s := ClampPage(tc.page, tc.size)
		if p != tc.wantPage || s != tc.wantSize {
			t.Fatalf("ClampPage(%q,%q) = (%d,%d); want (%d,%d)", tc.page, tc.size, p, s, tc.wantPage, tc.wantSize)
		}
	}
}

func TestTotalPages(t *testing.T) {
	if got := TotalPages(0, 20); got != 0 {
		t.Fatalf("TotalPages(0) = %d", got)
	}
	if got := TotalPages(41, 20); got != 3 {
		t.Fatalf("TotalPages(41,20) = %d; want 3", got)
	}
	if got := TotalPages(40, 20); got != 2 {
		t.Fatalf("TotalPages(40,20) = %d; want 2", got)
	}
	if got := TotalPages(5, 0); got != 0 {
		t.Fatalf("TotalPages(5,0) = %d; want 0", got)
	}
}
