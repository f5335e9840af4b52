package security

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolveWithin(t *testing.T) {
	base := t.TempDir()

	testCases := []struct {
		name    string
		elems   []string
		want    string
		wantErr error
	}{
		{name: "chain and address", elems: []string{"1", "0x5afe"}, want: filepath.Join(base, "1", "0x5afe")},
		{name: "no elements", want: base},
		{name: "dot", elems: []string{"."}, want: base},
		{name: "safe traversal", elems: []string{"a", "b", "..", "c"}, want: filepath.Join(base, "a", "c")},
		{name: "messy but inside", elems: []string{"./a/./b/../c"}, want: filepath.Join(base, "a", "c")},
		{name: "absolute element stays inside", elems: []string{"/etc/passwd"}, want: filepath.Join(base, "etc", "passwd")},
		{name: "parent", elems: []string{".."}, wantErr: ErrPathEscape},
		{name: "deep escape", elems: []string{"a", "..", "..", "etc"}, wantErr: ErrPathEscape},
		{name: "address with traversal", elems: []string{"1", "../../x"}, wantErr: ErrPathEscape},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveWithin(base, tc.elems...)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v (path %s)", tc.wantErr, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestResolveWithinEmptyBase(t *testing.T) {
	if _, err := ResolveWithin("", "reports"); err == nil {
		t.Fatal("expected error for empty base directory")
	}
}

func TestResolveFile(t *testing.T) {
	base := t.TempDir()

	testCases := []struct {
		name    string
		file    string
		want    string
		wantErr error
	}{
		{name: "relative", file: "report.json", want: filepath.Join(base, "report.json")},
		{name: "nested", file: "out/report.csv", want: filepath.Join(base, "out", "report.csv")},
		{name: "absolute inside", file: filepath.Join(base, "abs.md"), want: filepath.Join(base, "abs.md")},
		{name: "trimmed", file: "  r.json ", want: filepath.Join(base, "r.json")},
		{name: "absolute outside", file: filepath.Join(filepath.Dir(base), "other.json"), wantErr: ErrPathEscape},
		{name: "escape", file: "../report.json", wantErr: ErrPathEscape},
		{name: "empty", file: "   ", wantErr: ErrNotAFile},
		{name: "dot", file: ".", wantErr: ErrNotAFile},
		{name: "base itself", file: base, wantErr: ErrNotAFile},
		{name: "collapses to parent", file: "a/../..", wantErr: ErrNotAFile},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveFile(base, tc.file)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v (path %s)", tc.wantErr, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
