package xtesting

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

// updateGolden is set via -update to regenerate golden files.
var updateGolden = flag.Bool("update", false, "update golden fixture files")

// Golden compares got (any JSON-marshallable value) against the golden
// file at testdata/golden/<name>.json relative to the calling test
// file. Pass -update to regenerate baselines.
func Golden(t testing.TB, name string, got any) {
	t.Helper()
	path := goldenPath(t, name)
	if *updateGolden {
		writeGolden(t, path, got)
		return
	}
	assertGolden(t, path, got)
}

// GoldenBytes compares raw bytes against the golden file at
// testdata/golden/<name>.json. Valid JSON is pretty-printed before
// writing so diffs stay readable.
func GoldenBytes(t testing.TB, name string, got []byte) {
	t.Helper()
	path := goldenPath(t, name)
	if *updateGolden {
		writeBytesGolden(t, path, got)
		return
	}
	assertBytesGolden(t, path, got)
}

// MustMarshal marshals v to indented JSON or fails the test.
func MustMarshal(t testing.TB, v any) []byte {
	t.Helper()
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("MustMarshal: %v", err)
	}
	return b
}

// AssertDeterministic calls fn twice and asserts the JSON representation
// of each result is identical — the check used to verify the genetic
// optimizer produces an identical elitist sequence for the same seed
// (spec.md §8 property 9).
func AssertDeterministic(t testing.TB, fn func() any) {
	t.Helper()
	a := fn()
	b := fn()

	aJSON, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("AssertDeterministic: marshal first result: %v", err)
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("AssertDeterministic: marshal second result: %v", err)
	}

	if string(aJSON) != string(bJSON) {
		t.Errorf("AssertDeterministic: results differ\nfirst:  %s\nsecond: %s", aJSON, bJSON)
	}
}

// AssertDeepEqual wraps reflect.DeepEqual with a readable diff message.
func AssertDeepEqual(t testing.TB, want, got any) {
	t.Helper()
	if !reflect.DeepEqual(want, got) {
		wantJSON, _ := json.MarshalIndent(want, "", "  ")
		gotJSON, _ := json.MarshalIndent(got, "", "  ")
		t.Errorf("values differ\nwant: %s\n got: %s", wantJSON, gotJSON)
	}
}

func goldenPath(t testing.TB, name string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(2) // 0=goldenPath, 1=Golden, 2=test
	if !ok {
		t.Fatalf("goldenPath: unable to resolve caller")
	}
	dir := filepath.Join(filepath.Dir(file), "testdata", "golden")
	return filepath.Join(dir, fmt.Sprintf("%s.json", name))
}

func writeGolden(t testing.TB, path string, v any) {
	t.Helper()
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("golden update: marshal: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("golden update: mkdir: %v", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		t.Fatalf("golden update: write %s: %v", path, err)
	}
	t.Logf("golden: updated %s", path)
}

func writeBytesGolden(t testing.TB, path string, b []byte) {
	t.Helper()
	var norm any
	if err := json.Unmarshal(b, &norm); err == nil {
		pretty, _ := json.MarshalIndent(norm, "", "  ")
		b = append(pretty, '\n')
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("golden update: mkdir: %v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("golden update: write %s: %v", path, err)
	}
	t.Logf("golden: updated %s", path)
}

func assertBytesGolden(t testing.TB, path string, got []byte) {
	t.Helper()
	wantBytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Errorf("golden: file not found: %s — run with -update to create it", path)
			return
		}
		t.Fatalf("golden: read %s: %v", path, err)
	}

	var wantNorm, gotNorm any
	wantErr := json.Unmarshal(wantBytes, &wantNorm)
	gotErr := json.Unmarshal(got, &gotNorm)

	if wantErr == nil && gotErr == nil {
		if !reflect.DeepEqual(wantNorm, gotNorm) {
			wantPretty, _ := json.MarshalIndent(wantNorm, "", "  ")
			gotPretty, _ := json.MarshalIndent(gotNorm, "", "  ")
			t.Errorf("golden mismatch for %s\nwant:\n%s\n got:\n%s", path, wantPretty, gotPretty)
		}
		return
	}
	if string(wantBytes) != string(got) {
		t.Errorf("golden mismatch for %s\nwant:\n%s\n got:\n%s", path, wantBytes, got)
	}
}

func assertGolden(t testing.TB, path string, got any) {
	t.Helper()
	wantBytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Errorf("golden: file not found: %s — run with -update to create it", path)
			return
		}
		t.Fatalf("golden: read %s: %v", path, err)
	}

	gotBytes, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("golden: marshal got: %v", err)
	}

	var wantNorm, gotNorm any
	if err := json.Unmarshal(wantBytes, &wantNorm); err != nil {
		t.Fatalf("golden: unmarshal want: %v", err)
	}
	if err := json.Unmarshal(gotBytes, &gotNorm); err != nil {
		t.Fatalf("golden: unmarshal got: %v", err)
	}

	if !reflect.DeepEqual(wantNorm, gotNorm) {
		wantPretty, _ := json.MarshalIndent(wantNorm, "", "  ")
		gotPretty, _ := json.MarshalIndent(gotNorm, "", "  ")
		t.Errorf("golden mismatch for %s\nwant:\n%s\n got:\n%s", path, wantPretty, gotPretty)
	}
}
