package vm

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAsLibraryRoundTrip(t *testing.T) {
	funcs := []libraryFunction{
		{name: "square", body: []byte{1, 2, 3}},
		{name: "add_one", body: []byte{4, 5}},
	}
	var buf bytes.Buffer
	if err := WriteAsLibrary(&buf, funcs); err != nil {
		t.Fatal(err)
	}

	body, err := findLibraryFunction(buf.Bytes(), "square")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, []byte{1, 2, 3}) {
		t.Fatalf("square body = %v, want [1 2 3]", body)
	}
	body, err = findLibraryFunction(buf.Bytes(), "add_one")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, []byte{4, 5}) {
		t.Fatalf("add_one body = %v, want [4 5]", body)
	}
}

// TestWriteAsLibrarySortsByOffsetNotName gives the alphabetically-first
// function the highest offset; a name-sorted table would read back the wrong
// bytes for it.
func TestWriteAsLibrarySortsByOffsetNotName(t *testing.T) {
	funcs := []libraryFunction{
		{name: "zebra", offset: 0, body: []byte{1, 1}},
		{name: "alpha", offset: 2, body: []byte{2, 2, 2}},
	}
	var buf bytes.Buffer
	if err := WriteAsLibrary(&buf, funcs); err != nil {
		t.Fatal(err)
	}

	_, entries, err := readLibraryTable(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].name != "zebra" || entries[1].name != "alpha" {
		t.Fatalf("table order = %v, want zebra before alpha (ascending offset)", entries)
	}

	body, err := findLibraryFunction(buf.Bytes(), "zebra")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, []byte{1, 1}) {
		t.Fatalf("zebra body = %v, want [1 1]", body)
	}
	body, err = findLibraryFunction(buf.Bytes(), "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, []byte{2, 2, 2}) {
		t.Fatalf("alpha body = %v, want [2 2 2]", body)
	}
}

func TestFindLibraryFunctionMissing(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAsLibrary(&buf, []libraryFunction{{name: "only", body: []byte{9}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := findLibraryFunction(buf.Bytes(), "missing"); err == nil {
		t.Fatal("expected an error for a function absent from the table")
	}
}

func TestRelocateBodyShiftsCallAndJmpLiterals(t *testing.T) {
	p, err := AssembleProgram(strings.NewReader("lib_main:\n\tjmp .here\n.here\n\texit\n"))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	for _, ins := range p.instructions {
		if _, err := ins.WriteTo(&buf); err != nil {
			t.Fatal(err)
		}
	}
	originalTarget := p.labels["here"]

	relocated, err := relocateBody(buf.Bytes(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if relocated[0] != byte(OpJmp) {
		t.Fatalf("relocated body does not start with a jmp opcode: %v", relocated)
	}
	decoded, err := ReadOperand(bytes.NewReader(relocated[1:]))
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Literal.Value != originalTarget+100 {
		t.Fatalf("relocated jmp target = %d, want %d", decoded.Literal.Value, originalTarget+100)
	}
}

func TestDependencyResolverReadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := WriteAsLibrary(&buf, []libraryFunction{{name: "helper", body: []byte{byte(OpExit)}}}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "mathlib.dat"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	resolver := newDependencyResolver(dir)
	body, err := resolver.functionBody("mathlib::helper")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, []byte{byte(OpExit)}) {
		t.Fatalf("body = %v, want [%d]", body, byte(OpExit))
	}

	if _, ok := resolver.files["mathlib"]; !ok {
		t.Fatal("expected the library bytes to be cached after the first read")
	}
}

func TestSplitDependencyFunctionRejectsMalformedRef(t *testing.T) {
	if _, _, ok := splitDependencyFunction("nocolon"); ok {
		t.Fatal("expected a plain name without :: to be rejected")
	}
}
