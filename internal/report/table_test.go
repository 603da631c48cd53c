package report

import "testing"

func TestTextTableAlignsColumns(t *testing.T) {
	tbl := newTextTable("Name", "Minutes", "Ratio").alignRight(1, 2)
	tbl.add("Ada", "125", "0.3")
	tbl.add("Grace Hopper", "7", "1")

	lines := tbl.lines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Name         Minutes Ratio" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "Ada              125   0.3" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "Grace Hopper       7     1" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestTextTableWideRunes(t *testing.T) {
	tbl := newTextTable("Name", "Group")
	tbl.add("李雷", "A")
	tbl.add("Bo", "B")

	lines := tbl.lines()
	if lines[1] != "李雷 A" {
		t.Fatalf("unexpected wide row: %q", lines[1])
	}
	if lines[2] != "Bo   B" {
		t.Fatalf("unexpected narrow row: %q", lines[2])
	}
}
