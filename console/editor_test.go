package console

import "testing"

func TestEditorInsertAndDelete(t *testing.T) {
	var e lineEditor
	e.InsertString("sell btc")
	if e.String() != "sell btc" || e.cursor != 8 {
		t.Fatalf("editor = %q cursor=%d", e.String(), e.cursor)
	}
	e.Backspace()
	e.Backspace()
	e.Backspace()
	if e.String() != "sell " {
		t.Fatalf("editor = %q", e.String())
	}
	e.MoveStart()
	e.Delete()
	if e.String() != "ell " {
		t.Fatalf("editor = %q", e.String())
	}
}

func TestEditorWordMovement(t *testing.T) {
	var e lineEditor
	e.SetString("cancel order 42")
	e.MoveWordLeft()
	if e.cursor != 13 {
		t.Fatalf("cursor = %d", e.cursor)
	}
	e.MoveWordLeft()
	if e.cursor != 7 {
		t.Fatalf("cursor = %d", e.cursor)
	}
	e.MoveWordRight()
	if e.cursor != 12 {
		t.Fatalf("cursor = %d", e.cursor)
	}
	e.DeleteWordBackward()
	if e.String() != "cancel  42" {
		t.Fatalf("editor = %q", e.String())
	}
}

func TestEditorKillLine(t *testing.T) {
	var e lineEditor
	e.SetString("keep drop")
	e.cursor = 4
	e.KillLineEnd()
	if e.String() != "keep" {
		t.Fatalf("editor = %q", e.String())
	}
	e.SetString("drop keep")
	e.cursor = 5
	e.KillLineStart()
	if e.String() != "keep" || e.cursor != 0 {
		t.Fatalf("editor = %q cursor=%d", e.String(), e.cursor)
	}
}

func TestEditorMultilineMovement(t *testing.T) {
	var e lineEditor
	e.SetString("first line\nsecond")
	// Cursor at end of "second"; up keeps the column.
	if !e.MoveUp() {
		t.Fatalf("expected MoveUp to succeed")
	}
	if e.cursor != 6 {
		t.Fatalf("cursor = %d", e.cursor)
	}
	if !e.MoveDown() {
		t.Fatalf("expected MoveDown to succeed")
	}
	if e.cursor != 17 {
		t.Fatalf("cursor = %d", e.cursor)
	}
	// On the first line there is nothing above.
	e.cursor = 3
	if e.MoveUp() {
		t.Fatalf("MoveUp on first line should report false")
	}
}

func TestEditorLineStartEnd(t *testing.T) {
	var e lineEditor
	e.SetString("one\ntwo three")
	e.cursor = 8 // inside "two three"
	e.MoveStart()
	if e.cursor != 4 {
		t.Fatalf("cursor = %d", e.cursor)
	}
	e.MoveEnd()
	if e.cursor != 13 {
		t.Fatalf("cursor = %d", e.cursor)
	}
}
