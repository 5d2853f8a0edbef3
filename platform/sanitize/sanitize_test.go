package sanitize

import "testing"

func TestTextStripsMarkup(t *testing.T) {
	got := Text("  called <b>twice</b>, &lt;script&gt;alert(1)&lt;/script&gt;  no   answer ", 0)
	if got != "called twice, alert(1) no answer" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestTextTruncatesRunes(t *testing.T) {
	if got := Text("héllo wörld", 5); got != "héllo" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestTextPtr(t *testing.T) {
	if TextPtr(nil, 10) != nil {
		t.Fatal("expected nil for nil input")
	}
	blank := "<br/>"
	if TextPtr(&blank, 10) != nil {
		t.Fatal("expected nil when nothing is left")
	}
	note := " follow up "
	if got := TextPtr(&note, 10); got == nil || *got != "follow up" {
		t.Fatalf("unexpected value %v", got)
	}
}
