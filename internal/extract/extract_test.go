package extract

import (
	"strings"
	"testing"
)

const sampleReply = `Great, let's try a coding exercise.

[CODING_QUESTION_START]
**Problem Title:** Two Sum
**Description:** Given an array of integers and a target, return the indices
of the two numbers that add up to the target.
**Example:** nums = [2, 7, 11, 15], target = 9 -> [0, 1]
**Constraints:** Exactly one valid answer exists.
**Starter Code:**
` + "```python\ndef two_sum(nums, target):\n    pass\n```" + `
[CODING_QUESTION_END]

Take your time and talk me through your approach.`

func TestNormalizeLanguage(t *testing.T) {
	cases := []struct{ in, want string }{
		{"C++", "cpp"},
		{"c++", "cpp"},
		{"cpp", "cpp"},
		{"C#", "csharp"},
		{"js", "javascript"},
		{"TS", "typescript"},
		{"py", "python"},
		{"Python", "python"},
		{" Go ", "go"},
		{"rust", "rust"},
	}
	for _, tc := range cases {
		if got := NormalizeLanguage(tc.in); got != tc.want {
			t.Fatalf("NormalizeLanguage(%q) = %q, want %q", tc.in, got, tc.want)
		}
		// Canonical output must map to itself.
		if got := NormalizeLanguage(NormalizeLanguage(tc.in)); got != tc.want {
			t.Fatalf("NormalizeLanguage not idempotent for %q", tc.in)
		}
	}
}

func TestCommentToken(t *testing.T) {
	cases := []struct{ lang, want string }{
		{"python", "#"},
		{"ruby", "#"},
		{"perl", "#"},
		{"javascript", "//"},
		{"cpp", "//"},
		{"", "//"},
	}
	for _, tc := range cases {
		if got := CommentToken(tc.lang); got != tc.want {
			t.Fatalf("CommentToken(%q) = %q, want %q", tc.lang, got, tc.want)
		}
	}
}

func TestParseFullBlock(t *testing.T) {
	q, ok := Parse(sampleReply, "javascript")
	if !ok {
		t.Fatalf("expected a question block")
	}
	if q.Title != "Two Sum" {
		t.Fatalf("title = %q", q.Title)
	}
	if !strings.Contains(q.Description, "indices") {
		t.Fatalf("description = %q", q.Description)
	}
	if !strings.Contains(q.Example, "target = 9") {
		t.Fatalf("example = %q", q.Example)
	}
	if q.Constraints != "Exactly one valid answer exists." {
		t.Fatalf("constraints = %q", q.Constraints)
	}
	if q.Language != "python" {
		t.Fatalf("fence tag must win over fallback, got %q", q.Language)
	}
	if !strings.HasPrefix(q.Starter, "def two_sum") {
		t.Fatalf("starter = %q", q.Starter)
	}
}

func TestParseFallbackLanguage(t *testing.T) {
	reply := "[CODING_QUESTION_START]\n**Problem Title:** FizzBuzz\n```\nfunction fizzbuzz() {}\n```\n[CODING_QUESTION_END]"
	q, ok := Parse(reply, "JS")
	if !ok {
		t.Fatalf("expected a question block")
	}
	if q.Language != "javascript" {
		t.Fatalf("expected normalized fallback language, got %q", q.Language)
	}
}

func TestParseRejectsPlainReplies(t *testing.T) {
	if _, ok := Parse("Tell me about your last project.", "python"); ok {
		t.Fatalf("plain reply must not parse")
	}
	// Block without a fenced snippet is not actionable.
	if _, ok := Parse("[CODING_QUESTION_START]just prose[CODING_QUESTION_END]", "python"); ok {
		t.Fatalf("block without starter code must not parse")
	}
}

func TestEditorBufferPythonComments(t *testing.T) {
	q, ok := Parse(sampleReply, "python")
	if !ok {
		t.Fatalf("expected a question block")
	}
	buf := q.EditorBuffer()
	if !strings.HasPrefix(buf, "# Two Sum") {
		t.Fatalf("expected python comment header, got %q", buf[:min(len(buf), 40)])
	}
	if strings.Contains(buf, "//") {
		t.Fatalf("no slash comments in a python buffer:\n%s", buf)
	}
	if !strings.HasSuffix(buf, "def two_sum(nums, target):\n    pass") {
		t.Fatalf("starter must close the buffer:\n%s", buf)
	}
	// Multi-line description lines each carry the comment token.
	for _, line := range strings.Split(buf, "\n") {
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "def") || strings.HasPrefix(line, "    ") {
			continue
		}
		t.Fatalf("uncommented metadata line %q", line)
	}
}

func TestSpeakableStripsBlockAndCode(t *testing.T) {
	got := Speakable(sampleReply)
	if strings.Contains(got, "CODING_QUESTION") || strings.Contains(got, "two_sum") || strings.Contains(got, "**") {
		t.Fatalf("speakable text still carries markup: %q", got)
	}
	if !strings.Contains(got, "coding exercise") || !strings.Contains(got, "talk me through") {
		t.Fatalf("surrounding prose must survive: %q", got)
	}
}

func TestSpeakablePlainReplyVerbatim(t *testing.T) {
	in := "What interests you about this role?"
	if got := Speakable(in); got != in {
		t.Fatalf("plain reply must pass through, got %q", got)
	}
}

func TestSpeakableFallsBackToAck(t *testing.T) {
	in := "[CODING_QUESTION_START]\n```python\npass\n```\n[CODING_QUESTION_END]"
	if got := Speakable(in); got != GenericAck {
		t.Fatalf("expected generic ack, got %q", got)
	}
}
