package extract

import (
	"regexp"
	"strings"
)

// Markers the interviewer agent wraps an embedded coding question with.
const (
	QuestionStart = "[CODING_QUESTION_START]"
	QuestionEnd   = "[CODING_QUESTION_END]"
)

// GenericAck is spoken when a reply has nothing speakable left after filtering.
const GenericAck = "I've updated the code editor. Please take a look."

var (
	questionRe    = regexp.MustCompile(`(?s)\[CODING_QUESTION_START\](.*?)\[CODING_QUESTION_END\]`)
	fenceRe       = regexp.MustCompile("(?s)```(\\w+)?[ \\t]*\\n?(.*?)```")
	boldRe        = regexp.MustCompile(`\*\*(.*?)\*\*`)
	titleRe       = regexp.MustCompile(`\*\*Problem Title:\*\*[ \t]*(.+)`)
	descRe        = regexp.MustCompile("(?s)\\*\\*Description:\\*\\*[ \\t]*(.*?)(?:\\*\\*Example:|```)")
	exampleRe     = regexp.MustCompile("(?s)\\*\\*Example:\\*\\*[ \\t]*(.*?)(?:\\*\\*Constraints:|```)")
	constraintsRe = regexp.MustCompile("(?s)\\*\\*Constraints:\\*\\*[ \\t]*(.*?)(?:\\*\\*Starter Code:|```)")
)

// CodingQuestion is the structured content of one embedded question block.
type CodingQuestion struct {
	Title       string
	Description string
	Example     string
	Constraints string
	Starter     string
	Language    string // canonical tag, see NormalizeLanguage
}

// NormalizeLanguage folds common language-tag aliases into the canonical set
// used for editor syntax mode and comment-token selection. It is idempotent:
// an already-canonical tag maps to itself.
func NormalizeLanguage(tag string) string {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "c++", "cpp":
		return "cpp"
	case "c#", "csharp":
		return "csharp"
	case "js", "javascript":
		return "javascript"
	case "ts", "typescript":
		return "typescript"
	case "py", "python":
		return "python"
	default:
		return strings.ToLower(strings.TrimSpace(tag))
	}
}

// CommentToken returns the line-comment token for a canonical language tag.
func CommentToken(lang string) string {
	switch lang {
	case "python", "ruby", "perl":
		return "#"
	default:
		return "//"
	}
}

// Parse locates the coding question block in an agent reply. The second return
// is false when the reply carries no block or no fenced starter snippet, in
// which case the extractor is a no-op for this reply. fallbackLang is the
// session's preferred language, used when the fence has no tag.
func Parse(reply, fallbackLang string) (CodingQuestion, bool) {
	block := questionRe.FindStringSubmatch(reply)
	if block == nil {
		return CodingQuestion{}, false
	}
	content := block[1]

	fence := fenceRe.FindStringSubmatch(content)
	if fence == nil {
		return CodingQuestion{}, false
	}
	lang := fence[1]
	if lang == "" {
		lang = fallbackLang
	}

	q := CodingQuestion{
		Starter:  strings.TrimSpace(fence[2]),
		Language: NormalizeLanguage(lang),
	}
	if m := titleRe.FindStringSubmatch(content); m != nil {
		q.Title = strings.TrimSpace(m[1])
	}
	if m := descRe.FindStringSubmatch(content); m != nil {
		q.Description = strings.TrimSpace(m[1])
	}
	if m := exampleRe.FindStringSubmatch(content); m != nil {
		q.Example = strings.TrimSpace(m[1])
	}
	if m := constraintsRe.FindStringSubmatch(content); m != nil {
		q.Constraints = strings.TrimSpace(m[1])
	}
	return q, true
}

// EditorBuffer renders the question metadata as line comments above the
// starter snippet, producing the initial editor content.
func (q CodingQuestion) EditorBuffer() string {
	prefix := CommentToken(q.Language)
	var b strings.Builder
	if q.Title != "" {
		b.WriteString(prefix + " " + q.Title + "\n" + prefix + "\n")
	}
	if q.Description != "" {
		b.WriteString(prefix + " " + commentContinuation(q.Description, prefix) + "\n" + prefix + "\n")
	}
	if q.Example != "" {
		b.WriteString(prefix + " Example:\n" + prefix + " " + commentContinuation(q.Example, prefix) + "\n" + prefix + "\n")
	}
	if q.Constraints != "" {
		b.WriteString(prefix + " Constraints:\n" + prefix + " " + commentContinuation(q.Constraints, prefix) + "\n\n")
	}
	b.WriteString(q.Starter)
	return b.String()
}

func commentContinuation(text, prefix string) string {
	return strings.ReplaceAll(text, "\n", "\n"+prefix+" ")
}

// Speakable filters an agent reply down to the text worth synthesizing:
// the coding question block, fenced code, and bold markers are removed.
// Returns GenericAck when nothing speakable remains.
func Speakable(reply string) string {
	text := questionRe.ReplaceAllString(reply, "")
	text = fenceRe.ReplaceAllString(text, "")
	text = boldRe.ReplaceAllString(text, "$1")
	if strings.TrimSpace(text) == "" {
		return GenericAck
	}
	return text
}
