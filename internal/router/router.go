// Package router decides which worker a free-text command goes to.
package router

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bkonkle/taskdeck/internal/roster"
)

// Names may use any letter or digit, not just ASCII.
const nameClass = `[\p{L}\p{N}_-]`

var (
	mentionPattern = regexp.MustCompile(`@(` + nameClass + `+)`)

	// A greeting word followed by a name at the start of the text.
	greetingPattern = regexp.MustCompile(`(?i)^\s*(?:hi|hello|hey|hiya|yo|howdy|greetings)[\s,]+@?(` + nameClass + `+)`)
)

// Decision is the result of routing a command.
type Decision struct {
	// Target is the worker that receives the command.
	Target roster.Worker

	// Mentioned lists the distinct roster workers identified in the text, in
	// order of first appearance.
	Mentioned []roster.Worker

	// Direct is true when exactly one worker was identified and the command
	// bypasses the orchestrator.
	Direct bool
}

// Mentions returns every @name token in the text, including names that are
// not on any roster. An @ directly after a letter, digit or underscore is not
// a mention, so "a@b.com" yields nothing.
func Mentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatchIndex(text, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if m[0] > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:m[0]])
			if isWordRune(prev) {
				continue
			}
		}
		names = append(names, text[m[2]:m[3]])
	}
	return names
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Greeting returns the name addressed by a leading greeting such as
// "hello rex", if any.
func Greeting(text string) (string, bool) {
	m := greetingPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Identify returns the distinct roster workers addressed by the text.
// Unmatched @words are ignored.
func Identify(text string, r *roster.Roster) []roster.Worker {
	seen := make(map[string]bool)
	var workers []roster.Worker
	add := func(name string) {
		w, ok := r.Lookup(name)
		if !ok || seen[w.ID] {
			return
		}
		seen[w.ID] = true
		workers = append(workers, w)
	}

	for _, name := range Mentions(text) {
		add(name)
	}
	if name, ok := Greeting(text); ok {
		add(name)
	}
	return workers
}

// Route picks the target worker for text. A single identified worker gets
// the command directly; zero or several go to the orchestrator.
func Route(text string, r *roster.Roster) Decision {
	mentioned := Identify(text, r)
	if len(mentioned) == 1 {
		return Decision{Target: mentioned[0], Mentioned: mentioned, Direct: true}
	}
	return Decision{Target: r.Orchestrator(), Mentioned: mentioned}
}

// Describe renders the decision for display.
func (d Decision) Describe() string {
	if d.Direct {
		return "→ " + d.Target.Nickname
	}
	if len(d.Mentioned) == 0 {
		return "→ " + d.Target.Nickname + " (orchestrator, no worker named)"
	}
	names := make([]string, len(d.Mentioned))
	for i, w := range d.Mentioned {
		names[i] = w.Nickname
	}
	return "→ " + d.Target.Nickname + " (orchestrator, for " + strings.Join(names, ", ") + ")"
}
