package intent

import "strings"

// Weights is the tunable scoring table for the rule stage. The exact numbers
// are empirical; only the bucket-plus-threshold structure is contractual.
type Weights struct {
	Greeting       int // short greeting/closing phrase -> no-search
	Deictic        int // reference word -> reuse
	ExplainMore    int // "explain more" style phrase -> reuse
	PunctOnly      int // punctuation-only input -> reuse
	ShortQuestion  int // very short question-marked input -> reuse
	AmbiguousToken int // known ambiguous short token -> reuse
	QuestionStart  int // "what is"/"how to" pattern -> search
	LessonVocab    int // lesson/video vocabulary -> search
	PolicyVocab    int // regulation/policy vocabulary -> search
	TechDensity    int // technical-term density -> search

	// NoContextReusePenalty dampens the reuse score when there is no prior
	// retrieval context (floored at zero).
	NoContextReusePenalty int

	NoSearchThreshold int
	ReuseThreshold    int
	SearchThreshold   int
}

// DefaultWeights returns the tuned defaults.
func DefaultWeights() Weights {
	return Weights{
		Greeting:       3,
		Deictic:        2,
		ExplainMore:    3,
		PunctOnly:      3,
		ShortQuestion:  2,
		AmbiguousToken: 2,
		QuestionStart:  3,
		LessonVocab:    2,
		PolicyVocab:    2,
		TechDensity:    1,

		NoContextReusePenalty: 2,

		NoSearchThreshold: 3,
		ReuseThreshold:    3,
		SearchThreshold:   3,
	}
}

var greetingPhrases = []string{
	"hello", "hi", "hey", "yo", "good morning", "good afternoon",
	"good evening", "good night", "thanks", "thank you", "thx",
	"bye", "goodbye", "see you", "ok", "okay", "great", "nice", "cool",
}

var deicticWords = []string{
	"this", "that", "these", "those", "it", "them",
	"above", "previous", "earlier", "before", "again", "same",
}

var explainMorePhrases = []string{
	"explain more", "tell me more", "more about", "more detail",
	"more details", "elaborate", "continue", "go on", "keep going",
	"expand on", "what else", "and then", "give me an example",
	"for example", "simpler", "in other words", "rephrase", "summarize that",
}

// Short tokens that carry no retrieval signal on their own.
var ambiguousTokens = []string{
	"why", "how", "what", "when", "where", "who",
	"really", "and", "so", "then", "huh", "eh",
}

var questionStarts = []string{
	"what is", "what are", "what does", "how to", "how do", "how does",
	"how can", "define", "definition of", "difference between",
	"compare", "list", "give me", "show me", "explain the", "explain a",
	"explain what", "explain how",
}

var lessonVocab = []string{
	"lesson", "lecture", "video", "chapter", "slide", "slides",
	"course", "module", "unit", "exercise", "assignment", "homework",
	"quiz", "flashcard", "syllabus", "notebook", "document", "file", "pdf",
}

var policyVocab = []string{
	"policy", "regulation", "rule", "rules", "law", "requirement",
	"deadline", "exam", "grading", "grade", "credit", "attendance",
	"plagiarism", "procedure", "guideline",
}

// scores holds the three accumulated bucket scores. All non-negative.
type scores struct {
	noSearch int
	reuse    int
	search   int
}

// scoreMessage runs the rule tables over the normalized message and returns
// the bucket scores. Pure; no I/O.
func (w Weights) scoreMessage(normalized string, hasPriorContext bool) scores {
	var s scores
	ws := words(normalized)
	wordCount := len(ws)

	// Punctuation-only input ("???", "!!") means "say more about the last
	// thing", which is a reuse signal.
	if normalized != "" && wordCount == 1 && strings.Trim(normalized, "?!") == "" {
		s.reuse += w.PunctOnly
	}

	for _, p := range greetingPhrases {
		if matchPhrase(normalized, ws, p) {
			s.noSearch += w.Greeting
			break
		}
	}

	for _, d := range deicticWords {
		if containsWord(ws, d) {
			s.reuse += w.Deictic
			break
		}
	}

	for _, p := range explainMorePhrases {
		if strings.Contains(normalized, p) {
			s.reuse += w.ExplainMore
			break
		}
	}

	// Very short question-marked input ("why?", "and that?") leans on prior
	// context rather than fresh retrieval.
	if strings.HasSuffix(normalized, "?") && wordCount <= 3 && wordCount > 0 {
		s.reuse += w.ShortQuestion
	}

	if wordCount >= 1 && wordCount <= 2 {
		bare := strings.Trim(ws[0], "?!")
		for _, tok := range ambiguousTokens {
			if bare == tok {
				s.reuse += w.AmbiguousToken
				break
			}
		}
	}

	for _, q := range questionStarts {
		if strings.HasPrefix(normalized, q+" ") || normalized == q {
			s.search += w.QuestionStart
			break
		}
	}

	for _, v := range lessonVocab {
		if containsWord(ws, v) {
			s.search += w.LessonVocab
			break
		}
	}

	for _, v := range policyVocab {
		if containsWord(ws, v) {
			s.search += w.PolicyVocab
			break
		}
	}

	if techDensity(ws) {
		s.search += w.TechDensity
	}

	// Reuse is meaningless without context to reuse.
	if !hasPriorContext {
		s.reuse -= w.NoContextReusePenalty
		if s.reuse < 0 {
			s.reuse = 0
		}
	}

	return s
}

// matchPhrase matches a greeting either as the whole message or as a leading
// phrase of a very short one ("hi there").
func matchPhrase(normalized string, ws []string, phrase string) bool {
	trimmed := strings.TrimRight(normalized, "?! ")
	if trimmed == phrase {
		return true
	}
	return len(ws) <= 3 && strings.HasPrefix(trimmed, phrase+" ")
}

func containsWord(ws []string, word string) bool {
	for _, w := range ws {
		if strings.Trim(w, "?!") == word {
			return true
		}
	}
	return false
}

// techDensity reports whether long or digit-bearing terms make up more than
// a third of the message. Dense technical wording usually needs retrieval.
func techDensity(ws []string) bool {
	if len(ws) < 3 {
		return false
	}
	tech := 0
	for _, w := range ws {
		w = strings.Trim(w, "?!")
		if len(w) >= 9 || strings.ContainsAny(w, "0123456789") {
			tech++
		}
	}
	return float64(tech)/float64(len(ws)) > 0.34
}
