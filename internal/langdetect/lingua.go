package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// DetectISO6391 returns the lowercase ISO 639-1 code of the dominant
// language, or "" when the sample is too short to classify reliably.
// Han-script samples short-circuit to "zh" since single-character words
// defeat the letter-count heuristic.
func DetectISO6391(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	letterCount := 0
	hanCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
		if unicode.Is(unicode.Han, r) {
			hanCount++
		}
	}
	if hanCount >= 2 {
		return "zh"
	}
	if letterCount < 6 {
		return ""
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(
				lingua.Chinese,
				lingua.English,
				lingua.German,
				lingua.French,
				lingua.Japanese,
				lingua.Korean,
			).
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}
