// Package i18n holds the localized participant-facing copy of the interview
// protocol.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys.
const (
	IntegrityWarningKey     = "interview.integrity.warning"
	IntegrityLookingAwayKey = "interview.integrity.looking_away"
	IntegrityFidgetingKey   = "interview.integrity.fidgeting"
	FocusWarningKey         = "interview.focus.warning"
	CompletedAnsweredKey    = "interview.complete.answered"
	CompletedEndedKey       = "interview.complete.ended"
	AbandonedIntegrityKey   = "interview.abandoned.integrity"
	AbandonedStaleKey       = "interview.abandoned.stale"
	AbandonedNoQuestionsKey = "interview.abandoned.no_questions"
	AbandonedEndedKey       = "interview.abandoned.ended"
	TimeoutSubmittedKey     = "interview.timeout.submitted"
)

var supported = []language.Tag{language.English, language.MustParse("pt-BR")}

var matcher = language.NewMatcher(supported)

// Resolve picks the best supported language. The explicit preference wins
// over the Accept-Language header.
func Resolve(preferred, acceptLanguage string) language.Tag {
	if preferred = strings.TrimSpace(preferred); preferred != "" {
		if tag, err := language.Parse(preferred); err == nil {
			return match(tag)
		}
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	return match(tags...)
}

func match(tags ...language.Tag) language.Tag {
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return language.English
	}
	return supported[idx]
}

// Printer returns a message printer for tag.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}
