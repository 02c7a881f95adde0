package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, IntegrityWarningKey, "%s Warning %d of %d.")
	message.SetString(lang, IntegrityLookingAwayKey, "Please keep your face in view and look at the camera.")
	message.SetString(lang, IntegrityFidgetingKey, "Please try to stay still while answering.")
	message.SetString(lang, FocusWarningKey, "You left the interview window (%d). Please stay on this tab.")
	message.SetString(lang, CompletedAnsweredKey, "Interview complete. Your report is ready.")
	message.SetString(lang, CompletedEndedKey, "Interview ended early. Your report covers the questions you answered.")
	message.SetString(lang, AbandonedIntegrityKey, "The interview was ended after repeated integrity warnings.")
	message.SetString(lang, AbandonedStaleKey, "The interview expired after a long period of inactivity.")
	message.SetString(lang, AbandonedNoQuestionsKey, "No more questions are available for this interview.")
	message.SetString(lang, AbandonedEndedKey, "The interview was ended before any answer was recorded.")
	message.SetString(lang, TimeoutSubmittedKey, "Time is up. Your answer was submitted automatically.")
}
