package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.MustParse("pt-BR")

	message.SetString(lang, IntegrityWarningKey, "%s Aviso %d de %d.")
	message.SetString(lang, IntegrityLookingAwayKey, "Mantenha o rosto visível e olhe para a câmera.")
	message.SetString(lang, IntegrityFidgetingKey, "Tente ficar parado enquanto responde.")
	message.SetString(lang, FocusWarningKey, "Você saiu da janela da entrevista (%d). Permaneça nesta aba.")
	message.SetString(lang, CompletedAnsweredKey, "Entrevista concluída. Seu relatório está pronto.")
	message.SetString(lang, CompletedEndedKey, "Entrevista encerrada antes do fim. O relatório cobre as perguntas respondidas.")
	message.SetString(lang, AbandonedIntegrityKey, "A entrevista foi encerrada após avisos repetidos de integridade.")
	message.SetString(lang, AbandonedStaleKey, "A entrevista expirou após um longo período de inatividade.")
	message.SetString(lang, AbandonedNoQuestionsKey, "Não há mais perguntas disponíveis para esta entrevista.")
	message.SetString(lang, AbandonedEndedKey, "A entrevista foi encerrada antes de qualquer resposta.")
	message.SetString(lang, TimeoutSubmittedKey, "O tempo acabou. Sua resposta foi enviada automaticamente.")
}
