package chat

// User-visible texts. Failures are always shown as bot messages.
const (
	TextConnectionProblem = "Es gibt gerade ein Verbindungsproblem. Bitte haben Sie einen Moment Geduld."
	TextNotConnected      = "Chatverbindung nicht hergestellt."
	TextSendFailed        = "Entschuldigung, Ihre Nachricht konnte leider nicht übermittelt werden. Bitte versuchen Sie es später erneut."
	TextCouldNotConnect   = "Die Verbindung zum Chat konnte nicht hergestellt werden. Bitte laden Sie die Seite neu."

	PlaceholderInput = "Ihre Nachricht …"
	PlaceholderFinal = "Der Chat wurde beendet."
)

// FallbackPhrases are shown when a reply takes longer than usual.
var FallbackPhrases = []string{
	"Einen Moment bitte, ich suche die passenden Informationen heraus …",
	"Das dauert gerade etwas länger als gewohnt …",
	"Ich bin gleich so weit, danke für Ihre Geduld …",
	"Ich prüfe das noch kurz für Sie …",
}
