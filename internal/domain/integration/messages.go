package integration

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLanguage for user-facing messages.
var DefaultLanguage = language.Swedish

const reconnectMessageKey = "integration.reconnect_required"

func kindMessageKey(k ErrorKind) string {
	return "integration.error." + string(k)
}

func init() {
	sv := map[string]string{
		kindMessageKey(KindAuth):        "Anslutningen till bokföringssystemet har gått ut. Koppla om integrationen under Inställningar.",
		kindMessageKey(KindPermission):  "Integrationen saknar behörighet för åtgärden. Kontrollera behörigheterna i bokföringssystemet.",
		kindMessageKey(KindNotFound):    "Posten hittades inte i bokföringssystemet. Kontrollera att den inte har tagits bort.",
		kindMessageKey(KindClientInput): "Bokföringssystemet avvisade uppgifterna. Kontrollera verifikationen och försök igen.",
		kindMessageKey(KindRateLimit):   "Bokföringssystemet begränsar antalet anrop just nu. Försök igen om en stund.",
		kindMessageKey(KindTransient):   "Bokföringssystemet svarar inte just nu. Försök igen senare.",
		kindMessageKey(KindTimeout):     "Bokföringssystemet svarade inte i tid. Försök igen senare.",
		reconnectMessageKey:             "Integrationen är frånkopplad. Logga in och anslut bokföringssystemet igen.",
	}
	en := map[string]string{
		kindMessageKey(KindAuth):        "The connection to the accounting system has expired. Reconnect the integration under Settings.",
		kindMessageKey(KindPermission):  "The integration is not allowed to do this. Check its permissions in the accounting system.",
		kindMessageKey(KindNotFound):    "The record was not found in the accounting system. Check that it has not been deleted.",
		kindMessageKey(KindClientInput): "The accounting system rejected the data. Review the voucher and try again.",
		kindMessageKey(KindRateLimit):   "The accounting system is throttling requests. Try again shortly.",
		kindMessageKey(KindTransient):   "The accounting system is unavailable right now. Try again later.",
		kindMessageKey(KindTimeout):     "The accounting system did not answer in time. Try again later.",
		reconnectMessageKey:             "The integration is disconnected. Sign in and connect the accounting system again.",
	}
	for key, msg := range sv {
		_ = message.SetString(language.Swedish, key, msg)
	}
	for key, msg := range en {
		_ = message.SetString(language.English, key, msg)
	}
}

// UserMessage returns the localized message for a kind.
func UserMessage(tag language.Tag, kind ErrorKind) string {
	return message.NewPrinter(matchLanguage(tag)).Sprintf(kindMessageKey(kind))
}

// ReconnectMessage returns the localized "reconnect required" message.
func ReconnectMessage(tag language.Tag) string {
	return message.NewPrinter(matchLanguage(tag)).Sprintf(reconnectMessageKey)
}

// LocalizedMessage returns the user message in the requested language.
func (e *Error) LocalizedMessage(tag language.Tag) string {
	return UserMessage(tag, e.kind)
}

var languageMatcher = language.NewMatcher([]language.Tag{language.Swedish, language.English})

func matchLanguage(tag language.Tag) language.Tag {
	_, idx, _ := languageMatcher.Match(tag)
	if idx == 1 {
		return language.English
	}
	return language.Swedish
}

// ParseAcceptLanguage picks the message language from an Accept-Language header.
func ParseAcceptLanguage(header string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}
	return matchLanguage(tags[0])
}
