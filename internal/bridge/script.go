// ABOUTME: Scripted conversation played by the bridge simulator
// ABOUTME: Receiver turns with captions and the caller replies it echoes back
package bridge

import "time"

// Turn is one receiver utterance
type Turn struct {
	Original   string
	Translated string
	Speech     time.Duration
	Frequency  float64
}

// DefaultScript is a short receiver side conversation
var DefaultScript = []Turn{
	{Original: "Allô, bonjour ?", Translated: "Hello, good morning?", Speech: 1200 * time.Millisecond, Frequency: 220},
	{Original: "Oui, c'est bien moi.", Translated: "Yes, speaking.", Speech: 1500 * time.Millisecond, Frequency: 247},
	{Original: "Je vous écoute, que puis-je faire pour vous ?", Translated: "I'm listening, what can I do for you?", Speech: 2500 * time.Millisecond, Frequency: 262},
	{Original: "D'accord, pas de problème. Bonne journée !", Translated: "Okay, no problem. Have a nice day!", Speech: 2000 * time.Millisecond, Frequency: 233},
}

// callerReplies are the captions attached to echoed caller speech
var callerReplies = []struct {
	Original   string
	Translated string
}{
	{"Hello, is this the right number?", "Bonjour, est-ce le bon numéro ?"},
	{"I'd like to book a table for tonight.", "Je voudrais réserver une table pour ce soir."},
	{"Four people, around eight.", "Quatre personnes, vers vingt heures."},
	{"Thank you, goodbye.", "Merci, au revoir."},
}

// interim returns the first half of text, at a word boundary
func interim(text string) string {
	runes := []rune(text)
	half := len(runes) / 2
	for i := half; i > 0; i-- {
		if runes[i] == ' ' {
			return string(runes[:i])
		}
	}
	return string(runes[:half])
}
