package telephony

import (
	"strconv"
	"strings"

	"github.com/twilio/twilio-go/twiml"
)

// AnswerInstructions describe what an answered outbound Twilio call hears.
type AnswerInstructions struct {
	Message  string
	Language string

	// PauseSeconds keeps the line open after the message.
	PauseSeconds int
}

// RenderAnswerTwiML maps AnswerInstructions to a TwiML <Response>. With
// nothing to say the call is hung up.
func RenderAnswerTwiML(in AnswerInstructions) (string, error) {
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return twiml.Voice([]twiml.Element{&twiml.VoiceHangup{}})
	}

	verbs := []twiml.Element{&twiml.VoiceSay{Message: msg, Language: in.Language}}
	if in.PauseSeconds > 0 {
		verbs = append(verbs, &twiml.VoicePause{Length: strconv.Itoa(in.PauseSeconds)})
	}
	return twiml.Voice(verbs)
}
