package voice

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/twilio/twilio-go/twiml"
)

const (
	sayVoice    = "alice"
	sayRate     = "slow"
	sayLanguage = "en-US"
)

const (
	repeatNotice   = "I will repeat this message."
	confirmPrompt  = "Press any key to confirm you received this alert."
	confirmedReply = "Thank you. Alert confirmed. Goodbye."
	noResponse     = "No response received. Please check your servers immediately. Goodbye."
)

func spoken(text string) *twiml.VoiceSay {
	return &twiml.VoiceSay{
		Voice:              sayVoice,
		Language:           sayLanguage,
		Message:            text,
		OptionalAttributes: map[string]string{"rate": sayRate},
	}
}

// plain is spoken without a language attribute.
func plain(text string) *twiml.VoiceSay {
	return &twiml.VoiceSay{
		Voice:              sayVoice,
		Message:            text,
		OptionalAttributes: map[string]string{"rate": sayRate},
	}
}

func pause(seconds int) *twiml.VoicePause {
	return &twiml.VoicePause{Length: strconv.Itoa(seconds)}
}

// TwiML renders the call instructions: the message twice, then a one key
// confirmation with a final warning when nothing is pressed.
func TwiML(message string, gatherTimeout time.Duration) (string, error) {
	doc, err := twiml.Voice([]twiml.Element{
		spoken(message),
		pause(3),
		spoken(repeatNotice),
		pause(1),
		spoken(message),
		pause(2),
		spoken(confirmPrompt),
		&twiml.VoiceGather{
			Input:         "dtmf",
			Timeout:       strconv.Itoa(int(gatherTimeout / time.Second)),
			NumDigits:     "1",
			InnerElements: []twiml.Element{plain(confirmedReply)},
		},
		plain(noResponse),
	})
	if err != nil {
		return "", errors.WithStack(err)
	}
	return doc, nil
}
