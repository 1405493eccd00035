package telephony

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// TwiML document timing constants.
const (
	// DefaultGatherTimeout is how long Twilio waits for input, in seconds.
	// Expiry posts back to the gather callback without digits, which the
	// dispatcher treats the same as an invalid entry.
	DefaultGatherTimeout = 10
	// DefaultSpeechTimeout is the end-of-speech silence detection, in seconds.
	DefaultSpeechTimeout = 3
	// DefaultIdlePause keeps a just-answered outbound call leg open until the
	// dispatcher issues its first instruction.
	DefaultIdlePause = 60
)

func escape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

// sayTwiML renders a final announcement. The document ends after the Say, so
// Twilio tears the call down once the text has been spoken; announcements are
// only used on farewell and closing paths.
func sayTwiML(text string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Say voice="alice">%s</Say></Response>`,
		escape(text))
}

// gatherDigitsTwiML renders a prompt that collects touch-tone digits. The
// trailing Redirect fires when the gather times out with no input, so the
// dispatcher always hears back.
func gatherDigitsTwiML(text, actionURL string, maxDigits int) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Gather input="dtmf" action="%s" method="POST" numDigits="%d" timeout="%d"><Say voice="alice">%s</Say></Gather><Redirect method="POST">%s</Redirect></Response>`,
		escape(actionURL), maxDigits, DefaultGatherTimeout, escape(text), escape(actionURL))
}

// gatherSpeechTwiML renders a prompt that captures a spoken answer.
func gatherSpeechTwiML(text, actionURL string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Gather input="speech" action="%s" method="POST" timeout="%d" speechTimeout="%d"><Say voice="alice">%s</Say></Gather><Redirect method="POST">%s</Redirect></Response>`,
		escape(actionURL), DefaultGatherTimeout, DefaultSpeechTimeout, escape(text), escape(actionURL))
}

// EmptyTwiML is the response returned to Twilio webhooks when the next
// instruction is issued asynchronously through the call update API.
const EmptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response><Pause length="60"/></Response>`
