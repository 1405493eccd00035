package telephony

import (
	"strings"
	"testing"
)

func TestEscape(t *testing.T) {
	got := escape(`press "1" & <wait>`)
	if strings.ContainsAny(got, "<>\"") && !strings.Contains(got, "&lt;") {
		t.Errorf("markup not escaped: %q", got)
	}
	if !strings.Contains(got, "&amp;") {
		t.Errorf("ampersand not escaped: %q", got)
	}
}

func TestSayTwiMLEndsDocument(t *testing.T) {
	doc := sayTwiML("Goodbye.")
	if !strings.Contains(doc, "<Say") || !strings.Contains(doc, "Goodbye.") {
		t.Errorf("announcement missing: %q", doc)
	}
	if strings.Contains(doc, "<Pause") {
		t.Errorf("final announcement must let the document end: %q", doc)
	}
}

func TestGatherDigitsTwiML(t *testing.T) {
	doc := gatherDigitsTwiML("Press 1 or 2.", "https://example.com/webhooks/voice/gather", 1)
	for _, want := range []string{`input="dtmf"`, `numDigits="1"`, "Press 1 or 2.", "<Redirect"} {
		if !strings.Contains(doc, want) {
			t.Errorf("gather document missing %q: %q", want, doc)
		}
	}
}

func TestGatherSpeechTwiML(t *testing.T) {
	doc := gatherSpeechTwiML("Describe your symptoms.", "https://example.com/webhooks/voice/gather")
	for _, want := range []string{`input="speech"`, "speechTimeout", "Describe your symptoms.", "<Redirect"} {
		if !strings.Contains(doc, want) {
			t.Errorf("speech gather document missing %q: %q", want, doc)
		}
	}
}
