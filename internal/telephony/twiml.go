package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It avoids any provider SDK dependency; only the verbs placed calls need are modelled.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlStart struct {
	XMLName xml.Name    `xml:"Start"`
	Stream  twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL   string `xml:"url,attr"`
	Track string `xml:"track,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// RenderSay returns TwiML that speaks message and hangs up. A non-empty streamURL first forks the
// callee's audio to that websocket, where start frames carry the call sid.
func RenderSay(message, voice, language, streamURL string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("telephony: message required for say")
	}
	var verbs []any
	if streamURL != "" {
		verbs = append(verbs, twimlStart{Stream: twimlStream{URL: streamURL, Track: "inbound_track"}})
	}
	verbs = append(verbs,
		twimlSay{Voice: voice, Language: language, Text: message},
		twimlHangup{},
	)
	r := twimlResponse{Verbs: verbs}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
