package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Minimal TwiML builder for the conference call-control scripts.
// It intentionally avoids any provider SDK dependency; only the verbs needed
// at this adapter boundary are modeled.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlStart struct {
	XMLName xml.Name    `xml:"Start"`
	Stream  twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

type twimlDial struct {
	XMLName    xml.Name        `xml:"Dial"`
	Conference twimlConference `xml:"Conference"`
}

type twimlConference struct {
	StartConferenceOnEnter    string `xml:"startConferenceOnEnter,attr"`
	EndConferenceOnExit       string `xml:"endConferenceOnExit,attr"`
	WaitURL                   string `xml:"waitUrl,attr,omitempty"`
	Record                    string `xml:"record,attr,omitempty"`
	RecordingStatusCallback   string `xml:"recordingStatusCallback,attr,omitempty"`
	Name                      string `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Participant roles for ConferenceScript.
const (
	RoleTarget = "target"
	RoleCaller = "caller"
)

const (
	voiceAlice = "alice"

	holdMusicURL = "http://twimlets.com/holdmusic?Bucket=com.twilio.music.ambient"

	targetGreeting = "Hello! Please hold while we connect your call."
	callerGreeting = "Connecting you now."
	errorMessage   = "Sorry, there was an error connecting your call. Please try again later."
)

// ConferenceScriptParams describes one leg's call-control script.
type ConferenceScriptParams struct {
	Role                 string
	ConferenceName       string
	MediaStreamURL       string
	RecordingCallbackURL string
}

// ConferenceScript renders the script a leg executes when answered: announce,
// open the media stream, then join the conference.
//
// The target joins as a passive participant (the conference survives the leg
// leaving); the caller is the moderator whose arrival starts and whose
// departure ends the conference.
func ConferenceScript(p ConferenceScriptParams) (string, error) {
	if strings.TrimSpace(p.ConferenceName) == "" {
		return "", errors.New("telephony: conference name required")
	}

	var r twimlResponse

	conf := twimlConference{
		Record:                  "record-from-start",
		RecordingStatusCallback: p.RecordingCallbackURL,
		Name:                    p.ConferenceName,
	}

	switch p.Role {
	case RoleTarget:
		r.Verbs = append(r.Verbs, twimlSay{Voice: voiceAlice, Text: targetGreeting})
		conf.StartConferenceOnEnter = "false"
		conf.EndConferenceOnExit = "false"
		conf.WaitURL = holdMusicURL
	case RoleCaller:
		r.Verbs = append(r.Verbs, twimlSay{Voice: voiceAlice, Text: callerGreeting})
		conf.StartConferenceOnEnter = "true"
		conf.EndConferenceOnExit = "true"
	default:
		return "", errors.New("telephony: unknown participant role")
	}

	if p.MediaStreamURL != "" {
		r.Verbs = append(r.Verbs, twimlStart{Stream: twimlStream{URL: p.MediaStreamURL}})
	}
	r.Verbs = append(r.Verbs, twimlDial{Conference: conf})

	return renderTwiML(r)
}

// ErrorScript announces a failure and terminates the leg. A leg must never be
// left silent and un-terminated.
func ErrorScript() string {
	out, err := renderTwiML(twimlResponse{Verbs: []any{
		twimlSay{Voice: voiceAlice, Text: errorMessage},
		twimlHangup{},
	}})
	if err != nil {
		// Static input; encoding cannot fail in practice.
		return xml.Header + "<Response><Hangup/></Response>"
	}
	return out
}

func renderTwiML(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
