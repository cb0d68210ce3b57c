// Package tag implements the inline marker protocol used by the chat stream.
// Markers are delimited spans embedded in the same byte stream as generated
// prose: error markers attribute a failure to a service, info markers narrate
// tool progress and image markers carry a generated-image URL. A carriage
// return is the clear signal that retires the most recent info marker.
package tag

import "strings"

const (
	errorOpen  = "<t3-error>"
	errorClose = "</t3-error>"
	infoOpen   = "<t3-init-tool>"
	infoClose  = "</t3-init-tool>"
	imageOpen  = "<t3-image>"
	imageClose = "</t3-image>"
)

// Clear is the signal that removes the most recent still-visible info marker.
const Clear = "\r"

type (
	// SegmentKind discriminates decoded segments.
	SegmentKind string

	// Segment is one decoded piece of a finished stream: plain prose or one
	// of the marker kinds with its payload extracted.
	Segment struct {
		Kind SegmentKind
		// Text holds prose for SegmentProse and the note for SegmentInfo.
		Text string
		// Service and Message are set for SegmentError.
		Service string
		Message string
		// URL is set for SegmentImage.
		URL string
	}
)

const (
	// SegmentProse is plain generated text.
	SegmentProse SegmentKind = "prose"
	// SegmentError is a decoded error marker.
	SegmentError SegmentKind = "error"
	// SegmentInfo is a decoded info marker.
	SegmentInfo SegmentKind = "info"
	// SegmentImage is a decoded image marker.
	SegmentImage SegmentKind = "image"
)

// Error encodes an error marker attributing message to service.
func Error(service, message string) string {
	return errorOpen + service + ": " + message + errorClose
}

// Info encodes an info marker carrying a progress note.
func Info(note string) string {
	return infoOpen + note + infoClose
}

// Image encodes a result marker carrying a URL. The URL is embedded verbatim.
func Image(url string) string {
	return imageOpen + url + imageClose
}

// Decode splits a finished stream into prose and marker segments. Clear
// signals are applied: each one removes the most recent info segment decoded
// so far. Unterminated or otherwise malformed spans pass through as literal
// prose. Decode never fails.
func Decode(s string) []Segment {
	var segs []Segment
	for len(s) > 0 {
		open, kind := nextOpen(s)
		if open < 0 {
			segs = appendProse(segs, s)
			break
		}
		segs = appendProse(segs, s[:open])
		s = s[open:]
		if kind == SegmentProse { // clear signal
			segs = dropLastInfo(segs)
			s = s[len(Clear):]
			continue
		}
		var oTok, cTok string
		switch kind {
		case SegmentError:
			oTok, cTok = errorOpen, errorClose
		case SegmentInfo:
			oTok, cTok = infoOpen, infoClose
		case SegmentImage:
			oTok, cTok = imageOpen, imageClose
		}
		end := strings.Index(s[len(oTok):], cTok)
		if end < 0 {
			// Unterminated span, keep it as literal prose.
			segs = appendProse(segs, s)
			break
		}
		payload := s[len(oTok) : len(oTok)+end]
		switch kind {
		case SegmentError:
			service, message, ok := strings.Cut(payload, ": ")
			if !ok {
				service, message = "", payload
			}
			segs = append(segs, Segment{Kind: SegmentError, Service: service, Message: message})
		case SegmentInfo:
			segs = append(segs, Segment{Kind: SegmentInfo, Text: payload})
		case SegmentImage:
			segs = append(segs, Segment{Kind: SegmentImage, URL: payload})
		}
		s = s[len(oTok)+end+len(cTok):]
	}
	return segs
}

// nextOpen locates the earliest marker opening or clear signal in s. A
// SegmentProse kind marks a clear signal.
func nextOpen(s string) (int, SegmentKind) {
	best, kind := -1, SegmentProse
	for _, c := range []struct {
		tok string
		k   SegmentKind
	}{
		{errorOpen, SegmentError},
		{infoOpen, SegmentInfo},
		{imageOpen, SegmentImage},
		{Clear, SegmentProse},
	} {
		if i := strings.Index(s, c.tok); i >= 0 && (best < 0 || i < best) {
			best, kind = i, c.k
		}
	}
	return best, kind
}

func appendProse(segs []Segment, text string) []Segment {
	if text == "" {
		return segs
	}
	if n := len(segs); n > 0 && segs[n-1].Kind == SegmentProse {
		segs[n-1].Text += text
		return segs
	}
	return append(segs, Segment{Kind: SegmentProse, Text: text})
}

func dropLastInfo(segs []Segment) []Segment {
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i].Kind == SegmentInfo {
			return append(segs[:i], segs[i+1:]...)
		}
	}
	return segs
}
