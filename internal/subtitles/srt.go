package subtitles

import (
	"regexp"
	"strings"
)

var (
	srtTimeRe = regexp.MustCompile(`(\d{2}:\d{2}:\d{2}),(\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2}),(\d{3})`)
	cueNumRe  = regexp.MustCompile(`^\d+$`)
)

// SRTtoVTT converts SRT subtitles to WebVTT.
func SRTtoVTT(srt string) string {
	var vtt strings.Builder
	vtt.WriteString("WEBVTT\n\n")
	header := vtt.Len()

	lines := strings.Split(strings.ReplaceAll(srt, "\r\n", "\n"), "\n")
	for _, raw := range lines {
		line := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))

		// cue numbers
		if cueNumRe.MatchString(line) {
			continue
		}
		if line == "" {
			if vtt.Len() > header {
				vtt.WriteString("\n")
			}
			continue
		}
		if srtTimeRe.MatchString(line) {
			vtt.WriteString(srtTimeRe.ReplaceAllString(line, "$1.$2 --> $3.$4"))
			vtt.WriteString("\n")
			continue
		}
		vtt.WriteString(line)
		vtt.WriteString("\n")
	}
	return vtt.String()
}
