package kiosk

import (
	"log"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Announcer delivers recognition feedback to the person at the kiosk.
// Implementations wrap whatever the host device offers (speaker, display);
// the runtime only knows this interface.
type Announcer interface {
	Announce(name, message string)
}

// SpokenName removes diacritical marks from a display name so downstream
// TTS engines with ASCII-only voices pronounce it (e.g., "Jiří" -> "Jiri").
func SpokenName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, name)
	return result
}

// LogAnnouncer writes announcements to the process log. It is the default
// on hosts without an audio path and keeps tests quiet about hardware.
type LogAnnouncer struct{}

// Announce implements Announcer.
func (LogAnnouncer) Announce(name, message string) {
	if name == "" {
		log.Printf("announce: %s", message)
		return
	}
	log.Printf("announce: %s, %s", SpokenName(name), message)
}
