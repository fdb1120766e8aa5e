package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/m3rciful/rawbook/internal/domain"
)

const (
	// maxMessageUnits is the Bot API limit for sendMessage text, counted in
	// UTF-16 code units like message entity offsets.
	maxMessageUnits = 4096
	maxListedRaws   = 10
)

const (
	textCommandNotUpdated = "nothing to update: commands cannot be updated"
	textNothingChanged    = "nothing to update: everything is already saved"
	textNothingToBuild    = "nothing to build a book from"
	textNothingToClear    = "all good, nothing to clear"
)

func textUpdated(raw domain.Raw) string {
	return capText("updated: " + raw.Summary())
}

func textBookCreated(book domain.Book, raws []domain.Raw) string {
	return capText(fmt.Sprintf("created book %s from %d raws:\n%s", book.ID, len(raws), listRaws(raws)))
}

func textCleared(raws []domain.Raw) string {
	return capText(fmt.Sprintf("cleared %d raws:\n%s", len(raws), listRaws(raws)))
}

func textFind(query string) string {
	return capText(fmt.Sprintf("search complete: you searched for %q, but search is not available yet", query))
}

func textSavedText(text string, id uuid.UUID) string {
	return capText(fmt.Sprintf("got text: %s, saved as raw text %s", text, id))
}

func textSavedPhoto(caption string, photo models.PhotoSize, id uuid.UUID) string {
	return capText(fmt.Sprintf("got photo %q\n\n%s\n\nsaved as raw photo %s", caption, photoJSON(photo), id))
}

func photoJSON(p models.PhotoSize) string {
	data, err := json.Marshal(p)
	if err != nil {
		return p.FileID
	}
	return string(data)
}

// listRaws renders one line per raw, truncated after maxListedRaws entries.
func listRaws(raws []domain.Raw) string {
	var b strings.Builder
	for i, r := range raws {
		if i > 0 {
			b.WriteByte('\n')
		}
		if i == maxListedRaws {
			fmt.Fprintf(&b, "… and %d more", len(raws)-maxListedRaws)
			break
		}
		b.WriteString(r.Summary())
	}
	return b.String()
}

func capText(s string) string {
	if utf16Len(s) <= maxMessageUnits {
		return s
	}
	units := 0
	for i, r := range s {
		units += utf16.RuneLen(r)
		if units > maxMessageUnits-1 {
			return s[:i] + "…"
		}
	}
	return s
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
