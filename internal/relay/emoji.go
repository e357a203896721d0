package relay

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// emojiToken matches LINE emoji placeholders such as "$happy$".
var emojiToken = regexp.MustCompile(`\$[A-Za-z0-9_]{1,32}\$`)

var emojiCode = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)

// EmojiTable maps placeholder tokens ("$happy$") to Discord shortcodes (":grin:").
type EmojiTable map[string]string

// DefaultEmojiTable returns the built-in substitutions.
func DefaultEmojiTable() EmojiTable {
	return EmojiTable{
		"$happy$":    ":grin:",
		"$smile$":    ":smile:",
		"$laugh$":    ":joy:",
		"$love$":     ":heart_eyes:",
		"$heart$":    ":heart:",
		"$sad$":      ":cry:",
		"$angry$":    ":rage:",
		"$surprise$": ":astonished:",
		"$wink$":     ":wink:",
		"$cool$":     ":sunglasses:",
		"$thanks$":   ":pray:",
		"$ok$":       ":ok_hand:",
		"$good$":     ":thumbsup:",
		"$sleepy$":   ":sleeping:",
		"$sweat$":    ":sweat_smile:",
	}
}

type emojiFile struct {
	Emoji map[string]string `yaml:"emoji"`
}

// LoadEmojiTable reads a YAML file of the form
//
//	emoji:
//	  happy: ":grin:"
//	  "$sad$": ":cry:"
//
// and merges it over the built-in table. Keys may be given with or without
// the surrounding "$". Invalid keys are skipped with a warning.
func LoadEmojiTable(path string, logger *slog.Logger) (EmojiTable, error) {
	table := DefaultEmojiTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read emoji table: %w", err)
	}
	var f emojiFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse emoji table %s: %w", path, err)
	}

	for key, shortcode := range f.Emoji {
		code := strings.Trim(key, "$")
		if !emojiCode.MatchString(code) || shortcode == "" {
			logger.Warn("skipping invalid emoji table entry", "key", key, "path", path)
			continue
		}
		table["$"+code+"$"] = shortcode
	}
	logger.Info("emoji table loaded", "path", path, "entries", len(table))
	return table, nil
}

// emojiMatch is one distinct token found in a text.
type emojiMatch struct {
	token       string
	replacement string // empty when the table has no entry
}

// Substitute replaces known tokens in text and reports every distinct token
// seen, in order of first appearance, together with the total occurrence count.
func (t EmojiTable) Substitute(text string) (string, []emojiMatch, int) {
	var (
		matches []emojiMatch
		seen    = make(map[string]bool)
		count   int
	)
	out := emojiToken.ReplaceAllStringFunc(text, func(tok string) string {
		count++
		repl, ok := t[tok]
		if !seen[tok] {
			seen[tok] = true
			matches = append(matches, emojiMatch{token: tok, replacement: repl})
		}
		if ok {
			return repl
		}
		return tok
	})
	return out, matches, count
}

// emojiListing renders the footnote appended to a message with tokens:
// "-# emoji (2): $happy$ → :grin:, $foo$ (no mapping)".
func emojiListing(matches []emojiMatch, count int) string {
	if count == 0 {
		return ""
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.replacement == "" {
			parts = append(parts, m.token+" (no mapping)")
			continue
		}
		parts = append(parts, m.token+" → "+m.replacement)
	}
	return fmt.Sprintf("\n\n-# emoji (%d): %s", count, strings.Join(parts, ", "))
}
