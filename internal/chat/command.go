package chat

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// Kind identifies a parsed command.
type Kind int

const (
	KindUnknown Kind = iota
	KindRename
	KindDirectMessage
	KindBroadcast
	KindQuit
)

// Protocol keywords. Keyword matching is case-sensitive except for quit.
const (
	KeywordRename    = "change-userName"
	KeywordDirect    = "send-msg"
	KeywordBroadcast = "global-msg"
	KeywordQuit      = "salir"
)

// Definition describes a command accepted on the wire.
type Definition struct {
	// Keyword is the leading token that selects the command.
	Keyword string
	// Usage is the argument synopsis shown on a usage error.
	Usage string
	// Help is a short description.
	Help string
	// Kind is the command produced when Keyword matches.
	Kind Kind
	// Parts caps the whitespace split; the last part keeps the unsplit remainder.
	Parts int
}

// BuiltinCommands returns the protocol's command table.
func BuiltinCommands() []Definition {
	return []Definition{
		{Keyword: KeywordRename, Usage: "change-userName <newName>", Help: "Change your display name", Kind: KindRename, Parts: 2},
		{Keyword: KeywordDirect, Usage: "send-msg <targetName> <message>", Help: "Send a private message", Kind: KindDirectMessage, Parts: 3},
		{Keyword: KeywordBroadcast, Usage: "global-msg <message>", Help: "Send a message to everyone", Kind: KindBroadcast, Parts: 2},
		{Keyword: KeywordQuit, Usage: "salir", Help: "Leave the chat", Kind: KindQuit, Parts: 1},
	}
}

// Keywords returns the recognized keywords in table order.
func Keywords() []string {
	return lo.Map(BuiltinCommands(), func(d Definition, _ int) string {
		return d.Keyword
	})
}

var definitions = lo.SliceToMap(BuiltinCommands(), func(d Definition) (string, Definition) {
	return d.Keyword, d
})

// Lookup returns the definition for keyword.
func Lookup(keyword string) (Definition, bool) {
	d, ok := definitions[keyword]
	return d, ok
}

// Command is one parsed protocol line.
type Command struct {
	Kind Kind
	// NewName is set for KindRename.
	NewName string
	// Target is set for KindDirectMessage.
	Target string
	// Body is set for KindDirectMessage and KindBroadcast.
	Body string
	// Raw is the line as received.
	Raw string
}

// Parse converts a received line into a Command.
//
// Postcondition: Returns a Command; a recognized keyword with missing
// arguments yields an error wrapping ErrUsage whose message is the usage synopsis.
// Lines with no recognized keyword yield KindUnknown and no error.
func Parse(line string) (Command, error) {
	raw := line
	line = strings.TrimLeftFunc(line, unicode.IsSpace)

	if strings.EqualFold(strings.TrimSpace(line), KeywordQuit) {
		return Command{Kind: KindQuit, Raw: raw}, nil
	}

	def, ok := Lookup(splitN(line, 2)[0])
	if !ok || def.Kind == KindQuit {
		return Command{Kind: KindUnknown, Raw: raw}, nil
	}

	parts := splitN(line, def.Parts)
	usageErr := fmt.Errorf("%w: %s", ErrUsage, def.Usage)

	switch def.Kind {
	case KindRename:
		if len(parts) < 2 {
			return Command{}, usageErr
		}
		return Command{Kind: KindRename, NewName: strings.TrimSpace(parts[1]), Raw: raw}, nil
	case KindDirectMessage:
		if len(parts) < 3 || strings.TrimSpace(parts[2]) == "" {
			return Command{}, usageErr
		}
		return Command{Kind: KindDirectMessage, Target: parts[1], Body: parts[2], Raw: raw}, nil
	case KindBroadcast:
		if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
			return Command{}, usageErr
		}
		return Command{Kind: KindBroadcast, Body: parts[1], Raw: raw}, nil
	}
	return Command{Kind: KindUnknown, Raw: raw}, nil
}

// ValidateName checks a requested display name against the naming rules.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidName.
func ValidateName(name, systemLabel string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.IndexFunc(name, unicode.IsSpace) >= 0:
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidName, name)
	case strings.EqualFold(name, systemLabel):
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return nil
}

// splitN splits s around runs of whitespace into at most n parts. The final
// part is the remainder of s with its leading whitespace removed, so message
// bodies keep their inner spacing.
//
// Precondition: s has no leading whitespace; n >= 1.
func splitN(s string, n int) []string {
	var parts []string
	for len(parts) < n-1 {
		idx := strings.IndexFunc(s, unicode.IsSpace)
		if idx < 0 {
			break
		}
		parts = append(parts, s[:idx])
		s = strings.TrimLeftFunc(s[idx:], unicode.IsSpace)
	}
	return append(parts, s)
}
