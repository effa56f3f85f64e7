package command

import "strings"

type Kind string

const (
	KindRegister   Kind = "register"
	KindCheckIn    Kind = "checkin"
	KindCheckOut   Kind = "checkout"
	KindDailyScrum Kind = "dailyscrum"
	KindHelp       Kind = "help"
	KindReport     Kind = "report"
	KindTransfer   Kind = "transfer"
	KindEcho       Kind = "echo"
)

var aliases = map[string]Kind{
	"register":   KindRegister,
	"checkin":    KindCheckIn,
	"checkout":   KindCheckOut,
	"reportsick": KindCheckOut,
	"dailyscrum": KindDailyScrum,
	"newgc":      KindDailyScrum,
	"help":       KindHelp,
	"report":     KindReport,
}

// argCommands take arguments after the keyword; ids keep their case.
var argCommands = map[string]Kind{
	"transfer":     KindTransfer,
	"transfercall": KindTransfer,
}

// Command is a normalised chat input.
type Command struct {
	Kind  Kind
	Input string
	Args  []string
}

// Parse maps message text to a command. Card submissions carry no text, their type field is used instead.
func Parse(text, cardType string) Command {
	input := strings.ToLower(strings.TrimSpace(text))
	if input == "" {
		input = strings.ToLower(strings.TrimSpace(cardType))
	}
	if k, ok := aliases[input]; ok {
		return Command{Kind: k, Input: input}
	}
	if fields := strings.Fields(text); len(fields) > 0 {
		if k, ok := argCommands[strings.ToLower(fields[0])]; ok {
			return Command{Kind: k, Input: input, Args: fields[1:]}
		}
	}
	return Command{Kind: KindEcho, Input: input}
}
