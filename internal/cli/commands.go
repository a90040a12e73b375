package cli

import "strings"

const helpText = `Commands:
  /help                 Show this message
  /quit                 Leave the chat
  /new                  Start a fresh session
  /save [name]          Save the conversation
  /full [name]          Save the conversation with the full thinking log
  /sessions             List backend sessions
  /delete <id>          Delete a backend session
  /thinking             Toggle the thinking process display
  /model <name>         Select the model for new sessions
  /rounds <auto|n>      Set the number of thinking rounds
  /alternatives <n>     Set the alternatives per round`

type commandKind int

const (
	cmdUnknown commandKind = iota
	cmdHelp
	cmdQuit
	cmdNew
	cmdSave
	cmdFull
	cmdSessions
	cmdDelete
	cmdThinking
	cmdModel
	cmdRounds
	cmdAlternatives
)

type command struct {
	kind commandKind
	arg  string
	raw  string
}

func parseCommand(input string) command {
	trimmed := strings.TrimSpace(input)
	parts := strings.Fields(strings.TrimPrefix(trimmed, "/"))
	if len(parts) == 0 {
		return command{kind: cmdUnknown, raw: trimmed}
	}
	arg := strings.Join(parts[1:], " ")

	kinds := map[string]commandKind{
		"help":         cmdHelp,
		"quit":         cmdQuit,
		"exit":         cmdQuit,
		"new":          cmdNew,
		"save":         cmdSave,
		"full":         cmdFull,
		"sessions":     cmdSessions,
		"delete":       cmdDelete,
		"thinking":     cmdThinking,
		"model":        cmdModel,
		"rounds":       cmdRounds,
		"alternatives": cmdAlternatives,
	}
	kind, ok := kinds[strings.ToLower(parts[0])]
	if !ok {
		return command{kind: cmdUnknown, raw: trimmed}
	}
	return command{kind: kind, arg: arg, raw: trimmed}
}
