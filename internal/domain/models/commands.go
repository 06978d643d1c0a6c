package models

import "strings"

// CommandType enumerates supported operator command categories.
type CommandType string

const (
	CommandBatch   CommandType = "batch"
	CommandStage   CommandType = "stage"
	CommandHarvest CommandType = "harvest"
	CommandEnv     CommandType = "env"
	CommandLog     CommandType = "log"
	CommandExpiry  CommandType = "expiry"
	CommandPredict CommandType = "predict"
	CommandUnknown CommandType = "unknown"
)

var knownCommands = map[string]CommandType{
	string(CommandBatch):   CommandBatch,
	string(CommandStage):   CommandStage,
	string(CommandHarvest): CommandHarvest,
	string(CommandEnv):     CommandEnv,
	string(CommandLog):     CommandLog,
	string(CommandExpiry):  CommandExpiry,
	string(CommandPredict): CommandPredict,
}

// Command represents a parsed operator instruction extracted from WhatsApp text.
type Command struct {
	Type CommandType
	Raw  string
	Args []string
}

// IsSlashCommand reports whether the message looks like an explicit command.
func IsSlashCommand(message string) bool {
	return strings.HasPrefix(strings.TrimSpace(message), "/")
}

// ParseCommand derives a Command instance from free-form text messages.
// Arguments keep their original case since batch IDs are case sensitive.
func ParseCommand(message string) Command {
	tokens := strings.Fields(strings.TrimSpace(message))
	cmd := Command{Type: CommandUnknown, Raw: message}

	if len(tokens) == 0 {
		return cmd
	}

	head := strings.ToLower(strings.TrimPrefix(tokens[0], "/"))
	if t, ok := knownCommands[head]; ok {
		cmd.Type = t
	}

	if len(tokens) > 1 {
		cmd.Args = tokens[1:]
	}

	return cmd
}
