package bot

import "strings"

type Command int

const (
	CommandNone Command = iota
	CommandRegister
)

// commandNames maps every accepted spelling to its command.
var commandNames = map[string]Command{
	"!register":          CommandRegister,
	"!registrar_membros": CommandRegister,
}

// ParseCommand reports which command, if any, content starts with.
func ParseCommand(content string) Command {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return CommandNone
	}
	return commandNames[strings.ToLower(fields[0])]
}

// DisplayName picks the name a guild member is shown with: server nickname,
// then global display name, then username.
func DisplayName(nick, globalName, username string) string {
	for _, s := range []string{nick, globalName, username} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
