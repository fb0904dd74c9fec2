package relay

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// HandleUpdate is the single inbound entrypoint a Controller's platform listener calls for every decoded Inbound
// (spec.md §4.8 "Inbound dispatch"): text beginning with "/" is parsed into a Command and routed through
// HandleCommand, everything else goes through Send. Grounded on the teacher's opcode switch in
// gateway.Client.readPump, generalized from a fixed opcode set to command-name parsing.
func (c *Controller) HandleUpdate(ctx context.Context, groupID uuid.UUID, in Inbound, notify StatusSender) error {
	if cmd, ok := parseCommand(in); ok {
		return c.HandleCommand(ctx, groupID, cmd, notify)
	}
	return c.Send(ctx, groupID, in, notify)
}

// parseCommand recognizes a leading "/name arg..." in in.Text and splits it into a Command, lowercasing the name and
// dropping any "@botname" suffix. Only the text is scanned; in.Entities are not consulted. A bare "/" with no name
// (e.g. "/ " or "/") is not a command.
func parseCommand(in Inbound) (Command, bool) {
	text := in.Text
	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}

	rest := text[1:]
	name, args, _ := strings.Cut(rest, " ")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Command{}, false
	}
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}

	return Command{Name: name, Args: strings.TrimSpace(args), In: in}, true
}
