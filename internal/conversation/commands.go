package conversation

import (
	"fmt"
	"strings"
)

// Command is a keyword the engine recognizes before any slot processing.
type Command string

const (
	CommandNone   Command = ""
	CommandHelp   Command = "help"
	CommandStatus Command = "status"
	CommandReset  Command = "reset"
)

// resetAliases are the phrases that clear the session and start over.
var resetAliases = map[string]struct{}{
	"reset":       {},
	"restart":     {},
	"start over":  {},
	"new booking": {},
	"cancel":      {},
}

// ParseCommand matches the utterance against the command keywords,
// case-insensitively. "menu" is an alias for help.
func ParseCommand(text string) Command {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch lower {
	case "help", "menu":
		return CommandHelp
	case "status":
		return CommandStatus
	}
	if _, ok := resetAliases[lower]; ok {
		return CommandReset
	}
	return CommandNone
}

// statusMessage renders the current stage and filled slots without
// altering them.
func statusMessage(state *ConversationState) string {
	var b strings.Builder
	b.WriteString("Booking status\n\n")

	if state.Slots.CheckInDate != "" && state.Slots.CheckOutDate != "" {
		fmt.Fprintf(&b, "Dates: %s to %s\n", state.Slots.CheckInDate, state.Slots.CheckOutDate)
	} else {
		b.WriteString("Dates: not provided\n")
	}
	if state.Slots.GuestCount > 0 {
		fmt.Fprintf(&b, "Guests: %d\n", state.Slots.GuestCount)
	} else {
		b.WriteString("Guests: not provided\n")
	}
	if state.Slots.SelectedRoomID != "" {
		name := state.Slots.SelectedRoomID
		if offer := state.OfferByID(state.Slots.SelectedRoomID); offer != nil {
			name = offer.Name
		}
		fmt.Fprintf(&b, "Room: %s\n", name)
	} else {
		b.WriteString("Room: not selected\n")
	}
	if state.Slots.GuestName != "" {
		fmt.Fprintf(&b, "Guest name: %s\n", state.Slots.GuestName)
	} else {
		b.WriteString("Guest name: not provided\n")
	}
	if state.Confirmation != nil {
		fmt.Fprintf(&b, "\nBooking confirmed! Confirmation: %s\n", state.Confirmation.ConfirmationNumber)
	}

	fmt.Fprintf(&b, "\nStage: %s", state.Stage)
	return b.String()
}
