package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/stayline/hotel-concierge/internal/pms"
)

// Message copy lives here so the engine stays readable and the channel
// adapters can share one voice. Prices are rendered in whole dollars from
// cents.

func greetingMessage(hotelName string) string {
	return fmt.Sprintf(
		"Welcome to %s! I'm your reservation assistant.\n\n"+
			"To get started, please provide:\n"+
			"- Check-in date (e.g., 2024-12-15)\n"+
			"- Check-out date (e.g., 2024-12-20)\n"+
			"- Number of guests\n\n"+
			"You can also type 'help' anytime for assistance.",
		hotelName)
}

func helpMessage(hotelName string) string {
	return fmt.Sprintf(
		"%s - Help\n\n"+
			"Commands:\n"+
			"- Type your booking request naturally\n"+
			"- 'reset' - Start a new booking\n"+
			"- 'status' - Check current booking progress\n"+
			"- 'help' - Show this menu\n\n"+
			"Booking steps:\n"+
			"1. Provide dates and guest count\n"+
			"2. Select a room from the available options\n"+
			"3. Provide your name, email and phone\n"+
			"4. Receive your confirmation",
		hotelName)
}

func resetMessage(hotelName string) string {
	return fmt.Sprintf(
		"Welcome to %s! I'm here to help you make a reservation.\n\n"+
			"Please let me know your check-in date, check-out date and number of guests.\n"+
			"Example: \"I need a room from 2024-12-15 to 2024-12-20 for 2 guests\"",
		hotelName)
}

func promptMissingDates(slots Slots) string {
	var missing []string
	if slots.CheckInDate == "" {
		missing = append(missing, "check-in date")
	}
	if slots.CheckOutDate == "" {
		missing = append(missing, "check-out date")
	}
	if slots.GuestCount == 0 {
		missing = append(missing, "number of guests")
	}
	return fmt.Sprintf("Almost there - I still need your %s. Dates work best as YYYY-MM-DD.",
		joinNaturally(missing))
}

func promptMissingGuestInfo(slots Slots) string {
	var missing []string
	if slots.GuestName == "" {
		missing = append(missing, "full name")
	}
	if slots.GuestEmail == "" {
		missing = append(missing, "email address")
	}
	if slots.GuestPhone == "" {
		missing = append(missing, "phone number")
	}
	return fmt.Sprintf("To complete the booking I need your %s.", joinNaturally(missing))
}

func roomListMessage(offers []pms.RoomOffer) string {
	var b strings.Builder
	b.WriteString("Here are the available rooms:\n")
	for i, offer := range offers {
		fmt.Fprintf(&b, "\n%d. %s - $%d/night\n", i+1, offer.Name, offer.PricePerNight/100)
		if offer.Description != "" {
			fmt.Fprintf(&b, "   %s\n", offer.Description)
		}
		if len(offer.Amenities) > 0 {
			amenities := offer.Amenities
			if len(amenities) > 4 {
				amenities = amenities[:4]
			}
			fmt.Fprintf(&b, "   %s\n", strings.Join(amenities, ", "))
		}
		if offer.TotalPrice > 0 {
			fmt.Fprintf(&b, "   Total for your stay: $%d\n", offer.TotalPrice/100)
		}
	}
	b.WriteString("\nReply with the number of your preferred room.")
	return b.String()
}

func roomSelectedMessage(offer pms.RoomOffer) string {
	return fmt.Sprintf(
		"Great choice - the %s.\n\n"+
			"To complete your booking I need your full name, email address and phone number.",
		offer.Name)
}

func confirmationMessage(hotelName string, conf pms.BookingConfirmation, roomName string) string {
	nights := "N/A"
	if in, err := time.Parse(pms.DateLayout, conf.CheckIn); err == nil {
		if out, err := time.Parse(pms.DateLayout, conf.CheckOut); err == nil {
			nights = fmt.Sprintf("%d", pms.Nights(in, out))
		}
	}
	if roomName == "" {
		roomName = conf.RoomID
	}

	msg := fmt.Sprintf(
		"Booking confirmed!\n\n"+
			"Confirmation: %s\n"+
			"Hotel: %s\n"+
			"Room: %s\n"+
			"Guests: %d\n"+
			"Check-in: %s\n"+
			"Check-out: %s\n"+
			"Nights: %s\n",
		conf.ConfirmationNumber, hotelName, roomName, conf.GuestCount,
		conf.CheckIn, conf.CheckOut, nights)
	if conf.TotalPrice > 0 {
		msg += fmt.Sprintf("Total: $%d\n", conf.TotalPrice/100)
	}
	msg += "\nWe look forward to welcoming you!"
	return msg
}

const (
	msgCheckoutBeforeCheckin = "Checkout must be after checkin. Please provide a new date range."
	msgDatesInPast           = "Check-in date cannot be in the past. Please provide a future date."
	msgStayTooLong           = "Maximum stay is 30 nights. Please select a shorter period."
	msgInvalidGuestCount     = "I need at least 1 guest to make a booking. How many guests?"
	msgNoAvailability        = "Sorry, no rooms are available for those dates. Would you like to try different dates?"
	msgUnknownRoom           = "I couldn't match that to one of the listed rooms. Please reply with the room number or name."
	msgRoomTaken             = "That room was just booked by someone else. Let me check what's still available."
	msgBackendTrouble        = "I'm having trouble reaching our reservation system. Please try again in a moment."
	msgAfterConfirmed        = "Your previous booking is all set. Let's start a new reservation."
)

func joinNaturally(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}
