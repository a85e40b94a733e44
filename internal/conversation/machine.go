package conversation

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/stayline/hotel-concierge/internal/observability/metrics"
	"github.com/stayline/hotel-concierge/internal/pms"
	"github.com/stayline/hotel-concierge/pkg/logging"
)

const maxStayNights = 30

// Engine advances a ConversationState one utterance at a time. All
// transitions are pure functions of (state, utterance) except the two
// reservation-backend calls, which run at the CheckingAvailability and
// CreatingBooking stages.
type Engine struct {
	backend   pms.Client
	extractor Extractor
	hotelName string
	metrics   *metrics.EngineMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewEngine builds the state machine around a reservation backend and an
// extractor. The backend should already carry the retry-once policy.
func NewEngine(backend pms.Client, extractor Extractor, hotelName string, m *metrics.EngineMetrics, logger *logging.Logger) *Engine {
	if backend == nil {
		panic("conversation: backend cannot be nil")
	}
	if extractor == nil {
		extractor = NewRegexExtractor()
	}
	if hotelName == "" {
		hotelName = "Stayline Grand Hotel"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		backend:   backend,
		extractor: extractor,
		hotelName: hotelName,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Advance processes one utterance against the state, mutating it and
// returning the outbound message. The returned error is non-nil only when
// ctx was cancelled mid-call; every other failure becomes a user-facing
// message with no silent stage advance.
func (e *Engine) Advance(ctx context.Context, state *ConversationState, utt Utterance) (OutboundMessage, error) {
	text := sanitizeText(utt.Text)
	from := state.Stage

	state.LastActivityAt = e.now().UTC()
	if text != "" {
		state.AppendHistory("user", text)
	}

	// Commands run before any slot processing.
	switch cmd := ParseCommand(text); cmd {
	case CommandHelp:
		e.metrics.ObserveCommand(string(CommandHelp))
		return e.reply(state, helpMessage(e.hotelName), nil), nil
	case CommandStatus:
		e.metrics.ObserveCommand(string(CommandStatus))
		return e.reply(state, statusMessage(state), nil), nil
	case CommandReset:
		e.metrics.ObserveCommand(string(CommandReset))
		*state = *NewConversationState(state.UserID)
		e.metrics.ObserveStageTransition(string(from), string(state.Stage))
		return e.reply(state, resetMessage(e.hotelName), nil), nil
	}

	// A completed attempt is terminal: the next utterance starts fresh.
	afterConfirmed := state.Stage == StageConfirmed
	if afterConfirmed {
		*state = *NewConversationState(state.UserID)
		state.LastActivityAt = e.now().UTC()
		state.AppendHistory("user", text)
	}

	out, err := e.step(ctx, state, text)
	if err != nil {
		return OutboundMessage{}, err
	}
	if afterConfirmed {
		out.Text = msgAfterConfirmed + "\n\n" + out.Text
	}
	e.metrics.ObserveStageTransition(string(from), string(state.Stage))
	return out, nil
}

func (e *Engine) step(ctx context.Context, state *ConversationState, text string) (OutboundMessage, error) {
	switch state.Stage {
	case StageGreeting:
		return e.stepGreeting(ctx, state, text)
	case StageCollectingDates, StageValidatingDates:
		return e.stepCollectingDates(ctx, state, text)
	case StageCheckingAvailability:
		// A previous availability call failed transiently; merge any new
		// date input, then re-run the same query path.
		e.mergeDateCandidates(state, text)
		return e.checkAvailability(ctx, state)
	case StagePresentingOptions, StageCollectingRoomSelection:
		return e.stepRoomSelection(ctx, state, text)
	case StageCollectingGuestInfo:
		return e.stepGuestInfo(ctx, state, text)
	case StageCreatingBooking:
		// A previous booking call failed transiently; same token, retry.
		return e.createBooking(ctx, state)
	default:
		e.logger.Warn("unknown conversation stage, resetting", "stage", state.Stage, "user_id", state.UserID)
		*state = *NewConversationState(state.UserID)
		state.Stage = StageCollectingDates
		return e.reply(state, greetingMessage(e.hotelName), nil), nil
	}
}

func (e *Engine) stepGreeting(ctx context.Context, state *ConversationState, text string) (OutboundMessage, error) {
	state.Stage = StageCollectingDates
	e.mergeDateCandidates(state, text)

	// A first message that already carries the full date/guest payload
	// skips the greeting prompt and goes straight to validation.
	if state.Slots.HasDates() {
		return e.validateDates(ctx, state)
	}
	return e.reply(state, greetingMessage(e.hotelName), nil), nil
}

func (e *Engine) stepCollectingDates(ctx context.Context, state *ConversationState, text string) (OutboundMessage, error) {
	e.mergeDateCandidates(state, text)
	if !state.Slots.HasDates() {
		return e.reply(state, promptMissingDates(state.Slots), nil), nil
	}
	return e.validateDates(ctx, state)
}

// mergeDateCandidates applies extractor output for the date-collection
// slots. A date or guest-count change invalidates any presented offers.
func (e *Engine) mergeDateCandidates(state *ConversationState, text string) {
	c := e.extractor.Extract(text, state.Slots)
	changed := false
	if c.CheckIn.Valid {
		state.Slots.CheckInDate = c.CheckIn.Value.Format(pms.DateLayout)
		changed = true
	}
	if c.CheckOut.Valid {
		state.Slots.CheckOutDate = c.CheckOut.Value.Format(pms.DateLayout)
		changed = true
	}
	if c.GuestCount.Valid {
		state.Slots.GuestCount = c.GuestCount.Value
		changed = true
	}
	if changed {
		state.ClearOffers()
	}
}

// validateDates enforces the date guards. On failure only the invalid
// slot(s) are cleared and the machine routes back to date collection.
func (e *Engine) validateDates(ctx context.Context, state *ConversationState) (OutboundMessage, error) {
	state.Stage = StageValidatingDates

	checkIn, errIn := time.Parse(pms.DateLayout, state.Slots.CheckInDate)
	checkOut, errOut := time.Parse(pms.DateLayout, state.Slots.CheckOutDate)
	today := truncateToDay(e.now().UTC())

	switch {
	case errIn != nil || errOut != nil:
		state.Slots.CheckInDate = ""
		state.Slots.CheckOutDate = ""
		state.Stage = StageCollectingDates
		return e.reply(state, promptMissingDates(state.Slots), nil), nil
	case checkIn.Before(today):
		state.Slots.CheckInDate = ""
		state.Slots.CheckOutDate = ""
		state.Stage = StageCollectingDates
		return e.reply(state, msgDatesInPast, nil), nil
	case !checkOut.After(checkIn):
		state.Slots.CheckOutDate = ""
		state.Stage = StageCollectingDates
		return e.reply(state, msgCheckoutBeforeCheckin, nil), nil
	case pms.Nights(checkIn, checkOut) > maxStayNights:
		state.Slots.CheckOutDate = ""
		state.Stage = StageCollectingDates
		return e.reply(state, msgStayTooLong, nil), nil
	case state.Slots.GuestCount < 1:
		state.Slots.GuestCount = 0
		state.Stage = StageCollectingDates
		return e.reply(state, msgInvalidGuestCount, nil), nil
	}

	return e.checkAvailability(ctx, state)
}

// checkAvailability queries the backend and presents offers in backend
// order. Transient failures hold the stage so the next utterance retries
// the same path.
func (e *Engine) checkAvailability(ctx context.Context, state *ConversationState) (OutboundMessage, error) {
	state.Stage = StageCheckingAvailability

	req := pms.AvailabilityRequest{
		CheckIn:      state.Slots.CheckInDate,
		CheckOut:     state.Slots.CheckOutDate,
		GuestCount:   state.Slots.GuestCount,
		RequestToken: pms.AvailabilityToken(state.UserID, state.Slots.CheckInDate, state.Slots.CheckOutDate, state.Slots.GuestCount),
	}
	offers, err := e.backend.CheckAvailability(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return OutboundMessage{}, ctx.Err()
		}
		e.metrics.ObserveBackendCall("check_availability", "error")
		e.logger.Warn("availability check failed", "error", err, "user_id", state.UserID)
		return e.reply(state, msgBackendTrouble, nil), nil
	}
	e.metrics.ObserveBackendCall("check_availability", "ok")

	if len(offers) == 0 {
		state.ClearOffers()
		state.Slots.CheckInDate = ""
		state.Slots.CheckOutDate = ""
		state.Stage = StageCollectingDates
		return e.reply(state, msgNoAvailability, nil), nil
	}

	// Backend order is authoritative; never re-sort. The stage moves to
	// collecting_room_selection only once the guest replies to the list.
	state.AvailableOffers = offers
	state.Stage = StagePresentingOptions
	return e.reply(state, roomListMessage(offers), roomNames(offers)), nil
}

func (e *Engine) stepRoomSelection(ctx context.Context, state *ConversationState, text string) (OutboundMessage, error) {
	state.Stage = StageCollectingRoomSelection

	offer := resolveRoomSelection(text, state.AvailableOffers)
	if offer == nil {
		// Not a selection. A fresh date range at this point invalidates
		// the presented offers and restarts the availability query.
		if in, out := e.revisedDates(text); in.Valid && out.Valid {
			state.Slots.CheckInDate = in.Value.Format(pms.DateLayout)
			state.Slots.CheckOutDate = out.Value.Format(pms.DateLayout)
			state.ClearOffers()
			return e.validateDates(ctx, state)
		}
		return e.reply(state, msgUnknownRoom, roomNames(state.AvailableOffers)), nil
	}

	state.Slots.SelectedRoomID = offer.RoomID
	state.Stage = StageCollectingGuestInfo

	// The same utterance may already carry guest details.
	e.mergeGuestCandidates(state, text)
	if state.Slots.HasGuestInfo() {
		return e.createBooking(ctx, state)
	}
	return e.reply(state, roomSelectedMessage(*offer), nil), nil
}

func (e *Engine) stepGuestInfo(ctx context.Context, state *ConversationState, text string) (OutboundMessage, error) {
	e.mergeGuestCandidates(state, text)
	if !state.Slots.HasGuestInfo() {
		return e.reply(state, promptMissingGuestInfo(state.Slots), nil), nil
	}
	return e.createBooking(ctx, state)
}

// revisedDates re-runs date extraction as if no dates were held, so an
// explicit new range can override the current one mid-flow.
func (e *Engine) revisedDates(text string) (DateCandidate, DateCandidate) {
	c := e.extractor.Extract(text, Slots{GuestCount: 1})
	return c.CheckIn, c.CheckOut
}

func (e *Engine) mergeGuestCandidates(state *ConversationState, text string) {
	c := e.extractor.Extract(text, state.Slots)
	if c.GuestName.Valid {
		state.Slots.GuestName = c.GuestName.Value
	}
	if c.GuestEmail.Valid {
		state.Slots.GuestEmail = c.GuestEmail.Value
	}
	if c.GuestPhone.Valid {
		state.Slots.GuestPhone = c.GuestPhone.Value
	}
}

// createBooking invokes the backend with the deterministic idempotency
// token so a retried call after a dropped response cannot double-book.
func (e *Engine) createBooking(ctx context.Context, state *ConversationState) (OutboundMessage, error) {
	state.Stage = StageCreatingBooking

	selected := state.OfferByID(state.Slots.SelectedRoomID)
	roomName := state.Slots.SelectedRoomID
	if selected != nil {
		roomName = selected.Name
	}

	req := pms.BookingRequest{
		RoomID:     state.Slots.SelectedRoomID,
		CheckIn:    state.Slots.CheckInDate,
		CheckOut:   state.Slots.CheckOutDate,
		GuestCount: state.Slots.GuestCount,
		Guest: pms.Guest{
			Name:  state.Slots.GuestName,
			Email: state.Slots.GuestEmail,
			Phone: state.Slots.GuestPhone,
		},
		RequestToken: pms.BookingToken(state.UserID, state.Slots.SelectedRoomID, state.Slots.CheckInDate, state.Slots.CheckOutDate),
	}

	conf, err := e.backend.CreateBooking(ctx, req)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return OutboundMessage{}, ctx.Err()
	case errors.Is(err, pms.ErrRoomNoLongerAvailable):
		// Semantic rejection: the room sold out between selection and
		// booking. Re-query fresh offers in the same turn.
		e.metrics.ObserveBackendCall("create_booking", "room_taken")
		state.ClearOffers()
		out, qerr := e.checkAvailability(ctx, state)
		if qerr != nil {
			return OutboundMessage{}, qerr
		}
		out.Text = msgRoomTaken + "\n\n" + out.Text
		return out, nil
	default:
		e.metrics.ObserveBackendCall("create_booking", "error")
		e.logger.Warn("booking creation failed", "error", err, "user_id", state.UserID)
		return e.reply(state, msgBackendTrouble, nil), nil
	}

	e.metrics.ObserveBackendCall("create_booking", "ok")
	e.metrics.ObserveBookingConfirmed()

	state.Confirmation = conf
	state.Stage = StageConfirmed
	return e.reply(state, confirmationMessage(e.hotelName, *conf, roomName), nil), nil
}

func (e *Engine) reply(state *ConversationState, text string, hints []string) OutboundMessage {
	state.AppendHistory("assistant", text)
	return OutboundMessage{Text: text, QuickReplyHints: hints}
}

func roomNames(offers []pms.RoomOffer) []string {
	names := make([]string, 0, len(offers))
	for _, o := range offers {
		names = append(names, o.Name)
	}
	return names
}

// ordinalWords resolves spelled-out ordinals for selections like "the
// second one".
var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

var ordinalSuffixRe = regexp.MustCompile(`^(\d+)(?:st|nd|rd|th)$`)

// resolveRoomSelection matches an utterance against the presented offers
// by 1-based ordinal, room id, exact name, or unambiguous partial name.
// A stale or unrecognized reference returns nil.
func resolveRoomSelection(text string, offers []pms.RoomOffer) *pms.RoomOffer {
	if len(offers) == 0 {
		return nil
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return nil
	}

	if idx, ok := ordinalIndex(lower); ok && idx >= 1 && idx <= len(offers) {
		return &offers[idx-1]
	}

	for i := range offers {
		if strings.Contains(lower, strings.ToLower(offers[i].RoomID)) {
			return &offers[i]
		}
	}
	for i := range offers {
		if strings.Contains(lower, strings.ToLower(offers[i].Name)) {
			return &offers[i]
		}
	}

	// Partial name match on distinctive words (>3 chars), accepted only
	// when it is unambiguous across the presented offers. "room" is too
	// generic to count as a match.
	var match *pms.RoomOffer
	for i := range offers {
		for _, word := range strings.Fields(strings.ToLower(offers[i].Name)) {
			if word == "room" || word == "rooms" {
				continue
			}
			if len(word) > 3 && strings.Contains(lower, word) {
				if match != nil && match.RoomID != offers[i].RoomID {
					return nil
				}
				match = &offers[i]
			}
		}
	}
	return match
}

func ordinalIndex(lower string) (int, bool) {
	if n, err := strconv.Atoi(lower); err == nil {
		return n, true
	}
	for _, field := range strings.Fields(lower) {
		field = strings.Trim(field, ",.!?")
		if n, ok := ordinalWords[field]; ok {
			return n, true
		}
		if n, err := strconv.Atoi(field); err == nil {
			return n, true
		}
		// "2nd", "3rd" style.
		if m := ordinalSuffixRe.FindStringSubmatch(field); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
