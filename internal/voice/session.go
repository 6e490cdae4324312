package voice

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bethesda-shelter/backend/internal/metrics"
	"github.com/bethesda-shelter/backend/internal/reservation"
	"github.com/bethesda-shelter/backend/internal/storage"
	"github.com/bethesda-shelter/backend/internal/storage/models"
)

// State identifies where the call session is in its flow.
type State string

const (
	StateClassify State = "classify"

	StateBedName      State = "bed_name"
	StateBedSituation State = "bed_situation"
	StateBedNeeds     State = "bed_needs"
	StateBedConfirm   State = "bed_confirm"

	StateChapelDate    State = "chapel_date"
	StateChapelTime    State = "chapel_time"
	StateChapelGroup   State = "chapel_group"
	StateChapelContact State = "chapel_contact"

	StateVolunteerName      State = "volunteer_name"
	StateVolunteerPhone     State = "volunteer_phone"
	StateVolunteerAvail     State = "volunteer_availability"
	StateVolunteerInterests State = "volunteer_interests"

	StateFarewell State = "farewell"
)

// bedSlots holds the gathered reservation details.
type bedSlots struct {
	name      string
	situation string
	needs     string
}

// chapelSlots holds the gathered chapel booking details.
type chapelSlots struct {
	date         string
	timeSlot     string
	group        string
	contactName  string
	contactPhone string
}

// volunteerSlots holds the gathered volunteer signup details.
type volunteerSlots struct {
	name         string
	phone        string
	availability []string
	interests    []string
}

// Session is the per-call state machine. All intermediate state lives in
// memory and dies with the call; only committed tool effects persist. Each
// flow's tool fires at most once per session: the committed latches make a
// repeated "yes, reserve it" a reminder, not a second reservation.
type Session struct {
	id         string
	callerHash string

	classifier *Classifier
	tools      *ToolRouter
	callLogs   *storage.CallLogRepository

	idleTimeout time.Duration

	lang       string
	langLocked bool
	state      State

	bed       bedSlots
	chapel    chapelSlots
	volunteer volunteerSlots

	bedCommitted    bool
	chapelCommitted bool
	volCommitted    bool

	reservedCode string
	reservedBed  int

	firstIntent Intent
	riskFlag    string
	startedAt   time.Time
	closed      bool
}

// NewSession creates a call session. callLogs may be nil in tests.
func NewSession(id, callerHash string, classifier *Classifier, tools *ToolRouter, callLogs *storage.CallLogRepository, idleTimeout time.Duration) *Session {
	return &Session{
		id:          id,
		callerHash:  callerHash,
		classifier:  classifier,
		tools:       tools,
		callLogs:    callLogs,
		idleTimeout: idleTimeout,
		lang:        "en",
		state:       StateClassify,
		startedAt:   time.Now().UTC(),
	}
}

// State returns the session's current flow state.
func (s *Session) State() State {
	return s.state
}

// Language returns the detected caller language.
func (s *Session) Language() string {
	return s.lang
}

// Greeting returns the opening line spoken on call setup.
func (s *Session) Greeting() string {
	return say(s.lang, phraseGreeting)
}

// Run consumes the transport until hangup, idle timeout, or farewell.
// Cancellation drops the session; an in-flight tool call still commits
// because the tool router detaches its deadline from this context.
func (s *Session) Run(ctx context.Context, tr Transport) {
	outcome := "completed"
	defer func() {
		s.Close(outcome)
	}()

	if err := tr.Say(ctx, s.Greeting()); err != nil {
		outcome = "hangup"
		return
	}

	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			outcome = "hangup"
			return

		case <-idle.C:
			outcome = "idle_timeout"
			_ = tr.Say(ctx, say(s.lang, phraseFarewell))
			return

		case u, ok := <-tr.Utterances():
			if !ok {
				outcome = "hangup"
				return
			}
			reply, done := s.HandleUtterance(ctx, u.Text)
			if reply != "" {
				if err := tr.Say(ctx, reply); err != nil {
					outcome = "hangup"
					return
				}
			}
			if done {
				if s.riskFlag != "" {
					outcome = "crisis"
				}
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.idleTimeout)
		}
	}
}

// HandleUtterance advances the state machine by one caller statement and
// returns the reply plus whether the call is over.
func (s *Session) HandleUtterance(ctx context.Context, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return say(s.lang, phraseClarify), false
	}

	// The first substantive utterance fixes the caller's language for the
	// rest of the call.
	if !s.langLocked {
		s.lang = s.classifier.DetectLanguage(text)
		s.langLocked = true
	}

	// Crisis preempts any state, on explicit phrases only.
	if s.classifier.IsCrisis(text) {
		s.riskFlag = "crisis"
		if s.firstIntent == "" {
			s.firstIntent = IntentCrisis
		}
		s.state = StateFarewell
		return say(s.lang, phraseCrisisHotline) + " " + say(s.lang, phraseFarewell), true
	}

	// Explicit farewell ends the call from any state.
	if s.classifier.IsFarewell(text) {
		s.state = StateFarewell
		return say(s.lang, phraseFarewell), true
	}

	switch s.state {
	case StateClassify:
		return s.handleClassify(ctx, text)

	case StateBedName:
		s.bed.name = text
		s.state = StateBedSituation
		return say(s.lang, phraseAskSituation), false

	case StateBedSituation:
		s.bed.situation = text
		s.state = StateBedNeeds
		return say(s.lang, phraseAskNeeds), false

	case StateBedNeeds:
		s.bed.needs = text
		s.state = StateBedConfirm
		return say(s.lang, phraseConfirmReserve), false

	case StateBedConfirm:
		return s.handleBedConfirm(ctx, text)

	case StateChapelDate:
		if _, err := time.Parse("2006-01-02", text); err != nil {
			return say(s.lang, phraseAskChapelDate), false
		}
		s.chapel.date = text
		s.state = StateChapelTime
		return say(s.lang, phraseAskChapelTime), false

	case StateChapelTime:
		slot := parseChapelTime(text)
		if slot == "" {
			return say(s.lang, phraseChapelBadTime), false
		}
		s.chapel.timeSlot = slot
		s.state = StateChapelGroup
		return say(s.lang, phraseAskChapelGroup), false

	case StateChapelGroup:
		s.chapel.group = text
		s.state = StateChapelContact
		return say(s.lang, phraseAskChapelContact), false

	case StateChapelContact:
		s.chapel.contactName, s.chapel.contactPhone = splitContact(text)
		return s.handleChapelSchedule(ctx)

	case StateVolunteerName:
		s.volunteer.name = text
		s.state = StateVolunteerPhone
		return say(s.lang, phraseAskVolPhone), false

	case StateVolunteerPhone:
		s.volunteer.phone = text
		s.state = StateVolunteerAvail
		return say(s.lang, phraseAskVolAvail), false

	case StateVolunteerAvail:
		s.volunteer.availability = splitList(text)
		s.state = StateVolunteerInterests
		return say(s.lang, phraseAskVolInterests), false

	case StateVolunteerInterests:
		s.volunteer.interests = splitList(text)
		return s.handleVolunteerRegister(ctx)
	}

	return say(s.lang, phraseClarify), false
}

// handleClassify routes the utterance into a flow.
func (s *Session) handleClassify(ctx context.Context, text string) (string, bool) {
	intent := s.classifier.Classify(text)
	if s.firstIntent == "" {
		s.firstIntent = intent
	}

	switch intent {
	case IntentBedInquiry:
		if s.bedCommitted {
			return say(s.lang, phraseAlreadyReserved, s.reservedCode, s.reservedBed), false
		}
		avail, err := s.checkAvailability(ctx)
		if err != nil {
			return s.toolFailure(err), false
		}
		if avail.Available == 0 {
			return say(s.lang, phraseNoCapacity, models.TotalBeds), false
		}
		s.state = StateBedName
		return say(s.lang, phraseBedsAvailable, avail.Available, models.TotalBeds) + " " + say(s.lang, phraseAskName), false

	case IntentChapel:
		if s.chapelCommitted {
			return say(s.lang, phraseChapelBooked, s.chapel.date, s.chapel.timeSlot), false
		}
		s.state = StateChapelDate
		return say(s.lang, phraseAskChapelDate), false

	case IntentVolunteer:
		if s.volCommitted {
			return say(s.lang, phraseVolRegistered), false
		}
		s.state = StateVolunteerName
		return say(s.lang, phraseAskVolName), false

	case IntentDonation:
		return say(s.lang, phraseDonationInfo), false

	default:
		return say(s.lang, phraseClarify), false
	}
}

// handleBedConfirm fires the reservation tool exactly once on an
// affirmative answer.
func (s *Session) handleBedConfirm(ctx context.Context, text string) (string, bool) {
	lower := strings.ToLower(text)
	if containsAny(lower, negatives) {
		s.state = StateClassify
		return say(s.lang, phraseReserveDeclined), false
	}
	if !containsAny(lower, affirmatives) {
		return say(s.lang, phraseConfirmReserve), false
	}

	if s.bedCommitted {
		return say(s.lang, phraseAlreadyReserved, s.reservedCode, s.reservedBed), false
	}

	var res ReserveResult
	err := s.withRetry(func() error {
		var callErr error
		res, callErr = s.tools.ReserveBed(ctx, s.callerHash, s.bed.name, s.bed.situation, s.bed.needs, s.lang)
		return callErr
	})
	if err != nil {
		if errors.Is(err, reservation.ErrNoCapacity) {
			s.state = StateClassify
			return say(s.lang, phraseNoCapacity, models.TotalBeds), false
		}
		s.state = StateClassify
		return s.toolFailure(err), false
	}

	s.bedCommitted = true
	s.reservedCode = res.Code
	s.reservedBed = res.BedID
	s.state = StateClassify
	log.Info().Str("session", s.id).Str("code", res.Code).Int("bed_id", res.BedID).
		Msg("session reserved bed")
	return say(s.lang, phraseReserved, res.BedID, res.Code, res.Code), false
}

// handleChapelSchedule fires the chapel tool exactly once.
func (s *Session) handleChapelSchedule(ctx context.Context) (string, bool) {
	if s.chapelCommitted {
		return say(s.lang, phraseChapelBooked, s.chapel.date, s.chapel.timeSlot), false
	}

	var res ChapelResult
	err := s.withRetry(func() error {
		var callErr error
		res, callErr = s.tools.ScheduleChapelService(ctx, s.chapel.date, s.chapel.timeSlot, s.chapel.group, s.chapel.contactName, s.chapel.contactPhone)
		return callErr
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrWeekendDisallowed):
			s.state = StateChapelDate
			return say(s.lang, phraseChapelWeekend), false
		case errors.Is(err, ErrSlotTaken):
			s.state = StateChapelDate
			return say(s.lang, phraseChapelSlotTaken), false
		case errors.Is(err, ErrInvalidTime):
			s.state = StateChapelTime
			return say(s.lang, phraseChapelBadTime), false
		}
		s.state = StateClassify
		return s.toolFailure(err), false
	}

	s.chapelCommitted = true
	s.state = StateClassify
	return say(s.lang, phraseChapelBooked, res.Date, res.Time), false
}

// handleVolunteerRegister fires the volunteer tool exactly once.
func (s *Session) handleVolunteerRegister(ctx context.Context) (string, bool) {
	if s.volCommitted {
		return say(s.lang, phraseVolRegistered), false
	}

	err := s.withRetry(func() error {
		_, callErr := s.tools.RegisterVolunteer(ctx, s.volunteer.name, s.volunteer.phone, "", s.volunteer.availability, s.volunteer.interests)
		return callErr
	})
	if err != nil {
		s.state = StateClassify
		return s.toolFailure(err), false
	}

	s.volCommitted = true
	s.state = StateClassify
	return say(s.lang, phraseVolRegistered), false
}

// checkAvailability is a read-only tool call with the standard retry.
func (s *Session) checkAvailability(ctx context.Context) (AvailabilityResult, error) {
	var res AvailabilityResult
	err := s.withRetry(func() error {
		var callErr error
		res, callErr = s.tools.CheckAvailability(ctx)
		return callErr
	})
	return res, err
}

// withRetry applies the router's uniform timeout policy: a timed-out call
// is retried up to the configured cap, everything else surfaces as is.
func (s *Session) withRetry(fn func() error) error {
	err := fn()
	for attempt := 0; errors.Is(err, ErrTimeout) && attempt < s.tools.RetryMax(); attempt++ {
		err = fn()
	}
	return err
}

// toolFailure renders a degraded apology for errors the caller can't fix.
func (s *Session) toolFailure(err error) string {
	log.Warn().Err(err).Str("session", s.id).Msg("tool call failed")
	if errors.Is(err, ErrTimeout) {
		return say(s.lang, phraseApologyDegrade)
	}
	if errors.Is(err, reservation.ErrValidation) {
		return say(s.lang, phraseClarify)
	}
	return say(s.lang, phraseApologyDegrade)
}

// Close finalizes the session once: the call log row is written and the
// outcome counted. Safe to call from both the run loop and the session
// manager.
func (s *Session) Close(outcome string) {
	if s.closed {
		return
	}
	s.closed = true
	if s.riskFlag != "" && outcome == "completed" {
		outcome = "crisis"
	}
	metrics.CallSessions.WithLabelValues(outcome).Inc()
	s.logCall(outcome)
}

// logCall records the call outcome for staff review.
func (s *Session) logCall(outcome string) {
	if s.callLogs == nil {
		return
	}

	var summary strings.Builder
	if s.bed.name != "" {
		summary.WriteString("Name: " + s.bed.name + "\n")
	}
	if s.bed.situation != "" {
		summary.WriteString("Situation: " + s.bed.situation + "\n")
	}
	if s.bed.needs != "" {
		summary.WriteString("Needs: " + s.bed.needs + "\n")
	}
	summary.WriteString("Outcome: " + outcome)

	entry := &models.CallLog{
		CallSID:         s.id,
		CallerHash:      s.callerHash,
		Intent:          string(s.firstIntent),
		Summary:         summary.String(),
		RiskFlag:        s.riskFlag,
		DurationSeconds: int(time.Since(s.startedAt).Seconds()),
	}
	if s.bedCommitted {
		entry.ReservationID = s.reservedCode
	}
	if err := s.callLogs.Create(context.Background(), entry); err != nil {
		log.Error().Err(err).Str("session", s.id).Msg("writing call log")
	}
}

// parseChapelTime maps a spoken time onto one of the fixed slots.
func parseChapelTime(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "10"):
		return "10:00"
	case strings.Contains(lower, "13") || strings.Contains(lower, "1 pm") || strings.Contains(lower, "1pm"):
		return "13:00"
	case strings.Contains(lower, "19") || strings.Contains(lower, "7 pm") || strings.Contains(lower, "7pm"):
		return "19:00"
	}
	return ""
}

// splitContact separates "Jane Smith 555-0142" into name and phone by
// peeling trailing digit-heavy tokens.
func splitContact(text string) (name, phone string) {
	fields := strings.Fields(text)
	for i := len(fields) - 1; i >= 0; i-- {
		if strings.IndexFunc(fields[i], func(r rune) bool { return r >= '0' && r <= '9' }) >= 0 {
			phone = strings.Join(fields[i:], " ")
			name = strings.Join(fields[:i], " ")
			return name, phone
		}
	}
	return text, ""
}

// splitList breaks a spoken enumeration on commas and "and".
func splitList(text string) []string {
	replaced := strings.NewReplacer(" and ", ",", " y ", ",", " e ", ",", " et ", ",").Replace(text)
	parts := strings.Split(replaced, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
