package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bethesda-shelter/backend/internal/reservation"
	"github.com/bethesda-shelter/backend/internal/storage"
	"github.com/bethesda-shelter/backend/internal/storage/models"
)

// Tool-level error kinds. Validation happens inside the tool; nothing is
// trusted from the session.
var (
	// ErrTimeout means the tool exceeded its per-call deadline.
	ErrTimeout = errors.New("tool call deadline exceeded")

	// ErrWeekendDisallowed rejects chapel bookings on Saturday or Sunday.
	ErrWeekendDisallowed = errors.New("chapel services run on weekdays only")

	// ErrInvalidTime rejects chapel times outside the fixed slots.
	ErrInvalidTime = errors.New("invalid chapel time slot")

	// ErrSlotTaken means another group already booked that date and time.
	ErrSlotTaken = errors.New("chapel slot already booked")
)

// AvailabilityResult is the result of the check_availability tool.
type AvailabilityResult struct {
	Available int
}

// ReserveResult is the result of the reserve_bed tool.
type ReserveResult struct {
	Code  string
	BedID int
}

// ChapelResult is the result of the schedule_chapel_service tool.
type ChapelResult struct {
	ID   int64
	Date string
	Time string
}

// VolunteerResult is the result of the register_volunteer tool.
type VolunteerResult struct {
	ID int64
}

// ToolRouter exposes the closed tool set the call session may invoke.
// One deadline and retry policy applies to every tool: each call carries
// the configured per-call deadline, and a timed-out call is retried at
// most retryMax times by the session before degrading.
type ToolRouter struct {
	service    *reservation.Service
	chapels    *storage.ChapelRepository
	volunteers *storage.VolunteerRepository

	deadline time.Duration
	retryMax int
}

// NewToolRouter creates the tool router.
func NewToolRouter(service *reservation.Service, chapels *storage.ChapelRepository, volunteers *storage.VolunteerRepository, deadline time.Duration, retryMax int) *ToolRouter {
	return &ToolRouter{
		service:    service,
		chapels:    chapels,
		volunteers: volunteers,
		deadline:   deadline,
		retryMax:   retryMax,
	}
}

// RetryMax returns how many times the session may re-issue a timed-out tool.
func (t *ToolRouter) RetryMax() int {
	return t.retryMax
}

// CheckAvailability returns the count of available beds.
func (t *ToolRouter) CheckAvailability(ctx context.Context) (AvailabilityResult, error) {
	var out AvailabilityResult
	err := t.call(ctx, "check_availability", func(ctx context.Context) error {
		n, err := t.service.AvailableCount(ctx)
		if err != nil {
			return err
		}
		out.Available = n
		return nil
	})
	return out, err
}

// ReserveBed allocates a bed for the caller. Maps directly onto the
// reservation service's allocation contract.
func (t *ToolRouter) ReserveBed(ctx context.Context, callerHash, name, situation, needs, language string) (ReserveResult, error) {
	if strings.TrimSpace(name) == "" {
		return ReserveResult{}, fmt.Errorf("%w: caller name is required", reservation.ErrValidation)
	}

	var out ReserveResult
	err := t.call(ctx, "reserve_bed", func(ctx context.Context) error {
		res, err := t.service.Create(ctx, reservation.CreateParams{
			CallerHash: callerHash,
			CallerName: name,
			Situation:  situation,
			Needs:      needs,
			Language:   language,
		})
		if err != nil {
			return err
		}
		out.Code = res.Code
		out.BedID = res.BedID
		return nil
	})
	return out, err
}

// ScheduleChapelService books a chapel slot. Weekdays only; the time must
// be one of the fixed slots; one non-cancelled booking per slot.
func (t *ToolRouter) ScheduleChapelService(ctx context.Context, date, timeSlot, group, contactName, contactPhone string) (ChapelResult, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ChapelResult{}, fmt.Errorf("%w: date must be YYYY-MM-DD", reservation.ErrValidation)
	}
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return ChapelResult{}, ErrWeekendDisallowed
	}
	if !models.ValidChapelTime(timeSlot) {
		return ChapelResult{}, ErrInvalidTime
	}
	if strings.TrimSpace(group) == "" || strings.TrimSpace(contactName) == "" {
		return ChapelResult{}, fmt.Errorf("%w: group and contact are required", reservation.ErrValidation)
	}

	var out ChapelResult
	err = t.call(ctx, "schedule_chapel_service", func(ctx context.Context) error {
		svc := &models.ChapelService{
			Date:         date,
			Time:         timeSlot,
			GroupName:    group,
			ContactName:  contactName,
			ContactPhone: contactPhone,
			Status:       models.ChapelPending,
		}
		if err := t.chapels.Create(ctx, svc); err != nil {
			if errors.Is(err, storage.ErrSlotTaken) {
				return ErrSlotTaken
			}
			return err
		}
		out.ID = svc.ID
		out.Date = svc.Date
		out.Time = svc.Time
		return nil
	})
	return out, err
}

// RegisterVolunteer records a volunteer signup.
func (t *ToolRouter) RegisterVolunteer(ctx context.Context, name, phone, email string, availability, interests []string) (VolunteerResult, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(phone) == "" {
		return VolunteerResult{}, fmt.Errorf("%w: name and phone are required", reservation.ErrValidation)
	}

	var out VolunteerResult
	err := t.call(ctx, "register_volunteer", func(ctx context.Context) error {
		v := &models.Volunteer{
			Name:         name,
			Phone:        phone,
			Email:        email,
			Availability: availability,
			Interests:    interests,
			Status:       models.VolunteerPending,
		}
		if err := t.volunteers.Create(ctx, v); err != nil {
			return err
		}
		out.ID = v.ID
		return nil
	})
	return out, err
}

// call runs one tool invocation under the router's deadline. The deadline
// context derives from Background, not the session context: a hangup lets
// an in-flight tool finish and commit, preserving exactly-once semantics.
func (t *ToolRouter) call(_ context.Context, name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.deadline)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	case <-ctx.Done():
		log.Warn().Str("tool", name).Dur("deadline", t.deadline).Msg("tool call timed out")
		return ErrTimeout
	}
}
