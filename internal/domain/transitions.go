package domain

// Machine names one of the state machines governing listings and applications.
type Machine string

const (
	MachineModeration   Machine = "moderation"
	MachineAvailability Machine = "availability"
	MachineApplication  Machine = "application"
)

// Event represents an action that triggers a state transition.
type Event string

const (
	// Moderation and application decisions.
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
	EventResubmit Event = "resubmit"

	// Availability.
	EventApplicationSubmitted Event = "application_submitted"
	EventApplicationReleased  Event = "application_released"
	EventApplicationApproved  Event = "application_approved"
	EventDeactivate           Event = "deactivate"
	EventReactivate           Event = "reactivate"

	// Application only.
	EventReview   Event = "review"
	EventWithdraw Event = "withdraw"
)

// Transition defines a valid state change: an event moves a record from Src to Dst.
type Transition struct {
	Event Event
	Src   string
	Dst   string
}

// ModerationTransitions gate public visibility. Approved and rejected are
// terminal until an edit resubmits the listing.
var ModerationTransitions = []Transition{
	{Event: EventApprove, Src: string(ModerationPending), Dst: string(ModerationApproved)},
	{Event: EventReject, Src: string(ModerationPending), Dst: string(ModerationRejected)},
	{Event: EventResubmit, Src: string(ModerationApproved), Dst: string(ModerationPending)},
	{Event: EventResubmit, Src: string(ModerationRejected), Dst: string(ModerationPending)},
}

// AvailabilityTransitions map application events to listing availability.
// Adopted has no outgoing transitions.
var AvailabilityTransitions = []Transition{
	{Event: EventApplicationSubmitted, Src: string(AvailabilityAvailable), Dst: string(AvailabilityUnderReview)},
	{Event: EventApplicationReleased, Src: string(AvailabilityUnderReview), Dst: string(AvailabilityAvailable)},
	{Event: EventApplicationApproved, Src: string(AvailabilityUnderReview), Dst: string(AvailabilityAdopted)},
	{Event: EventDeactivate, Src: string(AvailabilityAvailable), Dst: string(AvailabilityInactive)},
	{Event: EventDeactivate, Src: string(AvailabilityUnderReview), Dst: string(AvailabilityInactive)},
	{Event: EventReactivate, Src: string(AvailabilityInactive), Dst: string(AvailabilityAvailable)},
}

// ApplicationTransitions cover decisions and withdrawal. Approved, rejected
// and withdrawn are terminal.
var ApplicationTransitions = []Transition{
	{Event: EventReview, Src: string(ApplicationPending), Dst: string(ApplicationReviewing)},
	{Event: EventApprove, Src: string(ApplicationPending), Dst: string(ApplicationApproved)},
	{Event: EventApprove, Src: string(ApplicationReviewing), Dst: string(ApplicationApproved)},
	{Event: EventReject, Src: string(ApplicationPending), Dst: string(ApplicationRejected)},
	{Event: EventReject, Src: string(ApplicationReviewing), Dst: string(ApplicationRejected)},
	{Event: EventWithdraw, Src: string(ApplicationPending), Dst: string(ApplicationWithdrawn)},
	{Event: EventWithdraw, Src: string(ApplicationReviewing), Dst: string(ApplicationWithdrawn)},
}

// Transitions returns the transition table of the given machine.
func Transitions(m Machine) []Transition {
	switch m {
	case MachineModeration:
		return ModerationTransitions
	case MachineAvailability:
		return AvailabilityTransitions
	case MachineApplication:
		return ApplicationTransitions
	}
	return nil
}
