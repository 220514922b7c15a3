package domain

// TransitionKind classifies an allowed status change.
type TransitionKind int

const (
	TransitionIllegal TransitionKind = iota
	TransitionNormal
	// TransitionReopen moves a terminal ticket back to Open. It requires an
	// administrator.
	TransitionReopen
)

// ClassifyTransition looks up from -> to in the transition table.
//
// Non-terminal states move freely among themselves and into any terminal
// state. Terminal states may only repeat themselves, or be reopened to Open.
func ClassifyTransition(from, to TicketStatus) TransitionKind {
	if !from.Valid() || !to.Valid() {
		return TransitionIllegal
	}
	if !from.IsTerminal() {
		return TransitionNormal
	}
	switch {
	case from == to:
		return TransitionNormal
	case to == TicketStatusOpen:
		return TransitionReopen
	default:
		return TransitionIllegal
	}
}

// AllowedTransitions returns the statuses reachable from from for role.
func AllowedTransitions(from TicketStatus, role UserRole) []TicketStatus {
	allowed := make([]TicketStatus, 0, len(TicketStatuses))
	for _, to := range TicketStatuses {
		switch ClassifyTransition(from, to) {
		case TransitionNormal:
			allowed = append(allowed, to)
		case TransitionReopen:
			if role.CanReopen() {
				allowed = append(allowed, to)
			}
		}
	}
	return allowed
}
