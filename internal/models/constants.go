package models

// User roles carried in access-token claims.
const (
	RoleCustomer = "customer"
	RoleTailor   = "tailor"
	RoleAdmin    = "admin"
)

// Notification event names.
const (
	EventMilestoneSubmitted    = "milestone_submitted"
	EventMilestoneApproved     = "milestone_approved"
	EventMilestoneRejected     = "milestone_rejected"
	EventMilestoneAutoApproved = "milestone_auto_approved"
	EventEscrowReleased        = "escrow_released"
	EventDisputeResolved       = "dispute_resolved"
	EventDisputeOpened         = "dispute_opened"
)
