package types

import "math/big"

// ProjectStatus mirrors the escrow contract's status enum.
type ProjectStatus uint8

const (
	StatusActive    ProjectStatus = 0
	StatusCompleted ProjectStatus = 1
	StatusCancelled ProjectStatus = 2
)

// Label renders the status for humans. Values outside the contract enum
// render as "Unknown" instead of failing.
func (s ProjectStatus) Label() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Project is one escrow project as read from the contract. It is derived
// per call and never persisted by this server.
type Project struct {
	ID               uint64        `json:"id"`
	Funder           string        `json:"funder"`
	Agent            string        `json:"agent"`
	TotalAmount      *big.Int      `json:"total_amount"`
	ReleasedAmount   *big.Int      `json:"released_amount"`
	CurrentMilestone uint64        `json:"current_milestone"`
	TotalMilestones  uint64        `json:"total_milestones"`
	Status           ProjectStatus `json:"status"`
}

// Remaining returns totalAmount - releasedAmount in wei.
func (p Project) Remaining() *big.Int {
	if p.TotalAmount == nil || p.ReleasedAmount == nil {
		return new(big.Int)
	}
	return new(big.Int).Sub(p.TotalAmount, p.ReleasedAmount)
}

// UnsignedTx is calldata prepared for an external signer. This server never
// signs or broadcasts it.
type UnsignedTx struct {
	To    string   `json:"to"`
	Data  string   `json:"data"`
	Value *big.Int `json:"value"`
}

// GetProjectInput identifies one project by its decimal id string.
type GetProjectInput struct {
	ProjectID string `json:"project_id"`
}

// FindProjectsInput requests a scan for projects funding one agent address.
type FindProjectsInput struct {
	AgentAddress string `json:"agent_address"`
}

// CreateFundraiseInput describes a project-creation transaction to encode.
type CreateFundraiseInput struct {
	AgentAddress     string   `json:"agent_address"`
	MilestoneAmounts []string `json:"milestone_amounts"`
	Description      string   `json:"description,omitempty"`
}
