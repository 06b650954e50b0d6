package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/xiy/agentfund-mcp/internal/chain"
	"github.com/xiy/agentfund-mcp/internal/config"
	"github.com/xiy/agentfund-mcp/pkg/types"
)

// ErrInvalidState marks an encode request that the project's current status
// forbids.
var ErrInvalidState = errors.New("invalid project state")

// Chain is the capability surface the service needs from the chain client.
// The real implementation is chain.Client; tests substitute a fixture.
type Chain interface {
	GetProject(ctx context.Context, id uint64) (types.Project, error)
	GetProjectCount(ctx context.Context) (uint64, error)
	EncodeCreateProject(agentAddress string, milestoneAmounts []string) ([]byte, *big.Int, error)
	EncodeReleaseMilestone(projectID uint64) ([]byte, error)
	EncodeCancelProject(projectID uint64) ([]byte, error)
	ContractAddress() string
}

// Service renders escrow tool responses. It holds only immutable
// configuration and is safe for concurrent use.
type Service struct {
	chain  Chain
	cfg    config.Config
	logger *log.Logger
}

// NewService constructs an escrow service.
func NewService(ch Chain, cfg config.Config, logger *log.Logger) *Service {
	return &Service{chain: ch, cfg: cfg, logger: logger}
}

// ProjectReport fetches one project and renders the full report.
func (s *Service) ProjectReport(ctx context.Context, in types.GetProjectInput) (string, error) {
	id, err := parseProjectID(in.ProjectID)
	if err != nil {
		return "", err
	}
	p, err := s.chain.GetProject(ctx, id)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "AgentFund Project #%d\n", p.ID)
	fmt.Fprintf(&b, "Status:     %s\n", p.Status.Label())
	fmt.Fprintf(&b, "Funder:     %s\n", p.Funder)
	fmt.Fprintf(&b, "Agent:      %s\n", p.Agent)
	fmt.Fprintf(&b, "Total:      %s ETH\n", chain.FormatWei(p.TotalAmount))
	fmt.Fprintf(&b, "Released:   %s ETH\n", chain.FormatWei(p.ReleasedAmount))
	fmt.Fprintf(&b, "Remaining:  %s ETH\n", chain.FormatWei(p.Remaining()))
	fmt.Fprintf(&b, "Milestone:  %d of %d", p.CurrentMilestone, p.TotalMilestones)
	return b.String(), nil
}

// Stats renders contract identity and the current project count.
func (s *Service) Stats(ctx context.Context) (string, error) {
	count, err := s.chain.GetProjectCount(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "AgentFund Escrow on %s (chain id %d)\n", chain.ChainName, chain.ChainID)
	fmt.Fprintf(&b, "Contract:       %s\n", s.chain.ContractAddress())
	fmt.Fprintf(&b, "Platform fee:   %s\n", chain.PlatformFeeText)
	fmt.Fprintf(&b, "Total projects: %d", count)
	return b.String(), nil
}

// FindProjectsByAgent scans project ids 1..min(count, scan_limit) and lists
// the ones funding the given agent address. Per-id read failures are skipped
// so one bad id cannot abort the scan.
func (s *Service) FindProjectsByAgent(ctx context.Context, in types.FindProjectsInput) (string, error) {
	addr := strings.TrimSpace(in.AgentAddress)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q", chain.ErrInvalidAddress, in.AgentAddress)
	}
	want := common.HexToAddress(addr)

	count, err := s.chain.GetProjectCount(ctx)
	if err != nil {
		return "", err
	}
	if count == 0 {
		return noneFound(want.Hex()), nil
	}

	limit := min(count, uint64(s.cfg.ScanLimit))
	matches := make([]types.Project, 0, 4)
	for id := uint64(1); id <= limit; id++ {
		p, err := s.chain.GetProject(ctx, id)
		if err != nil {
			s.logger.Debug("skipping unreadable project during scan", "id", id, "error", err)
			continue
		}
		if common.HexToAddress(p.Agent) == want {
			matches = append(matches, p)
		}
	}

	if len(matches) == 0 {
		return noneFound(want.Hex()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Projects for agent %s (%d match in first %d ids):\n", want.Hex(), len(matches), limit)
	for _, p := range matches {
		fmt.Fprintf(&b, "#%d  %-10s total %s ETH, released %s ETH, milestone %d of %d\n",
			p.ID, p.Status.Label(), chain.FormatWei(p.TotalAmount), chain.FormatWei(p.ReleasedAmount),
			p.CurrentMilestone, p.TotalMilestones)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// CreateFundraise encodes a createProject transaction and renders the
// proposal for the funder to sign elsewhere.
func (s *Service) CreateFundraise(_ context.Context, in types.CreateFundraiseInput) (string, error) {
	data, total, err := s.chain.EncodeCreateProject(in.AgentAddress, in.MilestoneAmounts)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Fundraise proposal for agent %s\n", common.HexToAddress(in.AgentAddress).Hex())
	fmt.Fprintf(&b, "Milestones: %d totalling %s ETH (%s)\n", len(in.MilestoneAmounts),
		chain.FormatWei(total), strings.Join(in.MilestoneAmounts, ", "))
	if desc := strings.TrimSpace(in.Description); desc != "" {
		fmt.Fprintf(&b, "Description: %s\n", desc)
	}
	b.WriteString("\n")
	b.WriteString(renderUnsignedTx(types.UnsignedTx{
		To:    s.chain.ContractAddress(),
		Data:  hexutil.Encode(data),
		Value: total,
	}))
	return b.String(), nil
}

// MilestoneStatus renders a progress summary that branches on project status.
func (s *Service) MilestoneStatus(ctx context.Context, in types.GetProjectInput) (string, error) {
	id, err := parseProjectID(in.ProjectID)
	if err != nil {
		return "", err
	}
	p, err := s.chain.GetProject(ctx, id)
	if err != nil {
		return "", err
	}

	switch p.Status {
	case types.StatusCompleted:
		return fmt.Sprintf("Project #%d is complete. All %d milestones are done and the agent has received the full %s ETH.",
			p.ID, p.TotalMilestones, chain.FormatWei(p.TotalAmount)), nil
	case types.StatusCancelled:
		return fmt.Sprintf("Project #%d was cancelled. %s ETH had been released to the agent; %s ETH was refunded to the funder.",
			p.ID, chain.FormatWei(p.ReleasedAmount), chain.FormatWei(p.Remaining())), nil
	case types.StatusActive:
		return fmt.Sprintf("Project #%d is active on milestone %d of %d. %s of %s ETH released so far; %s ETH remaining in escrow.",
			p.ID, p.CurrentMilestone, p.TotalMilestones,
			chain.FormatWei(p.ReleasedAmount), chain.FormatWei(p.TotalAmount), chain.FormatWei(p.Remaining())), nil
	default:
		return fmt.Sprintf("Project #%d has status %s (code %d). %s of %s ETH released.",
			p.ID, p.Status.Label(), uint8(p.Status),
			chain.FormatWei(p.ReleasedAmount), chain.FormatWei(p.TotalAmount)), nil
	}
}

// ReleaseRequest encodes a releaseMilestone transaction for an Active
// project. Non-Active projects fail without any encoding call.
func (s *Service) ReleaseRequest(ctx context.Context, in types.GetProjectInput) (string, error) {
	id, err := parseProjectID(in.ProjectID)
	if err != nil {
		return "", err
	}
	p, err := s.chain.GetProject(ctx, id)
	if err != nil {
		return "", err
	}
	if p.Status != types.StatusActive {
		return "", fmt.Errorf("%w: cannot release a milestone on project %d because it is %s",
			ErrInvalidState, p.ID, p.Status.Label())
	}

	data, err := s.chain.EncodeReleaseMilestone(id)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Milestone release request for project #%d (milestone %d of %d, %s ETH remaining)\n\n",
		p.ID, p.CurrentMilestone, p.TotalMilestones, chain.FormatWei(p.Remaining()))
	b.WriteString(renderUnsignedTx(types.UnsignedTx{
		To:    s.chain.ContractAddress(),
		Data:  hexutil.Encode(data),
		Value: new(big.Int),
	}))
	return b.String(), nil
}

// CancelRequest encodes a cancelProject transaction. The contract itself
// enforces cancellation rules, so no local status assertion is made.
func (s *Service) CancelRequest(ctx context.Context, in types.GetProjectInput) (string, error) {
	id, err := parseProjectID(in.ProjectID)
	if err != nil {
		return "", err
	}
	p, err := s.chain.GetProject(ctx, id)
	if err != nil {
		return "", err
	}

	data, err := s.chain.EncodeCancelProject(id)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cancellation request for project #%d (currently %s; %s ETH would be refunded to the funder)\n\n",
		p.ID, p.Status.Label(), chain.FormatWei(p.Remaining()))
	b.WriteString(renderUnsignedTx(types.UnsignedTx{
		To:    s.chain.ContractAddress(),
		Data:  hexutil.Encode(data),
		Value: new(big.Int),
	}))
	return b.String(), nil
}

func renderUnsignedTx(tx types.UnsignedTx) string {
	var b strings.Builder
	b.WriteString("Unsigned transaction (requires the funder's signature; this server never signs or broadcasts):\n")
	fmt.Fprintf(&b, "To:    %s\n", tx.To)
	fmt.Fprintf(&b, "Value: %s wei (%s ETH)\n", tx.Value.String(), chain.FormatWei(tx.Value))
	fmt.Fprintf(&b, "Data:  %s", tx.Data)
	return b.String()
}

func parseProjectID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("project_id must be a positive integer, got %q", s)
	}
	return id, nil
}

func noneFound(agent string) string {
	return fmt.Sprintf("No projects found for agent %s.", agent)
}
