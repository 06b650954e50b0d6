package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/xiy/agentfund-mcp/pkg/types"
)

// ErrInvalidAddress marks a string that is not a hex EVM address.
var ErrInvalidAddress = errors.New("invalid address")

// Backend is the subset of ethclient.Client needed for contract reads.
// Tests substitute a fixture implementation.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client performs view calls and calldata encoding against the fixed escrow
// deployment. It holds only immutable configuration and is safe for
// unsynchronized concurrent use.
type Client struct {
	backend  Backend
	contract common.Address
	abi      abi.ABI
}

// Dial connects to the RPC endpoint and binds the escrow contract.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, errors.New("rpc url must not be empty")
	}
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	return NewClient(eth)
}

// NewClient binds the escrow contract over an existing backend.
func NewClient(backend Backend) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}
	return &Client{
		backend:  backend,
		contract: common.HexToAddress(ContractAddressHex),
		abi:      parsed,
	}, nil
}

// Close releases the underlying RPC connection when one exists.
func (c *Client) Close() {
	if eth, ok := c.backend.(*ethclient.Client); ok {
		eth.Close()
	}
}

// ContractAddress returns the bound escrow address in checksum form.
func (c *Client) ContractAddress() string {
	return c.contract.Hex()
}

// GetProject reads one project tuple from the contract. Out-of-range ids
// surface as chain errors from the reverting call.
func (c *Client) GetProject(ctx context.Context, id uint64) (types.Project, error) {
	data, err := c.abi.Pack("getProject", new(big.Int).SetUint64(id))
	if err != nil {
		return types.Project{}, fmt.Errorf("pack getProject: %w", err)
	}
	res, err := c.call(ctx, data)
	if err != nil {
		return types.Project{}, fmt.Errorf("read project %d: %w", id, err)
	}

	vals, err := c.abi.Unpack("getProject", res)
	if err != nil {
		return types.Project{}, fmt.Errorf("decode project %d: %w", id, err)
	}
	if len(vals) != 7 {
		return types.Project{}, fmt.Errorf("decode project %d: expected 7 fields, got %d", id, len(vals))
	}

	funder, ok0 := vals[0].(common.Address)
	agent, ok1 := vals[1].(common.Address)
	total, ok2 := vals[2].(*big.Int)
	released, ok3 := vals[3].(*big.Int)
	current, ok4 := vals[4].(*big.Int)
	milestones, ok5 := vals[5].(*big.Int)
	status, ok6 := vals[6].(uint8)
	if !ok0 || !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return types.Project{}, fmt.Errorf("decode project %d: unexpected field types", id)
	}

	return types.Project{
		ID:               id,
		Funder:           funder.Hex(),
		Agent:            agent.Hex(),
		TotalAmount:      total,
		ReleasedAmount:   released,
		CurrentMilestone: current.Uint64(),
		TotalMilestones:  milestones.Uint64(),
		Status:           types.ProjectStatus(status),
	}, nil
}

// GetProjectCount reads the total number of projects ever created.
func (c *Client) GetProjectCount(ctx context.Context) (uint64, error) {
	data, err := c.abi.Pack("projectCount")
	if err != nil {
		return 0, fmt.Errorf("pack projectCount: %w", err)
	}
	res, err := c.call(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("read project count: %w", err)
	}
	vals, err := c.abi.Unpack("projectCount", res)
	if err != nil {
		return 0, fmt.Errorf("decode project count: %w", err)
	}
	count, ok := vals[0].(*big.Int)
	if !ok {
		return 0, errors.New("decode project count: unexpected type")
	}
	return count.Uint64(), nil
}

// EncodeCreateProject converts the milestone amounts to wei, sums them with
// exact integer arithmetic, and packs the createProject calldata. Nothing is
// signed or submitted.
func (c *Client) EncodeCreateProject(agentAddress string, milestoneAmounts []string) ([]byte, *big.Int, error) {
	if !common.IsHexAddress(agentAddress) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidAddress, agentAddress)
	}
	values, total, err := ParseAmounts(milestoneAmounts)
	if err != nil {
		return nil, nil, err
	}
	data, err := c.abi.Pack("createProject", common.HexToAddress(agentAddress), values)
	if err != nil {
		return nil, nil, fmt.Errorf("pack createProject: %w", err)
	}
	return data, total, nil
}

// EncodeReleaseMilestone packs releaseMilestone calldata for one project.
func (c *Client) EncodeReleaseMilestone(projectID uint64) ([]byte, error) {
	data, err := c.abi.Pack("releaseMilestone", new(big.Int).SetUint64(projectID))
	if err != nil {
		return nil, fmt.Errorf("pack releaseMilestone: %w", err)
	}
	return data, nil
}

// EncodeCancelProject packs cancelProject calldata for one project.
func (c *Client) EncodeCancelProject(projectID uint64) ([]byte, error) {
	data, err := c.abi.Pack("cancelProject", new(big.Int).SetUint64(projectID))
	if err != nil {
		return nil, fmt.Errorf("pack cancelProject: %w", err)
	}
	return data, nil
}

func (c *Client) call(ctx context.Context, data []byte) ([]byte, error) {
	res, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, errors.New("empty call result (no contract at address?)")
	}
	return res, nil
}
