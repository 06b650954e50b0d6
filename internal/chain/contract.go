package chain

// Compiled-in deployment data for the AgentFund escrow contract. The RPC
// endpoint is the only part of chain addressing that is configurable.
const (
	ContractAddressHex = "0x3bC1eC9b4a3eA5C8F1bD5c1c7E6f9dD2a84F7b19"
	ChainName          = "Base Sepolia"
	ChainID            = 84532

	// PlatformFeeText is descriptive only; the fee is enforced on-chain.
	PlatformFeeText = "2%"
)

const escrowABI = `[
  {
    "type": "function",
    "name": "createProject",
    "stateMutability": "payable",
    "inputs": [
      {"name": "agent", "type": "address"},
      {"name": "milestoneAmounts", "type": "uint256[]"}
    ],
    "outputs": [{"name": "projectId", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "releaseMilestone",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "projectId", "type": "uint256"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "cancelProject",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "projectId", "type": "uint256"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getProject",
    "stateMutability": "view",
    "inputs": [{"name": "projectId", "type": "uint256"}],
    "outputs": [
      {"name": "funder", "type": "address"},
      {"name": "agent", "type": "address"},
      {"name": "totalAmount", "type": "uint256"},
      {"name": "releasedAmount", "type": "uint256"},
      {"name": "currentMilestone", "type": "uint256"},
      {"name": "totalMilestones", "type": "uint256"},
      {"name": "status", "type": "uint8"}
    ]
  },
  {
    "type": "function",
    "name": "projectCount",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  }
]`
