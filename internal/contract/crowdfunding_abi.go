package contract

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Method names of the CrowdFunding contract.
const (
	MethodGetCampaigns      = "getCampaigns"
	MethodCreateCampaign    = "createCampaign"
	MethodDonateToCampaign  = "donateToCampaign"
	MethodGetDonators       = "getDonators"
	MethodNumberOfCampaigns = "numberOfCampaigns"
)

// DefaultAddress is where the first deployment on a fresh local hardhat node
// ends up.
const DefaultAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

// crowdFundingABI is the deployed CrowdFunding interface. All amounts are in
// wei.
//
//	getCampaigns()                                  → tuple[]
//	createCampaign(address,string,string,u256,u256) → uint256
//	donateToCampaign(uint256)                       payable
//	getDonators(uint256)                            → (address[], uint256[])
//	numberOfCampaigns()                             → uint256
const crowdFundingABI = `[
  {
    "type": "function",
    "name": "getCampaigns",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{
      "name": "",
      "type": "tuple[]",
      "components": [
        {"name": "owner", "type": "address"},
        {"name": "title", "type": "string"},
        {"name": "description", "type": "string"},
        {"name": "target", "type": "uint256"},
        {"name": "deadline", "type": "uint256"},
        {"name": "amountCollected", "type": "uint256"}
      ]
    }]
  },
  {
    "type": "function",
    "name": "createCampaign",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "_owner", "type": "address"},
      {"name": "_title", "type": "string"},
      {"name": "_description", "type": "string"},
      {"name": "_target", "type": "uint256"},
      {"name": "_deadline", "type": "uint256"}
    ],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "donateToCampaign",
    "stateMutability": "payable",
    "inputs": [{"name": "_id", "type": "uint256"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "getDonators",
    "stateMutability": "view",
    "inputs": [{"name": "_id", "type": "uint256"}],
    "outputs": [
      {"name": "", "type": "address[]"},
      {"name": "", "type": "uint256[]"}
    ]
  },
  {
    "type": "function",
    "name": "numberOfCampaigns",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  }
]`

// RawCampaign is one element of getCampaigns() exactly as the chain returns
// it. Field names must match the ABI tuple components.
type RawCampaign struct {
	Owner           common.Address
	Title           string
	Description     string
	Target          *big.Int
	Deadline        *big.Int
	AmountCollected *big.Int
}

var (
	parsedOnce sync.Once
	parsedABI  abi.ABI
	parseErr   error
)

// CrowdFundingABI returns the parsed contract interface.
func CrowdFundingABI() (abi.ABI, error) {
	parsedOnce.Do(func() {
		parsedABI, parseErr = abi.JSON(strings.NewReader(crowdFundingABI))
		if parseErr != nil {
			parseErr = fmt.Errorf("parsing CrowdFunding ABI: %w", parseErr)
		}
	})
	return parsedABI, parseErr
}
