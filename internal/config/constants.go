package config

import "time"

// GasLimitContractCall is the EstimateGas fallback for createCampaign and
// donateToCampaign when the node cannot simulate the tx.
const GasLimitContractCall = uint64(200_000)

// Timeouts used across cmd.
const (
	RPCReadTimeout   = 15 * time.Second // single read against the node
	TxConfirmTimeout = 3 * time.Minute  // standard transaction confirmation wait
	TxPollInterval   = 2 * time.Second  // receipt polling
	WatchInterval    = 5 * time.Second  // session reconcile in `watch`
)
