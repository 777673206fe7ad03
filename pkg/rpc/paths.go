package rpc

// Sidecar endpoint paths. Storage reads accept ?at=<blockHash> and keys[]=<key> parameters.
const (
	headPath          = "/blocks/head/header"
	blockByNumberPath = "/blocks/%d/decoded"

	currentEraPath          = "/pallets/staking/storage/currentEra"
	activeEraPath           = "/pallets/staking/storage/activeEra"
	historyDepthStoragePath = "/pallets/staking/storage/historyDepth"
	historyDepthConstPath   = "/pallets/staking/consts/HistoryDepth"
	erasStakersEntriesPath  = "/pallets/staking/storage/erasStakers/entries"
	erasRewardPointsPath    = "/pallets/staking/storage/erasRewardPoints"
	sessionValidatorsPath   = "/pallets/session/storage/validators"
	identityOfPath          = "/pallets/identity/storage/identityOf"

	accountInfoPath = "/accounts/%s/balance-info"
	feeEstimatePath = "/transaction/fee-estimate"
)
