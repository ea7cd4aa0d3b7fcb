package apperror

// Code classifies a failure. Codes are stable strings used as log and span
// attributes.
type Code string

const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeUnknownError       Code = "UNKNOWN_ERROR"

	// chain access
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeBlockNotFound            Code = "BLOCK_NOT_FOUND"
	CodeLogFetchFailed           Code = "LOG_FETCH_FAILED"
	CodeContractCallFailed       Code = "CONTRACT_CALL_FAILED"
	CodeReorgTooDeep             Code = "REORG_TOO_DEEP"

	// state synchronization
	CodeStateGenerationFailed Code = "STATE_GENERATION_FAILED"
	CodeStateUnavailable      Code = "STATE_UNAVAILABLE"
	CodeLogDecodeFailed       Code = "LOG_DECODE_FAILED"
	CodeSnapshotEncodeFailed  Code = "SNAPSHOT_ENCODE_FAILED"
	CodeSnapshotDecodeFailed  Code = "SNAPSHOT_DECODE_FAILED"
	CodeObjectAlreadyTracked  Code = "OBJECT_ALREADY_TRACKED"
	CodeObjectNotTracked      Code = "OBJECT_NOT_TRACKED"

	// pool quoting
	CodeInvalidQuote          Code = "INVALID_QUOTE"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeUnknownToken          Code = "UNKNOWN_TOKEN"

	// shared cache
	CodeCacheConnectionFailed Code = "CACHE_CONNECTION_FAILED"
	CodeCacheReadFailed       Code = "CACHE_READ_FAILED"
	CodeCacheWriteFailed      Code = "CACHE_WRITE_FAILED"
	CodeCachePublishFailed    Code = "CACHE_PUBLISH_FAILED"

	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)

type codeInfo struct {
	message string
	// temporary conditions clear on their own, usually by the next block.
	temporary bool
}

var catalog = map[Code]codeInfo{
	CodeInvalidInput:       {message: "Invalid input provided"},
	CodeConfigurationError: {message: "Configuration error"},
	CodeInternalError:      {message: "Internal error"},
	CodeUnknownError:       {message: "An unknown error occurred"},

	CodeEthereumConnectionFailed: {message: "Failed to connect to Ethereum node", temporary: true},
	CodeEthereumSubscribeFailed:  {message: "Failed to subscribe to Ethereum events"},
	CodeEthereumRPCError:         {message: "Ethereum RPC call failed", temporary: true},
	CodeBlockNotFound:            {message: "Block not found"},
	CodeLogFetchFailed:           {message: "Failed to fetch logs", temporary: true},
	CodeContractCallFailed:       {message: "Contract call failed"},
	CodeReorgTooDeep:             {message: "Reorganization deeper than retained headers"},

	CodeStateGenerationFailed: {message: "Failed to generate state from chain"},
	CodeStateUnavailable:      {message: "State not yet available", temporary: true},
	CodeLogDecodeFailed:       {message: "Failed to decode log"},
	CodeSnapshotEncodeFailed:  {message: "Failed to encode snapshot"},
	CodeSnapshotDecodeFailed:  {message: "Failed to decode snapshot"},
	CodeObjectAlreadyTracked:  {message: "Object is already tracked"},
	CodeObjectNotTracked:      {message: "Object is not tracked"},

	CodeInvalidQuote:          {message: "Invalid quote request"},
	CodeInsufficientLiquidity: {message: "Insufficient liquidity for trade size"},
	CodeUnknownToken:          {message: "Token does not belong to pool"},

	CodeCacheConnectionFailed: {message: "Failed to connect to shared cache", temporary: true},
	CodeCacheReadFailed:       {message: "Shared cache read failed"},
	CodeCacheWriteFailed:      {message: "Shared cache write failed"},
	CodeCachePublishFailed:    {message: "Shared cache publish failed"},

	CodeCircuitOpen:     {message: "Circuit breaker is open", temporary: true},
	CodeCircuitHalfOpen: {message: "Circuit breaker is half-open", temporary: true},
}
