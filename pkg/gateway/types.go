package gateway

// Wire types of the wallet account JSON-RPC bridge. Amounts travel as e8s.

// ProposeTransactionArgs registers a transfer with the account
type ProposeTransactionArgs struct {
	Wallet          string `json:"wallet"`
	To              string `json:"to"`
	Token           string `json:"token"`
	TransactionType string `json:"transaction_type"`
	Network         string `json:"network"`
	Amount          uint64 `json:"amount"`
}

// ProposedTransaction is the account's view of a registered transfer
type ProposedTransaction struct {
	ID         uint64   `json:"id"`
	To         string   `json:"to"`
	Token      string   `json:"token"`
	Network    string   `json:"network"`
	Amount     uint64   `json:"amount"`
	Signers    []string `json:"signers"`
	Rejections []string `json:"rejections"`
}

// ExecuteTransactionArgs asks the account to execute a transfer
type ExecuteTransactionArgs struct {
	Wallet   string `json:"wallet"`
	ID       uint64 `json:"id"`
	To       string `json:"to"`
	Token    string `json:"token"`
	Network  string `json:"network"`
	Amount   uint64 `json:"amount"`
	Approved int    `json:"approved"`
}

// Remote intent statuses as reported by the account
const (
	RemotePending    = "Pending"
	RemoteInProgress = "InProgress"
	RemoteCompleted  = "Completed"
	RemoteRejected   = "Rejected"
	RemoteFailed     = "Failed"
)

// ExecutionResult is the account's answer to an execution request
type ExecutionResult struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// CodeTransferRejected is the JSON-RPC error code the bridge uses when the
// ledger definitively refuses a transfer.
const CodeTransferRejected = -32010
