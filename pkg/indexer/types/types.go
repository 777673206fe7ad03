package types

// ChainInput names the chain an activity works on.
type ChainInput struct {
	Chain string `json:"chain"`
}

type IndexBlockInput struct {
	Chain  string `json:"chain"`
	Height uint64 `json:"height"`
}

// IndexBlockOutput summarizes one processed block.
type IndexBlockOutput struct {
	Height       uint64  `json:"height"`
	Transactions int     `json:"transactions"`
	Events       int     `json:"events"`
	DurationMs   float64 `json:"durationMs"`
}

// IndexChainInput is the input of IndexChainWorkflow.
type IndexChainInput struct {
	Chain string `json:"chain"`
	// StartBlock is the first height indexed when nothing was recorded yet.
	StartBlock uint64 `json:"startBlock"`
	// Next is set when the workflow continues as new; zero resumes from the checkpoint.
	Next uint64 `json:"next"`
	// Until stops the workflow once this height is indexed. Zero follows the head forever.
	Until uint64 `json:"until"`
}
