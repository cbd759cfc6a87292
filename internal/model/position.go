package model

// PositionSnapshot is one participant's ledger row plus real-time rewards.
type PositionSnapshot struct {
	Pool           string `json:"pool"`
	Account        string `json:"account"`
	Timestamp      uint32 `json:"timestamp"`
	FlowIn0        string `json:"flow_in0"`
	FlowIn1        string `json:"flow_in1"`
	FlowOut0       string `json:"flow_out0"`
	FlowOut1       string `json:"flow_out1"`
	LiquidityFlow0 string `json:"liquidity_flow0"`
	LiquidityFlow1 string `json:"liquidity_flow1"`
	Reward0        string `json:"reward0"`
	Reward1        string `json:"reward1"`
}
