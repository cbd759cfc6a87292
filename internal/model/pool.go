package model

// PoolSnapshot is the aggregate pool state at a timestamp. Large values are
// decimal strings.
type PoolSnapshot struct {
	Pool             string `json:"pool"`
	Timestamp        uint32 `json:"timestamp"`
	FlowIn0          string `json:"flow_in0"`
	FlowIn1          string `json:"flow_in1"`
	Price0Cumulative string `json:"price0_cumulative"`
	Price1Cumulative string `json:"price1_cumulative"`
	Fees0Cumulative  string `json:"fees0_cumulative"`
	Fees1Cumulative  string `json:"fees1_cumulative"`
	FeesFlow0        string `json:"fees_flow0"`
	FeesFlow1        string `json:"fees_flow1"`
	LiquidityFlow0   string `json:"liquidity_flow0"`
	LiquidityFlow1   string `json:"liquidity_flow1"`
	Participants     int    `json:"participants"`
}
