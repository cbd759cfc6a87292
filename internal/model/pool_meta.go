package model

// PoolMeta captures the immutable pool configuration.
type PoolMeta struct {
	Address string `json:"address"`
	Token0  string `json:"token0"`
	Token1  string `json:"token1"`
	// Fee is the Q128 fee fraction as a decimal integer string.
	Fee  string `json:"fee"`
	Host string `json:"host"`
}
