package config

// Pauses lists the pause switches applied when the daemon starts. Paused
// modules reject both borrows and repayments until the switch is lifted.
type Pauses struct {
	Treasury bool
}

// RateLimit throttles the RPC surface per source address.
type RateLimit struct {
	RequestsPerMinute int
	Burst             int
}
