package config

// DefaultAddr is the default listen address for the WebSocket server.
const DefaultAddr = "127.0.0.1:7160"

// DefaultLockoutThreshold is how many consecutive wrong join codes trigger a lockout.
const DefaultLockoutThreshold = 5

// DefaultLockoutDurationMs is the default lockout window in milliseconds.
const DefaultLockoutDurationMs = 30000

// DefaultCodeExpirySecs is how long a generated join code stays valid.
const DefaultCodeExpirySecs = 120
