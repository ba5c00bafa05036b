package config

// Telemetry configures the OTLP exporters used by farmd.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Pauses lists modules that start paused.
type Pauses struct {
	Farm bool `toml:"Farm"`
}

// RateLimit bounds requests per client on the read API.
type RateLimit struct {
	PerSecond float64 `toml:"PerSecond"`
	Burst     int     `toml:"Burst"`
}

// Webhook configures signed deliveries of farm events and snapshots.
type Webhook struct {
	Endpoint string   `toml:"Endpoint"`
	Secret   string   `toml:"Secret"`
	Topics   []string `toml:"Topics"`
}

// Config is the operator configuration shared by farmctl and farmd.
// LaunchTime, FarmDeadline and ReleaseTime accept RFC3339 or unix seconds.
// Backend selects the state store: "leveldb" (default) or "bolt".
type Config struct {
	DataDir           string    `toml:"DataDir"`
	Backend           string    `toml:"Backend"`
	Owner             string    `toml:"Owner"`
	OwnerKeystorePath string    `toml:"OwnerKeystorePath"`
	LaunchTime        string    `toml:"LaunchTime"`
	FarmDeadline      string    `toml:"FarmDeadline"`
	ReleaseTime       string    `toml:"ReleaseTime"`
	ShareCeiling      string    `toml:"ShareCeiling"`
	ListenAddress     string    `toml:"ListenAddress"`
	JournalDSN        string    `toml:"JournalDSN"`
	LogFile           string    `toml:"LogFile"`
	Environment       string    `toml:"Environment"`
	SnapshotSchedule  string    `toml:"SnapshotSchedule"`
	ExportDir         string    `toml:"ExportDir"`
	RateLimit         RateLimit `toml:"rate_limit"`
	Pauses            Pauses    `toml:"pauses"`
	Telemetry         Telemetry `toml:"telemetry"`
	Webhook           Webhook   `toml:"webhook"`
}
