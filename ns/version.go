package ns

// Server identity reported by the version command and in startup logs.
const (
	ServerName = "nsould"
	Version    = "1.4.0"
	BuildDate  = "2026-08-17"
)
