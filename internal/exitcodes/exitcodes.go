package exitcodes

// Exit codes for force-cleanup.
// A run that starts always exits Success, whatever its steps reported.
const (
	Success       = 0 // Run completed (including failed rename or delete)
	InvalidConfig = 2 // Explicit configuration file invalid or missing
	RuntimeError  = 4 // History tool could not read the database
)
