package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldScanID correlates every line emitted by one directory scan.
	FieldScanID = "scan_id"
	// FieldDirectory is the season directory being scanned.
	FieldDirectory = "directory"
	// FieldEpisodeID is the episode identifier (path relative to its library root).
	FieldEpisodeID = "episode_id"
	// FieldCategory is "intro", "credits" or "silence".
	FieldCategory = "category"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the scheduling decision being logged.
	FieldDecisionType = "decision_type"
)
