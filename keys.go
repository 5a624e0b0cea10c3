package synapse

// Reserved bridge keys forming the engine <-> host contract (spec.md §6).
const (
	KeyStop            = "_SYSTEM_STOP"
	KeyShutdown        = "_SYSTEM_SHUTDOWN"
	KeyHeadless        = "_SYSTEM_HEADLESS"
	KeyPauseFile       = "_SYSTEM_PAUSE_FILE"
	KeyStopFile        = "_SYSTEM_STOP_FILE"
	KeyStepBack        = "_SYSTEM_STEP_BACK"
	KeyTraceEnabled    = "_SYSTEM_TRACE_ENABLED"
	KeyTraceSubgraphs  = "_SYSTEM_TRACE_SUBGRAPHS"
	KeyRunID           = "_SYSTEM_RUN_ID"
	KeyLastErrorCode   = "_SYSTEM_LAST_ERROR_CODE"
	KeyLastErrorMsg    = "_SYSTEM_LAST_ERROR_MESSAGE"
	KeyLastErrorNode   = "_SYSTEM_LAST_ERROR_NODE"
	KeyLastErrorName   = "_SYSTEM_LAST_ERROR_NODE_NAME"
	KeyLastErrorObject = "_SYSTEM_LAST_ERROR_OBJECT"
	KeyOSType          = "_OS_TYPE"
	KeyPanicked        = "_PANICKED"
	KeyYield           = "_SYNP_YIELD"
	KeyParentNodeID    = "_SYNP_PARENT_NODE_ID"
	KeySubgraphID      = "_SYNP_SUBGRAPH_ID"
)

// CancelScopeKey builds the per-scope cancellation flag key (spec.md §5).
func CancelScopeKey(scopeID string) string {
	return "SYNAPSE_CANCEL_SCOPE_" + scopeID
}

// SubgraphReturnKey builds the per-parent aggregated-return key
// (spec.md §4.6 step 4, §6 "SUBGRAPH_RETURN[_{parent_id}]").
func SubgraphReturnKey(parentNodeID string) string {
	if parentNodeID == "" {
		return "SUBGRAPH_RETURN"
	}
	return "SUBGRAPH_RETURN_" + parentNodeID
}

// WirelessKey builds the broadcast-sent marker key (spec.md §6
// "__WIRELESS_{tag}__").
func WirelessKey(tag string) string {
	return "__WIRELESS_" + tag + "__"
}

// ScopeRoot is the sentinel scope identifying the whole engine run
// (spec.md §3 "Scope").
const ScopeRoot = "ROOT"
