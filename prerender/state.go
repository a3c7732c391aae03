package prerender

// State is a step of a run. Every run goes Init → ServerStarting →
// ServerReady → BrowserLaunching → BrowserReady → Rendering → Completed,
// or jumps to FatalFailure from any step; both end in Teardown → Exit.
type State int

const (
	StateInit State = iota
	StateServerStarting
	StateServerReady
	StateBrowserLaunching
	StateBrowserReady
	StateRendering
	StateCompleted
	StateFatalFailure
	StateTeardown
	StateExit
)

var stateNames = [...]string{
	StateInit:             "init",
	StateServerStarting:   "server_starting",
	StateServerReady:      "server_ready",
	StateBrowserLaunching: "browser_launching",
	StateBrowserReady:     "browser_ready",
	StateRendering:        "rendering",
	StateCompleted:        "completed",
	StateFatalFailure:     "fatal_failure",
	StateTeardown:         "teardown",
	StateExit:             "exit",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
