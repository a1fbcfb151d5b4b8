package protocol

// Device connection states.
const (
	ConnectionOnline  = "ONLINE"
	ConnectionOffline = "OFFLINE"
	ConnectionBroken  = "CONNECTIONBROKEN"
)

// Action states reported by vehicles and modules.
const (
	ActionWaiting      = "WAITING"
	ActionInitializing = "INITIALIZING"
	ActionRunning      = "RUNNING"
	ActionFinished     = "FINISHED"
	ActionFailed       = "FAILED"
)

// Vehicle node action types.
const (
	NodeActionDock = "DOCK"
	NodeActionPass = "PASS"
	NodeActionTurn = "TURN"
)

// Turn directions.
const (
	TurnLeft  = "LEFT"
	TurnRight = "RIGHT"
	TurnBack  = "BACK"
)

// Compass directions on layout edges.
const (
	North = "NORTH"
	East  = "EAST"
	South = "SOUTH"
	West  = "WEST"
)

// Instant action types.
const (
	InstantFactsheetRequest = "factsheetRequest"
	InstantReset            = "reset"
	InstantStartCharging    = "startCharging"
	InstantStopCharging     = "stopCharging"
)

// Module commands.
const (
	CommandPick         = "PICK"
	CommandDrop         = "DROP"
	CommandDrill        = "DRILL"
	CommandMill         = "MILL"
	CommandCheckQuality = "CHECK_QUALITY"
	CommandFire         = "FIRE"
)

// Quality check results.
const (
	QualityPassed = "PASSED"
	QualityFailed = "FAILED"
)

// Layout node types.
const (
	NodeIntersection = "INTERSECTION"
	NodeModule       = "MODULE"
)

// UnknownPosition marks a vehicle whose docking position is not known.
const UnknownPosition = "UNKNOWN"
