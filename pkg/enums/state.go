package enums

// AppState is the lifecycle state of a job as observed by the tracker.
//
// NOTE: codes are persisted; never renumber.
type AppState int

const (
	StateAdded         AppState = 0
	StateInitializing  AppState = 1
	StateCreated       AppState = 2
	StateStarting      AppState = 3
	StateRestarting    AppState = 4
	StateRunning       AppState = 5
	StateFailing       AppState = 6
	StateFailed        AppState = 7
	StateCancelling    AppState = 8
	StateCanceled      AppState = 9
	StateFinished      AppState = 10
	StateSuspended     AppState = 11
	StateReconciling   AppState = 12
	StateLost          AppState = 13
	StateMapping       AppState = 14
	StateOther         AppState = 15
	StateRevoked       AppState = 16
	StateSilent        AppState = 17
	StateTerminated    AppState = 18
	StatePosTerminated AppState = 19
	StateSucceeded     AppState = 20
	StateKilled        AppState = -9
)

var appStates = newTable("AppState",
	entry[AppState]{StateAdded, "ADDED"},
	entry[AppState]{StateInitializing, "INITIALIZING"},
	entry[AppState]{StateCreated, "CREATED"},
	entry[AppState]{StateStarting, "STARTING"},
	entry[AppState]{StateRestarting, "RESTARTING"},
	entry[AppState]{StateRunning, "RUNNING"},
	entry[AppState]{StateFailing, "FAILING"},
	entry[AppState]{StateFailed, "FAILED"},
	entry[AppState]{StateCancelling, "CANCELLING"},
	entry[AppState]{StateCanceled, "CANCELED"},
	entry[AppState]{StateFinished, "FINISHED"},
	entry[AppState]{StateSuspended, "SUSPENDED"},
	entry[AppState]{StateReconciling, "RECONCILING"},
	entry[AppState]{StateLost, "LOST"},
	entry[AppState]{StateMapping, "MAPPING"},
	entry[AppState]{StateOther, "OTHER"},
	entry[AppState]{StateRevoked, "REVOKED"},
	entry[AppState]{StateSilent, "SILENT"},
	entry[AppState]{StateTerminated, "TERMINATED"},
	entry[AppState]{StatePosTerminated, "POS_TERMINATED"},
	entry[AppState]{StateSucceeded, "SUCCEEDED"},
	entry[AppState]{StateKilled, "KILLED"},
)

// AppStateOf looks up an AppState by its persisted code.
func AppStateOf(code int) (AppState, error) { return appStates.of(code) }

// ParseAppState looks up an AppState by canonical name.
func ParseAppState(name string) (AppState, error) { return appStates.parse(name) }

// AppStates returns every declared lifecycle state.
func AppStates() []AppState { return appStates.all() }

func (s AppState) Code() int      { return int(s) }
func (s AppState) String() string { return appStates.name(s) }
func (s AppState) Valid() bool    { return appStates.valid(s) }

// ReleaseState is the status of the build/deploy output relative to the
// running instance.
type ReleaseState int

const (
	ReleaseFailed       ReleaseState = -1
	ReleaseDone         ReleaseState = 0
	ReleaseNeedRelease  ReleaseState = 1
	ReleaseReleasing    ReleaseState = 2
	ReleaseNeedRestart  ReleaseState = 3
	ReleaseNeedRollback ReleaseState = 4
	ReleaseNeedCancel   ReleaseState = 5
	ReleaseRevoked      ReleaseState = 10
)

var releaseStates = newTable("ReleaseState",
	entry[ReleaseState]{ReleaseFailed, "FAILED"},
	entry[ReleaseState]{ReleaseDone, "DONE"},
	entry[ReleaseState]{ReleaseNeedRelease, "NEED_RELEASE"},
	entry[ReleaseState]{ReleaseReleasing, "RELEASING"},
	entry[ReleaseState]{ReleaseNeedRestart, "NEED_RESTART"},
	entry[ReleaseState]{ReleaseNeedRollback, "NEED_ROLLBACK"},
	entry[ReleaseState]{ReleaseNeedCancel, "NEED_CANCEL"},
	entry[ReleaseState]{ReleaseRevoked, "REVOKED"},
)

// ReleaseStateOf looks up a ReleaseState by its persisted code.
func ReleaseStateOf(code int) (ReleaseState, error) { return releaseStates.of(code) }

// ParseReleaseState looks up a ReleaseState by canonical name.
func ParseReleaseState(name string) (ReleaseState, error) { return releaseStates.parse(name) }

// ReleaseStates returns every declared release state.
func ReleaseStates() []ReleaseState { return releaseStates.all() }

func (r ReleaseState) Code() int      { return int(r) }
func (r ReleaseState) String() string { return releaseStates.name(r) }
func (r ReleaseState) Valid() bool    { return releaseStates.valid(r) }
