package enums

// JobType is the development mode of a job.
type JobType int

const (
	JobTypeCustomCode JobType = 1
	JobTypeFlinkSQL   JobType = 2
	JobTypePyFlink    JobType = 3
)

var jobTypes = newTable("JobType",
	entry[JobType]{JobTypeCustomCode, "CUSTOM_CODE"},
	entry[JobType]{JobTypeFlinkSQL, "FLINK_SQL"},
	entry[JobType]{JobTypePyFlink, "PYFLINK"},
)

// JobTypeOf looks up a JobType by its persisted code.
func JobTypeOf(code int) (JobType, error) { return jobTypes.of(code) }

// ParseJobType looks up a JobType by canonical name.
func ParseJobType(name string) (JobType, error) { return jobTypes.parse(name) }

// JobTypes returns the declared job types.
func JobTypes() []JobType { return jobTypes.all() }

func (t JobType) Code() int      { return int(t) }
func (t JobType) String() string { return jobTypes.name(t) }
func (t JobType) Valid() bool    { return jobTypes.valid(t) }

// ResourceFrom records where a custom-code or PyFlink artifact comes from.
type ResourceFrom int

const (
	// ResourceFromCICD means the artifact is built from a project.
	ResourceFromCICD ResourceFrom = 1

	// ResourceFromUpload means the artifact was uploaded directly.
	ResourceFromUpload ResourceFrom = 2
)

var resourceFroms = newTable("ResourceFrom",
	entry[ResourceFrom]{ResourceFromCICD, "CICD"},
	entry[ResourceFrom]{ResourceFromUpload, "UPLOAD"},
)

// ResourceFromOf looks up a ResourceFrom by its persisted code.
func ResourceFromOf(code int) (ResourceFrom, error) { return resourceFroms.of(code) }

// ParseResourceFrom looks up a ResourceFrom by canonical name.
func ParseResourceFrom(name string) (ResourceFrom, error) { return resourceFroms.parse(name) }

// ResourceFroms returns the declared resource origins.
func ResourceFroms() []ResourceFrom { return resourceFroms.all() }

func (r ResourceFrom) Code() int      { return int(r) }
func (r ResourceFrom) String() string { return resourceFroms.name(r) }
func (r ResourceFrom) Valid() bool    { return resourceFroms.valid(r) }

// CheckpointFailureAction is what happens after repeated checkpoint failures.
type CheckpointFailureAction int

const (
	CheckpointFailureAlert   CheckpointFailureAction = 1
	CheckpointFailureRestart CheckpointFailureAction = 2
)

var cpFailureActions = newTable("CheckpointFailureAction",
	entry[CheckpointFailureAction]{CheckpointFailureAlert, "ALERT"},
	entry[CheckpointFailureAction]{CheckpointFailureRestart, "RESTART"},
)

// CheckpointFailureActionOf looks up an action by its persisted code.
func CheckpointFailureActionOf(code int) (CheckpointFailureAction, error) {
	return cpFailureActions.of(code)
}

// ParseCheckpointFailureAction looks up an action by canonical name.
func ParseCheckpointFailureAction(name string) (CheckpointFailureAction, error) {
	return cpFailureActions.parse(name)
}

// CheckpointFailureActions returns the declared actions.
func CheckpointFailureActions() []CheckpointFailureAction { return cpFailureActions.all() }

func (a CheckpointFailureAction) Code() int      { return int(a) }
func (a CheckpointFailureAction) String() string { return cpFailureActions.name(a) }
func (a CheckpointFailureAction) Valid() bool    { return cpFailureActions.valid(a) }

// ApplicationType identifies the engine and origin of an application.
type ApplicationType int

const (
	ApplicationTypeStreamParkFlink ApplicationType = 1
	ApplicationTypeApacheFlink     ApplicationType = 2
	ApplicationTypeStreamParkSpark ApplicationType = 3
	ApplicationTypeApacheSpark     ApplicationType = 4
)

var applicationTypes = newTable("ApplicationType",
	entry[ApplicationType]{ApplicationTypeStreamParkFlink, "STREAMPARK_FLINK"},
	entry[ApplicationType]{ApplicationTypeApacheFlink, "APACHE_FLINK"},
	entry[ApplicationType]{ApplicationTypeStreamParkSpark, "STREAMPARK_SPARK"},
	entry[ApplicationType]{ApplicationTypeApacheSpark, "APACHE_SPARK"},
)

// ApplicationTypeOf looks up an ApplicationType by its persisted code.
func ApplicationTypeOf(code int) (ApplicationType, error) { return applicationTypes.of(code) }

// ParseApplicationType looks up an ApplicationType by canonical name.
func ParseApplicationType(name string) (ApplicationType, error) {
	return applicationTypes.parse(name)
}

// ApplicationTypes returns the declared application types.
func ApplicationTypes() []ApplicationType { return applicationTypes.all() }

func (t ApplicationType) Code() int      { return int(t) }
func (t ApplicationType) String() string { return applicationTypes.name(t) }
func (t ApplicationType) Valid() bool    { return applicationTypes.valid(t) }

// RestExposedType is how a cluster-native job exposes its REST endpoint.
type RestExposedType int

const (
	RestExposedLoadBalancer RestExposedType = 0
	RestExposedClusterIP    RestExposedType = 1
	RestExposedNodePort     RestExposedType = 2
)

var restExposedTypes = newTable("RestExposedType",
	entry[RestExposedType]{RestExposedLoadBalancer, "LoadBalancer"},
	entry[RestExposedType]{RestExposedClusterIP, "ClusterIP"},
	entry[RestExposedType]{RestExposedNodePort, "NodePort"},
)

// RestExposedTypeOf looks up a RestExposedType by its persisted code.
func RestExposedTypeOf(code int) (RestExposedType, error) { return restExposedTypes.of(code) }

// ParseRestExposedType looks up a RestExposedType by name.
func ParseRestExposedType(name string) (RestExposedType, error) {
	return restExposedTypes.parse(name)
}

// RestExposedTypes returns the declared exposure types.
func RestExposedTypes() []RestExposedType { return restExposedTypes.all() }

func (t RestExposedType) Code() int      { return int(t) }
func (t RestExposedType) String() string { return restExposedTypes.name(t) }
func (t RestExposedType) Valid() bool    { return restExposedTypes.valid(t) }
