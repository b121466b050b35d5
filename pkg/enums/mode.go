package enums

// ExecutionMode is the runtime backend a job is deployed to.
type ExecutionMode int

const (
	ExecutionModeLocal                       ExecutionMode = 0
	ExecutionModeRemote                      ExecutionMode = 1
	ExecutionModeYarnPerJob                  ExecutionMode = 2
	ExecutionModeYarnSession                 ExecutionMode = 3
	ExecutionModeYarnApplication             ExecutionMode = 4
	ExecutionModeKubernetesNativeSession     ExecutionMode = 5
	ExecutionModeKubernetesNativeApplication ExecutionMode = 6
)

var executionModes = newTable("ExecutionMode",
	entry[ExecutionMode]{ExecutionModeLocal, "LOCAL"},
	entry[ExecutionMode]{ExecutionModeRemote, "REMOTE"},
	entry[ExecutionMode]{ExecutionModeYarnPerJob, "YARN_PER_JOB"},
	entry[ExecutionMode]{ExecutionModeYarnSession, "YARN_SESSION"},
	entry[ExecutionMode]{ExecutionModeYarnApplication, "YARN_APPLICATION"},
	entry[ExecutionMode]{ExecutionModeKubernetesNativeSession, "KUBERNETES_NATIVE_SESSION"},
	entry[ExecutionMode]{ExecutionModeKubernetesNativeApplication, "KUBERNETES_NATIVE_APPLICATION"},
)

// ExecutionModeOf looks up an ExecutionMode by its persisted code.
func ExecutionModeOf(code int) (ExecutionMode, error) { return executionModes.of(code) }

// ParseExecutionMode looks up an ExecutionMode by canonical name.
func ParseExecutionMode(name string) (ExecutionMode, error) { return executionModes.parse(name) }

// ExecutionModes returns the declared execution modes.
func ExecutionModes() []ExecutionMode { return executionModes.all() }

func (m ExecutionMode) Code() int      { return int(m) }
func (m ExecutionMode) String() string { return executionModes.name(m) }
func (m ExecutionMode) Valid() bool    { return executionModes.valid(m) }

// IsYarn reports whether the mode runs on YARN.
func (m ExecutionMode) IsYarn() bool {
	switch m {
	case ExecutionModeYarnPerJob, ExecutionModeYarnSession, ExecutionModeYarnApplication:
		return true
	}
	return false
}

// IsKubernetes reports whether the mode runs cluster-native on Kubernetes.
func (m ExecutionMode) IsKubernetes() bool {
	return m == ExecutionModeKubernetesNativeSession || m == ExecutionModeKubernetesNativeApplication
}

// StorageType is the filesystem abstraction used for artifact staging.
type StorageType string

const (
	// StorageRemoteFS is distributed storage reachable by the cluster.
	StorageRemoteFS StorageType = "REMOTE_FS"

	// StorageLocalFS is the control plane's local filesystem.
	StorageLocalFS StorageType = "LOCAL_FS"
)

// String returns the string representation of the storage type.
func (s StorageType) String() string {
	return string(s)
}
