package build

var (
	// proxyDataDirEnvVar is the environment variable that tells the proxy
	// where to put its general data: persisted metadata, logs, the journal.
	proxyDataDirEnvVar = "NEXOEDGE_DATA_DIR"

	// proxyConfigEnvVar optionally names a config file overriding the
	// default search path.
	proxyConfigEnvVar = "NEXOEDGE_CONFIG"
)
