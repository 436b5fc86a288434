package config

const (
	defaultConfigPath        = "~/.config/localipc/config.toml"
	projectConfigName        = "localipc.toml"
	socketDirEnv             = "LOCALIPC_SOCKET_DIR"
	defaultSocketPermissions = 0o600
	defaultPipePrefix        = "localipc-"
	defaultMaxFrameBytes     = 16 << 20
	defaultSendQueueFrames   = 1024
	defaultDispatcherBacklog = 4096
	defaultConnectTimeoutMS  = 5000
	defaultCloseFlushMS      = 2000
	defaultReadBufferBytes   = 64 * 1024
	minReadBufferBytes       = 512
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultMetricsBind       = "127.0.0.1:9477"
)

// Default returns a Config populated with repository defaults. The socket
// directory is left empty and resolved during Load.
func Default() Config {
	return Config{
		Transport: Transport{
			SocketPermissions: defaultSocketPermissions,
			PipePrefix:        defaultPipePrefix,
		},
		Limits: Limits{
			MaxFrameBytes:       defaultMaxFrameBytes,
			SendQueueFrames:     defaultSendQueueFrames,
			DispatcherBacklog:   defaultDispatcherBacklog,
			ConnectTimeoutMS:    defaultConnectTimeoutMS,
			CloseFlushTimeoutMS: defaultCloseFlushMS,
			ReadBufferBytes:     defaultReadBufferBytes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
	}
}
