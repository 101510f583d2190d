package config

const (
	defaultUniverseSize   = 512
	defaultWorkers        = 4
	defaultMVRMaxVersion  = "1"
	defaultGDTFMaxVersion = "1"
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		UniverseSize:   defaultUniverseSize,
		Workers:        defaultWorkers,
		MVRMaxVersion:  defaultMVRMaxVersion,
		GDTFMaxVersion: defaultGDTFMaxVersion,
		LogLevel:       defaultLogLevel,
		LogFormat:      defaultLogFormat,
	}
}
