package logging

const (
	BaseDataDir   = "data"
	LogsDir       = "logs"
	LogFileFormat = "2006-01-02.log"
	TimeFormat    = "2006-01-02 15:04:05"

	defaultMaxSizeMB  = 25
	defaultMaxAgeDays = 14
	defaultMaxBackups = 10
)

type ProcessName string

const (
	MirrorProcess   ProcessName = "mirror"
	SyncerProcess   ProcessName = "syncer"
	SyncToolProcess ProcessName = "synctool"
	TestProcess     ProcessName = "test"
)

type LoggerConfig struct {
	ProcessName   ProcessName
	IsDevelopment bool
	// LogDir overrides BaseDataDir when set.
	LogDir string
	// DisableFile keeps output on the console only.
	DisableFile bool
}

func (c LoggerConfig) baseDir() string {
	if c.LogDir != "" {
		return c.LogDir
	}
	return BaseDataDir
}
