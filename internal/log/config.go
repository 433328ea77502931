package log

// LoggerConfig is the "log" section of the configuration file.
type LoggerConfig struct {
	Level     string           `mapstructure:"level"`
	Pattern   string           `mapstructure:"pattern"`
	Time      string           `mapstructure:"time"`
	Appenders []AppenderConfig `mapstructure:"appenders"`
}

// AppenderConfig selects one output. Type is "console" or "file"; File is
// only read for file appenders.
type AppenderConfig struct {
	Type string          `mapstructure:"type"`
	File FileAppenderOpt `mapstructure:"file"`
}

const (
	AppenderConsole = "console"
	AppenderFile    = "file"
)

const (
	DefaultPattern = "%time [%level] %field %msg\n"
	DefaultTime    = "2006-01-02 15:04:05.000"
	DefaultLevel   = "info"
)

// DefaultConfig logs at info level to the console.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:     DefaultLevel,
		Pattern:   DefaultPattern,
		Time:      DefaultTime,
		Appenders: []AppenderConfig{{Type: AppenderConsole}},
	}
}
