package cfg

import (
	"fmt"
	"time"

	"credit-risk/internal/common"
)

type Settings struct {
	ModelPath     string
	PythonPath    string
	PythonTimeout time.Duration
	ListenAddr    string
	HTTPPort      int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	DataPath      string
	JournalLimit  int
	LogLevel      string
	LogFormat     string
}

// Defaults are used for anything neither the config file nor the environment sets.
func Defaults() Settings {
	return Settings{
		ModelPath:     common.DefaultModelPath,
		PythonTimeout: 10 * time.Second,
		ListenAddr:    common.DefaultListenAddr,
		HTTPPort:      common.DefaultHTTPPort,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  30 * time.Second,
		JournalLimit:  common.DefaultJournalLimit,
		LogLevel:      common.DefaultLogLevel,
		LogFormat:     common.DefaultLogFormat,
	}
}

// Addr is the listen address handed to http.Server.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.ListenAddr, s.HTTPPort)
}

// JournalEnabled reports whether accepted predictions are persisted.
func (s Settings) JournalEnabled() bool { return s.DataPath != "" }
