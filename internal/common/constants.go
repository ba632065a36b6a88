package common

// Environment variable keys
const (
	EnvConfigFile    = "CONFIG_FILE"
	EnvModelPath     = "MODEL_PATH"
	EnvListenAddr    = "LISTEN_ADDR"
	EnvHTTPPort      = "HTTP_PORT"
	EnvDataPath      = "DATA_PATH"
	EnvPythonPath    = "PYTHON_PATH"
	EnvPythonTimeout = "PYTHON_TIMEOUT"
	EnvReadTimeout   = "READ_TIMEOUT"
	EnvWriteTimeout  = "WRITE_TIMEOUT"
	EnvJournalLimit  = "JOURNAL_LIMIT"
	EnvLogLevel      = "LOG_LEVEL"
	EnvLogFormat     = "LOG_FORMAT"
	EnvAPIURL        = "RISK_API_URL"
)

// Configuration defaults
const (
	DefaultModelPath    = "models/credit_model.json"
	DefaultListenAddr   = ""
	DefaultHTTPPort     = 8080
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultJournalLimit = 50
	DefaultAPIURL       = "http://localhost:8080"
	DefaultMetadataFile = "model_metadata.json"
)

// Validation constants
const (
	MinHTTPPort     = 1024
	MaxHTTPPort     = 65535
	MaxJournalLimit = 1000
)

// Probability checks
const (
	ProbabilityTolerance = 1e-6
)
