package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/viper"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port            int           `mapstructure:"port"`
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	} `mapstructure:"server"`
	NATS     NATSConfig `mapstructure:"nats"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
	WorkerPools struct {
		Documents WorkerPoolConfig `mapstructure:"documents"`
		Intake    WorkerPoolConfig `mapstructure:"intake"`
	} `mapstructure:"workerPools"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Oracles  OraclesConfig  `mapstructure:"oracles"`
	Cache    struct {
		JobListTTL time.Duration `mapstructure:"jobListTTL"`
	} `mapstructure:"cache"`
}

// NATSConfig holds the JetStream topology used by the pipeline
type NATSConfig struct {
	URL                string             `mapstructure:"url"`
	DocumentsStream    string             `mapstructure:"documentsStream"`    // stream holding submissions and job messages
	SubmitSubject      string             `mapstructure:"submitSubject"`      // inbound document submissions
	JobsSubject        string             `mapstructure:"jobsSubject"`        // queued job ids awaiting processing
	EventsStream       string             `mapstructure:"eventsStream"`       // outbound notifications
	StatusSubject      string             `mapstructure:"statusSubject"`      // onboarding rollup changes
	DocumentFailedSubj string             `mapstructure:"documentFailedSubj"` // terminal job failures
	MaxAgeDays         int                `mapstructure:"maxAgeDays"`
	Jobs               ConsumerNatsConfig `mapstructure:"jobs"`
	Submissions        ConsumerNatsConfig `mapstructure:"submissions"`
}

// ConsumerNatsConfig holds configuration specific to a NATS pull consumer
type ConsumerNatsConfig struct {
	Consumer      string        `mapstructure:"consumer"` // durable name
	MaxDeliver    int           `mapstructure:"maxDeliver"`
	AckWait       time.Duration `mapstructure:"ackWait"`
	MaxAckPending int           `mapstructure:"maxAckPending"`
	NakBaseDelay  time.Duration `mapstructure:"nakBaseDelay"` // base delay for infrastructure-failure NAKs
	NakMaxDelay   time.Duration `mapstructure:"nakMaxDelay"`
	FetchBatch    int           `mapstructure:"fetchBatch"`
	FetchMaxWait  time.Duration `mapstructure:"fetchMaxWait"`
}

// WorkerPoolConfig holds configuration for an ants worker pool
type WorkerPoolConfig struct {
	PoolSize    int           `mapstructure:"poolSize"`    // Number of workers
	QueueSize   int           `mapstructure:"queueSize"`   // Buffered channel between fetcher and dispatcher
	ExpiryTime  time.Duration `mapstructure:"expiryTime"`  // Idle worker expiry time
	TaskTimeout time.Duration `mapstructure:"taskTimeout"` // Upper bound for one message
}

// PipelineConfig controls job lifecycle behaviour
type PipelineConfig struct {
	MaxRetries       int           `mapstructure:"maxRetries"`
	RetryBaseDelay   time.Duration `mapstructure:"retryBaseDelay"`
	RetryMaxDelay    time.Duration `mapstructure:"retryMaxDelay"`
	IdentityDigits   int           `mapstructure:"identityDigits"` // length of the national identifier pattern
	StaleAfter       time.Duration `mapstructure:"staleAfter"`     // processing jobs older than this are recovered
	SweepInterval    time.Duration `mapstructure:"sweepInterval"`
	SweepBatch       int           `mapstructure:"sweepBatch"`
	HashFetchEnabled bool          `mapstructure:"hashFetchEnabled"` // fetch bytes for fingerprinting
}

// FetcherConfig controls document retrieval
type FetcherConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxSize  string        `mapstructure:"maxSize"` // human readable, e.g. "25MB"
	Attempts int           `mapstructure:"attempts"`
	S3Region string        `mapstructure:"s3Region"`
}

// MaxSizeBytes parses MaxSize. An empty value means no limit.
func (c FetcherConfig) MaxSizeBytes() (int64, error) {
	if strings.TrimSpace(c.MaxSize) == "" {
		return 0, nil
	}
	size, err := units.FromHumanSize(c.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("invalid fetcher.maxSize %q: %w", c.MaxSize, err)
	}
	return size, nil
}

// OraclesConfig holds the external extraction and verification endpoints
type OraclesConfig struct {
	OCR      OracleEndpoint `mapstructure:"ocr"`
	Identity OracleEndpoint `mapstructure:"identity"`
	Face     OracleEndpoint `mapstructure:"face"`
	Bank     OracleEndpoint `mapstructure:"bank"`
	Auth     OAuthConfig    `mapstructure:"auth"`
}

// OracleEndpoint is a single JSON-over-HTTP service
type OracleEndpoint struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OAuthConfig enables client-credentials auth on oracle calls when ClientID is set
type OAuthConfig struct {
	ClientID     string   `mapstructure:"clientID"`
	ClientSecret string   `mapstructure:"clientSecret"`
	TokenURL     string   `mapstructure:"tokenURL"`
	Scopes       []string `mapstructure:"scopes"`
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdownTimeout", 30*time.Second)
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.documentsStream", "documents_stream")
	v.SetDefault("nats.submitSubject", string(model.V1DocumentsSubmit))
	v.SetDefault("nats.jobsSubject", string(model.V1DocumentsJobs))
	v.SetDefault("nats.eventsStream", "onboarding_events_stream")
	v.SetDefault("nats.statusSubject", string(model.V1OnboardingStatus))
	v.SetDefault("nats.documentFailedSubj", string(model.V1OnboardingDocumentFailed))
	v.SetDefault("nats.maxAgeDays", 7)
	v.SetDefault("nats.jobs.consumer", "document_jobs_worker")
	v.SetDefault("nats.jobs.maxDeliver", 20)
	v.SetDefault("nats.jobs.ackWait", 3*time.Minute)
	v.SetDefault("nats.jobs.maxAckPending", 1000)
	v.SetDefault("nats.jobs.nakBaseDelay", 5*time.Second)
	v.SetDefault("nats.jobs.nakMaxDelay", 2*time.Minute)
	v.SetDefault("nats.jobs.fetchBatch", 10)
	v.SetDefault("nats.jobs.fetchMaxWait", 5*time.Second)
	v.SetDefault("nats.submissions.consumer", "document_submissions_worker")
	v.SetDefault("nats.submissions.maxDeliver", 10)
	v.SetDefault("nats.submissions.ackWait", time.Minute)
	v.SetDefault("nats.submissions.maxAckPending", 1000)
	v.SetDefault("nats.submissions.nakBaseDelay", 2*time.Second)
	v.SetDefault("nats.submissions.nakMaxDelay", time.Minute)
	v.SetDefault("nats.submissions.fetchBatch", 10)
	v.SetDefault("nats.submissions.fetchMaxWait", 5*time.Second)

	v.SetDefault("workerPools.documents.poolSize", 16)
	v.SetDefault("workerPools.documents.queueSize", 100)
	v.SetDefault("workerPools.documents.expiryTime", time.Minute)
	v.SetDefault("workerPools.documents.taskTimeout", 2*time.Minute)
	v.SetDefault("workerPools.intake.poolSize", 8)
	v.SetDefault("workerPools.intake.queueSize", 100)
	v.SetDefault("workerPools.intake.expiryTime", time.Minute)
	v.SetDefault("workerPools.intake.taskTimeout", time.Minute)

	v.SetDefault("pipeline.maxRetries", 3)
	v.SetDefault("pipeline.retryBaseDelay", 30*time.Second)
	v.SetDefault("pipeline.retryMaxDelay", 15*time.Minute)
	v.SetDefault("pipeline.identityDigits", 11)
	v.SetDefault("pipeline.staleAfter", 10*time.Minute)
	v.SetDefault("pipeline.sweepInterval", time.Minute)
	v.SetDefault("pipeline.sweepBatch", 100)
	v.SetDefault("pipeline.hashFetchEnabled", true)

	v.SetDefault("fetcher.timeout", 30*time.Second)
	v.SetDefault("fetcher.maxSize", "25MB")
	v.SetDefault("fetcher.attempts", 3)

	v.SetDefault("oracles.ocr.timeout", 30*time.Second)
	v.SetDefault("oracles.identity.timeout", 30*time.Second)
	v.SetDefault("oracles.face.timeout", 30*time.Second)
	v.SetDefault("oracles.bank.timeout", 30*time.Second)

	v.SetDefault("cache.jobListTTL", 30*time.Second)

	v.SetConfigName("default")
	v.SetConfigType("yaml")

	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.document-verification-processor")
	v.AddConfigPath("/etc/document-verification-processor")

	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if url := os.Getenv("OCR_URL"); url != "" {
		v.Set("oracles.ocr.url", url)
	}
	if url := os.Getenv("IDENTITY_ORACLE_URL"); url != "" {
		v.Set("oracles.identity.url", url)
	}
	if url := os.Getenv("FACE_ORACLE_URL"); url != "" {
		v.Set("oracles.face.url", url)
	}
	if url := os.Getenv("BANK_ORACLE_URL"); url != "" {
		v.Set("oracles.bank.url", url)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee
func (c *Config) Validate() error {
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.maxRetries must be >= 0, got %d", c.Pipeline.MaxRetries)
	}
	if c.Pipeline.IdentityDigits <= 0 {
		return fmt.Errorf("pipeline.identityDigits must be positive, got %d", c.Pipeline.IdentityDigits)
	}
	if c.NATS.Jobs.MaxDeliver > 0 && c.NATS.Jobs.MaxDeliver <= c.Pipeline.MaxRetries {
		return fmt.Errorf("nats.jobs.maxDeliver (%d) must exceed pipeline.maxRetries (%d)", c.NATS.Jobs.MaxDeliver, c.Pipeline.MaxRetries)
	}
	if _, err := c.Fetcher.MaxSizeBytes(); err != nil {
		return err
	}
	return nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(append([]string{}, parts...), tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}
