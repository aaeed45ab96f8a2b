package configuration

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/scusemua/livy-notebook/common/livy"
	"github.com/scusemua/livy-notebook/common/livy/client"
	"github.com/scusemua/livy-notebook/common/livy/command"
	"github.com/scusemua/livy-notebook/common/livy/controller"
	"github.com/scusemua/livy-notebook/common/livy/session"
	"github.com/scusemua/livy-notebook/common/utils"
	"github.com/shopspring/decimal"
)

const (
	DefaultLivyUrl = "http://localhost:8998"

	DefaultFatalErrorSuggestion = "The code failed because of a fatal error:\n\t%s.\n\n" +
		"Some things to try:\n" +
		"a) Make sure Spark has enough available resources for the notebook to create a session.\n" +
		"b) Contact your administrator to make sure the Spark magics library is configured correctly.\n" +
		"c) Restart the kernel."
)

// Credentials are the connection parameters of the gateway used for one language.
type Credentials struct {
	Url      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`

	// Base64Password takes precedence over Password when set.
	Base64Password string `json:"base64_password"`

	// Auth is "None" or "Basic". If empty, it is inferred from the username and password.
	Auth string `json:"auth"`
}

// LivyOptions configures the retry policy, session timing, sampling defaults, credentials, and per-language session
// properties.
//
// LivyOptions is only ever read by the components it configures.
type LivyOptions struct {
	RetrySecondsToSleepList string  `name:"retry_seconds_to_sleep_list"            json:"retry_seconds_to_sleep_list"            yaml:"retry_seconds_to_sleep_list"            description:"Comma-separated backoff schedule in seconds. The last entry is repeated once the schedule is exhausted."`
	MaxRetries              int     `name:"configurable_retry_policy_max_retries"  json:"configurable_retry_policy_max_retries"  yaml:"configurable_retry_policy_max_retries"  description:"Maximum number of times a failed request to the gateway is retried."`
	RetryableStatusCodes    string  `name:"retryable_status_codes"                 json:"retryable_status_codes"                 yaml:"retryable_status_codes"                 description:"Comma-separated HTTP status codes that are retried."`
	RequestTimeoutSeconds   int     `name:"request_timeout_seconds"                json:"request_timeout_seconds"                yaml:"request_timeout_seconds"                description:"Timeout of a single request to the gateway."`
	RequestsPerSecond       float64 `name:"requests_per_second"                    json:"requests_per_second"                    yaml:"requests_per_second"                    description:"Maximum rate of requests sent to one gateway. Zero means unlimited."`
	RequestBurst            int     `name:"request_burst"                          json:"request_burst"                          yaml:"request_burst"                          description:"Burst size used with requests_per_second."`

	StartupTimeoutSeconds             int `name:"livy_session_startup_timeout_seconds"  json:"livy_session_startup_timeout_seconds"  yaml:"livy_session_startup_timeout_seconds"  description:"Time allowed for a new session to become idle."`
	StartupPollIntervalMillis         int `name:"session_startup_poll_interval_ms"      json:"session_startup_poll_interval_ms"      yaml:"session_startup_poll_interval_ms"      description:"Interval between status polls while a session starts."`
	StatementPollInitialMillis        int `name:"statement_poll_initial_ms"             json:"statement_poll_initial_ms"             yaml:"statement_poll_initial_ms"             description:"First interval between statement polls."`
	StatementPollMaxMillis            int `name:"statement_poll_max_ms"                 json:"statement_poll_max_ms"                 yaml:"statement_poll_max_ms"                 description:"Maximum interval between statement polls."`
	HeartbeatRefreshSeconds           int `name:"heartbeat_refresh_seconds"             json:"heartbeat_refresh_seconds"             yaml:"heartbeat_refresh_seconds"             description:"Interval between keep-alive refreshes of a session."`
	HeartbeatRetrySeconds             int `name:"heartbeat_retry_seconds"               json:"heartbeat_retry_seconds"               yaml:"heartbeat_retry_seconds"               description:"Interval before retrying a failed keep-alive refresh."`
	LivyServerHeartbeatTimeoutSeconds int `name:"livy_server_heartbeat_timeout_seconds" json:"livy_server_heartbeat_timeout_seconds" yaml:"livy_server_heartbeat_timeout_seconds" description:"Server-side inactivity timeout of sessions. Zero disables the timeout and the keep-alive."`

	DefaultMaxRows        int     `name:"default_maxrows"        json:"default_maxrows"        yaml:"default_maxrows"        description:"Maximum number of rows returned by a query. Negative returns every row."`
	DefaultSampleMethod   string  `name:"default_samplemethod"   json:"default_samplemethod"   yaml:"default_samplemethod"   description:"How rows of a query result are chosen: 'take' or 'sample'."`
	DefaultSampleFraction float64 `name:"default_samplefraction" json:"default_samplefraction" yaml:"default_samplefraction" description:"Fraction of rows sampled when default_samplemethod is 'sample'."`
	CoerceDataframe       bool    `name:"coerce_dataframe"       json:"coerce_dataframe"       yaml:"coerce_dataframe"       description:"Convert numeric values of query results to numbers."`

	SwitchToUserDatabase bool   `name:"switch_to_user_database" json:"switch_to_user_database" yaml:"switch_to_user_database" description:"Run 'use <user_database>' after creating a session."`
	UserDatabase         string `name:"user_database"           json:"user_database"           yaml:"user_database"           description:"Database to switch to after creating a session."`
	IsSqlRestrict        bool   `name:"is_sql_restrict"         json:"is_sql_restrict"         yaml:"is_sql_restrict"         description:"Refuse queries that list or switch databases."`

	LivyUrl            string `name:"livy_url"            json:"livy_url"            yaml:"livy_url"            description:"URL of the gateway."`
	LivyUsername       string `name:"livy_username"       json:"livy_username"       yaml:"livy_username"       description:"Username used to authenticate with the gateway."`
	LivyPassword       string `name:"livy_password"       json:"livy_password"       yaml:"livy_password"       description:"Password used to authenticate with the gateway."`
	LivyBase64Password string `name:"livy_base64_password" json:"livy_base64_password" yaml:"livy_base64_password" description:"Base64-encoded password. Takes precedence over livy_password."`
	LivyAuth           string `name:"livy_auth"           json:"livy_auth"           yaml:"livy_auth"           description:"Authentication type: 'None' or 'Basic'. Inferred from the credentials if empty."`
	KernelCredentials  string `name:"kernel_credentials"  json:"kernel_credentials"  yaml:"kernel_credentials"  description:"JSON object mapping a language (python, python3, scala, r, sql) to credentials that override the livy_* options."`
	CustomHeaders      string `name:"custom_headers"      json:"custom_headers"      yaml:"custom_headers"      description:"Comma-separated key=value headers sent with every request."`

	SessionConfigs    string `name:"session_configs"     json:"session_configs"     yaml:"session_configs"     description:"JSON object of additional session properties (driverMemory, executorCores, conf, ...)."`
	PysparkExtraConf  string `name:"pyspark_extra_conf"  json:"pyspark_extra_conf"  yaml:"pyspark_extra_conf"  description:"Comma-separated key=value Spark configuration added to python sessions."`
	Pyspark3ExtraConf string `name:"pyspark3_extra_conf" json:"pyspark3_extra_conf" yaml:"pyspark3_extra_conf" description:"Comma-separated key=value Spark configuration added to python3 sessions."`

	YarnQueue     string `name:"yarn_queue"      json:"yarn_queue"      yaml:"yarn_queue"      description:"Default YARN queue of new sessions."`
	YarnQueueList string `name:"yarn_queue_list" json:"yarn_queue_list" yaml:"yarn_queue_list" description:"Comma-separated YARN queues the user may select."`

	FatalErrorSuggestion string `name:"fatal_error_suggestion" json:"fatal_error_suggestion" yaml:"fatal_error_suggestion" description:"Message shown when a session cannot be created. '%s' is replaced by the error."`
}

// DefaultLivyOptions returns the options used when nothing is configured.
func DefaultLivyOptions() LivyOptions {
	return LivyOptions{
		RetrySecondsToSleepList:           "0.2,0.5,1,3,5",
		MaxRetries:                        client.DefaultMaxRetries,
		RetryableStatusCodes:              "500,502,503,504",
		RequestTimeoutSeconds:             int(client.DefaultRequestTimeout / time.Second),
		RequestBurst:                      1,
		StartupTimeoutSeconds:             int(session.DefaultStartupTimeout / time.Second),
		StartupPollIntervalMillis:         int(session.DefaultStartupPollInterval / time.Millisecond),
		StatementPollInitialMillis:        int(session.DefaultStatementPollInitial / time.Millisecond),
		StatementPollMaxMillis:            int(session.DefaultStatementPollMax / time.Millisecond),
		HeartbeatRefreshSeconds:           int(session.DefaultHeartbeatRefreshInterval / time.Second),
		HeartbeatRetrySeconds:             int(session.DefaultHeartbeatRetryInterval / time.Second),
		LivyServerHeartbeatTimeoutSeconds: 0,
		DefaultMaxRows:                    command.DefaultMaxRows,
		DefaultSampleMethod:               string(command.SampleTake),
		DefaultSampleFraction:             0.1,
		CoerceDataframe:                   true,
		SwitchToUserDatabase:              false,
		IsSqlRestrict:                     true,
		LivyUrl:                           DefaultLivyUrl,
		SessionConfigs:                    "{}",
		PysparkExtraConf:                  "spark.yarn.appMasterEnv.PYSPARK_PYTHON=/usr/local/bin/python2.7,spark.yarn.appMasterEnv.PYSPARK_DRIVER_PYTHON=/usr/local/bin/python2.7",
		Pyspark3ExtraConf:                 "spark.yarn.appMasterEnv.PYSPARK_PYTHON=/usr/local/bin/python3.6,spark.yarn.appMasterEnv.PYSPARK_DRIVER_PYTHON=/usr/local/bin/python3.6",
		FatalErrorSuggestion:              DefaultFatalErrorSuggestion,
	}
}

// Validate returns an error wrapping livy.ErrBadConfiguration if any option is invalid.
func (opts *LivyOptions) Validate() error {
	if _, err := opts.RetryPolicy(); err != nil {
		return err
	}

	if opts.RequestTimeoutSeconds <= 0 {
		return livy.NewBadConfigurationError(fmt.Sprintf("request_timeout_seconds must be positive, got %d", opts.RequestTimeoutSeconds))
	}

	if opts.StartupTimeoutSeconds <= 0 {
		return livy.NewBadConfigurationError(fmt.Sprintf("livy_session_startup_timeout_seconds must be positive, got %d", opts.StartupTimeoutSeconds))
	}

	if opts.LivyServerHeartbeatTimeoutSeconds < 0 {
		return livy.NewBadConfigurationError("livy_server_heartbeat_timeout_seconds must not be negative")
	}

	if err := opts.SamplingDefaults().Validate(); err != nil {
		return err
	}

	if _, err := utils.ParseKeyValueList(opts.CustomHeaders); err != nil {
		return livy.NewBadConfigurationError(err.Error())
	}

	if _, err := opts.sessionConfigs(); err != nil {
		return err
	}

	if _, err := opts.kernelCredentials(); err != nil {
		return err
	}

	for _, language := range []livy.Language{livy.LangPython, livy.LangPython3, livy.LangScala, livy.LangR, livy.LangSQL} {
		if _, err := opts.EndpointFor(language); err != nil {
			return err
		}
	}

	return nil
}

// RetryPolicy builds the retry policy of gateway clients.
func (opts *LivyOptions) RetryPolicy() (*client.RetryPolicy, error) {
	schedule, err := utils.ParseSecondsList(opts.RetrySecondsToSleepList)
	if err != nil {
		return nil, livy.NewBadConfigurationError(err.Error())
	}

	codes, err := utils.ParseIntList(opts.RetryableStatusCodes)
	if err != nil {
		return nil, livy.NewBadConfigurationError(err.Error())
	}

	return client.NewRetryPolicy(opts.MaxRetries, schedule, codes)
}

// ClientOptions returns the options of gateway clients.
func (opts *LivyOptions) ClientOptions() []client.Option {
	return []client.Option{
		client.WithRequestTimeout(time.Duration(opts.RequestTimeoutSeconds) * time.Second),
		client.WithRateLimit(opts.RequestsPerSecond, opts.RequestBurst),
	}
}

func (opts *LivyOptions) SessionOptions() session.Options {
	return session.Options{
		StartupTimeout:           time.Duration(opts.StartupTimeoutSeconds) * time.Second,
		StartupPollInterval:      time.Duration(opts.StartupPollIntervalMillis) * time.Millisecond,
		StatementPollInitial:     time.Duration(opts.StatementPollInitialMillis) * time.Millisecond,
		StatementPollMax:         time.Duration(opts.StatementPollMaxMillis) * time.Millisecond,
		HeartbeatTimeout:         time.Duration(opts.LivyServerHeartbeatTimeoutSeconds) * time.Second,
		HeartbeatRefreshInterval: time.Duration(opts.HeartbeatRefreshSeconds) * time.Second,
		HeartbeatRetryInterval:   time.Duration(opts.HeartbeatRetrySeconds) * time.Second,
	}
}

func (opts *LivyOptions) SamplingDefaults() command.SamplingOptions {
	return command.SamplingOptions{
		Method:   command.SampleMethod(opts.DefaultSampleMethod),
		MaxRows:  opts.DefaultMaxRows,
		Fraction: decimal.NewFromFloat(opts.DefaultSampleFraction),
		Coerce:   opts.CoerceDataframe,
	}
}

// ControllerSettings returns the settings of a controller.Controller. The retry policy must be valid.
func (opts *LivyOptions) ControllerSettings() (controller.Settings, error) {
	policy, err := opts.RetryPolicy()
	if err != nil {
		return controller.Settings{}, err
	}

	return controller.Settings{
		SessionOptions:       opts.SessionOptions(),
		RetryPolicy:          policy,
		ClientOptions:        opts.ClientOptions(),
		SwitchToUserDatabase: opts.SwitchToUserDatabase,
		UserDatabase:         opts.UserDatabase,
		RestrictSQL:          opts.IsSqlRestrict,
		Sampling:             opts.SamplingDefaults(),
	}, nil
}

func (opts *LivyOptions) kernelCredentials() (map[livy.Language]*Credentials, error) {
	credentials := make(map[livy.Language]*Credentials)
	if strings.TrimSpace(opts.KernelCredentials) == "" {
		return credentials, nil
	}

	if err := json.Unmarshal([]byte(opts.KernelCredentials), &credentials); err != nil {
		return nil, livy.NewBadConfigurationError(fmt.Sprintf("invalid kernel_credentials: %v", err))
	}

	return credentials, nil
}

// CredentialsFor returns the credentials of a language: the livy_* options, overridden by the non-empty fields of
// the language's kernel_credentials entry.
func (opts *LivyOptions) CredentialsFor(language livy.Language) (*Credentials, error) {
	credentials := &Credentials{
		Url:            opts.LivyUrl,
		Username:       opts.LivyUsername,
		Password:       opts.LivyPassword,
		Base64Password: opts.LivyBase64Password,
		Auth:           opts.LivyAuth,
	}

	overrides, err := opts.kernelCredentials()
	if err != nil {
		return nil, err
	}

	if override, ok := overrides[language]; ok && override != nil {
		if override.Url != "" {
			credentials.Url = override.Url
		}
		if override.Username != "" {
			credentials.Username = override.Username
		}
		if override.Password != "" {
			credentials.Password = override.Password
		}
		if override.Base64Password != "" {
			credentials.Base64Password = override.Base64Password
		}
		if override.Auth != "" {
			credentials.Auth = override.Auth
		}
	}

	return credentials, nil
}

// EndpointFor returns the gateway endpoint used for sessions of the given language.
func (opts *LivyOptions) EndpointFor(language livy.Language) (*livy.Endpoint, error) {
	credentials, err := opts.CredentialsFor(language)
	if err != nil {
		return nil, err
	}

	password := credentials.Password
	if credentials.Base64Password != "" {
		decoded, err := base64.StdEncoding.DecodeString(credentials.Base64Password)
		if err != nil {
			return nil, livy.NewBadConfigurationError(fmt.Sprintf("base64_password of %s is not valid base64", language))
		}

		password = string(decoded)
	}

	headers, err := utils.ParseKeyValueList(opts.CustomHeaders)
	if err != nil {
		return nil, livy.NewBadConfigurationError(err.Error())
	}

	return livy.NewEndpoint(credentials.Url, livy.AuthType(credentials.Auth), credentials.Username, password, headers)
}

func (opts *LivyOptions) sessionConfigs() (map[string]interface{}, error) {
	configs := make(map[string]interface{})
	if strings.TrimSpace(opts.SessionConfigs) == "" {
		return configs, nil
	}

	if err := json.Unmarshal([]byte(opts.SessionConfigs), &configs); err != nil {
		return nil, livy.NewBadConfigurationError(fmt.Sprintf("invalid session_configs: %v", err))
	}

	return configs, nil
}

// SessionPropertiesFor returns the properties of new sessions of the given language: the kind, session_configs,
// the language's extra Spark configuration, and the default YARN queue. Each call returns a new value.
func (opts *LivyOptions) SessionPropertiesFor(language livy.Language) (*livy.SessionProperties, error) {
	kind, err := livy.LanguageToKind(language)
	if err != nil {
		return nil, err
	}

	configs, err := opts.sessionConfigs()
	if err != nil {
		return nil, err
	}

	properties := &livy.SessionProperties{
		Kind:     kind,
		Language: language,
		Conf:     make(map[string]string),
		Extra:    make(map[string]interface{}),
	}

	for key, value := range configs {
		if key == "conf" {
			conf, ok := value.(map[string]interface{})
			if !ok {
				return nil, livy.NewBadConfigurationError("session_configs.conf must be an object")
			}

			for confKey, confValue := range conf {
				properties.Conf[confKey] = fmt.Sprintf("%v", confValue)
			}
			continue
		}

		properties.Extra[key] = value
	}

	var extraConf string
	switch language {
	case livy.LangPython:
		extraConf = opts.PysparkExtraConf
	case livy.LangPython3:
		extraConf = opts.Pyspark3ExtraConf
	}

	extra, err := utils.ParseKeyValueList(extraConf)
	if err != nil {
		return nil, livy.NewBadConfigurationError(err.Error())
	}

	for key, value := range extra {
		properties.Conf[key] = value
	}

	if opts.LivyServerHeartbeatTimeoutSeconds > 0 {
		properties.HeartbeatTimeoutInSecond = opts.LivyServerHeartbeatTimeoutSeconds
	}

	properties.SetQueue(opts.YarnQueue)

	return properties, nil
}

func (opts *LivyOptions) DefaultQueue() string {
	return opts.YarnQueue
}

func (opts *LivyOptions) QueueList() []string {
	queues := make([]string, 0)
	for _, queue := range strings.Split(opts.YarnQueueList, ",") {
		if queue = strings.TrimSpace(queue); queue != "" {
			queues = append(queues, queue)
		}
	}

	return queues
}

// FatalErrorMessage formats an error with the fatal error suggestion.
func (opts *LivyOptions) FatalErrorMessage(err error) string {
	if !strings.Contains(opts.FatalErrorSuggestion, "%s") {
		return opts.FatalErrorSuggestion + "\n" + err.Error()
	}

	return fmt.Sprintf(opts.FatalErrorSuggestion, err.Error())
}

// PrettyString is the same as String, except that PrettyString calls json.MarshalIndent instead of json.Marshal.
func (opts *LivyOptions) PrettyString(indentSize int) string {
	indentBuilder := strings.Builder{}
	for i := 0; i < indentSize; i++ {
		indentBuilder.WriteString(" ")
	}

	m, err := json.MarshalIndent(opts.redacted(), "", indentBuilder.String())
	if err != nil {
		panic(err)
	}

	return string(m)
}

func (opts *LivyOptions) Clone() *LivyOptions {
	clone := *opts
	return &clone
}

func (opts *LivyOptions) String() string {
	m, err := json.Marshal(opts.redacted())
	if err != nil {
		panic(err)
	}

	return string(m)
}

// redacted returns a copy of the options without passwords.
func (opts *LivyOptions) redacted() *LivyOptions {
	clone := opts.Clone()
	if clone.LivyPassword != "" {
		clone.LivyPassword = "*****"
	}
	if clone.LivyBase64Password != "" {
		clone.LivyBase64Password = "*****"
	}
	if clone.KernelCredentials != "" {
		clone.KernelCredentials = "*****"
	}

	return clone
}
