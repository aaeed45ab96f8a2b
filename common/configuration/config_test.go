package configuration_test

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/scusemua/livy-notebook/common/configuration"
	"github.com/scusemua/livy-notebook/common/livy"
	"github.com/scusemua/livy-notebook/common/livy/command"
	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LivyOptions", func() {
	var opts configuration.LivyOptions

	BeforeEach(func() {
		opts = configuration.DefaultLivyOptions()
	})

	It("will be valid by default", func() {
		Expect(opts.Validate()).To(Succeed())
	})

	Context("Retries", func() {
		It("will build the default retry policy", func() {
			policy, err := opts.RetryPolicy()
			Expect(err).To(BeNil())
			Expect(policy.MaxRetries()).To(Equal(8))
			Expect(policy.BackoffSchedule()).To(Equal([]time.Duration{
				200 * time.Millisecond,
				500 * time.Millisecond,
				time.Second,
				3 * time.Second,
				5 * time.Second,
			}))
			Expect(policy.IsRetryableStatus(503)).To(BeTrue())
			Expect(policy.IsRetryableStatus(404)).To(BeFalse())
		})

		It("will reject invalid retry settings", func() {
			opts.RetrySecondsToSleepList = "1,two"
			Expect(errors.Is(opts.Validate(), livy.ErrBadConfiguration)).To(BeTrue())

			opts = configuration.DefaultLivyOptions()
			opts.RetrySecondsToSleepList = "1,-2"
			Expect(errors.Is(opts.Validate(), livy.ErrBadConfiguration)).To(BeTrue())

			opts = configuration.DefaultLivyOptions()
			opts.MaxRetries = -1
			Expect(errors.Is(opts.Validate(), livy.ErrBadConfiguration)).To(BeTrue())

			opts = configuration.DefaultLivyOptions()
			opts.RetryableStatusCodes = "500,abc"
			Expect(errors.Is(opts.Validate(), livy.ErrBadConfiguration)).To(BeTrue())

			opts = configuration.DefaultLivyOptions()
			opts.RequestTimeoutSeconds = 0
			Expect(errors.Is(opts.Validate(), livy.ErrBadConfiguration)).To(BeTrue())
		})
	})

	Context("Controller settings", func() {
		It("will convert durations and sampling defaults", func() {
			opts.StartupTimeoutSeconds = 120
			opts.StatementPollMaxMillis = 500
			opts.LivyServerHeartbeatTimeoutSeconds = 90
			opts.DefaultSampleMethod = "sample"
			opts.DefaultSampleFraction = 0.25
			opts.DefaultMaxRows = -1
			opts.SwitchToUserDatabase = true
			opts.UserDatabase = "analytics"

			settings, err := opts.ControllerSettings()
			Expect(err).To(BeNil())

			Expect(settings.SessionOptions.StartupTimeout).To(Equal(2 * time.Minute))
			Expect(settings.SessionOptions.StartupPollInterval).To(Equal(time.Second))
			Expect(settings.SessionOptions.StatementPollInitial).To(Equal(100 * time.Millisecond))
			Expect(settings.SessionOptions.StatementPollMax).To(Equal(500 * time.Millisecond))
			Expect(settings.SessionOptions.HeartbeatTimeout).To(Equal(90 * time.Second))
			Expect(settings.SessionOptions.HeartbeatRefreshInterval).To(Equal(30 * time.Second))

			Expect(settings.Sampling.Method).To(Equal(command.SampleRandom))
			Expect(settings.Sampling.Fraction.Equal(decimal.NewFromFloat(0.25))).To(BeTrue())
			Expect(settings.Sampling.AllRows()).To(BeTrue())
			Expect(settings.Sampling.Coerce).To(BeTrue())

			Expect(settings.SwitchToUserDatabase).To(BeTrue())
			Expect(settings.UserDatabase).To(Equal("analytics"))
			Expect(settings.RestrictSQL).To(BeTrue())
			Expect(settings.RetryPolicy).ToNot(BeNil())
			Expect(settings.ClientOptions).To(HaveLen(2))
		})

		It("will reject invalid sampling defaults", func() {
			opts.DefaultSampleMethod = "first"
			Expect(errors.Is(opts.Validate(), livy.ErrBadConfiguration)).To(BeTrue())

			opts.DefaultSampleMethod = "sample"
			opts.DefaultSampleFraction = 2
			Expect(errors.Is(opts.Validate(), livy.ErrBadConfiguration)).To(BeTrue())
		})
	})

	Context("Endpoints", func() {
		It("will use the livy options by default", func() {
			opts.LivyUrl = "http://gateway:8998/"
			opts.CustomHeaders = "X-Tenant=research, X-Trace = on"

			endpoint, err := opts.EndpointFor(livy.LangScala)
			Expect(err).To(BeNil())
			Expect(endpoint.URL()).To(Equal("http://gateway:8998"))
			Expect(endpoint.Auth()).To(Equal(livy.AuthNone))
			Expect(endpoint.CustomHeaders()).To(Equal(map[string]string{"X-Tenant": "research", "X-Trace": "on"}))
		})

		It("will override the livy options with the language's credentials", func() {
			opts.LivyUsername = "shared"
			opts.LivyPassword = "shared-secret"
			opts.KernelCredentials = fmt.Sprintf(`{"python3": {"url": "https://py3:8998", "username": "alice", "base64_password": "%s"}}`,
				base64.StdEncoding.EncodeToString([]byte("s3cret")))

			endpoint, err := opts.EndpointFor(livy.LangPython3)
			Expect(err).To(BeNil())
			Expect(endpoint.URL()).To(Equal("https://py3:8998"))
			Expect(endpoint.Auth()).To(Equal(livy.AuthBasic))
			Expect(endpoint.Username()).To(Equal("alice"))
			Expect(endpoint.AuthorizationHeader()).To(Equal("Basic " + base64.StdEncoding.EncodeToString([]byte("alice:s3cret"))))

			endpoint, err = opts.EndpointFor(livy.LangScala)
			Expect(err).To(BeNil())
			Expect(endpoint.URL()).To(Equal(configuration.DefaultLivyUrl))
			Expect(endpoint.Username()).To(Equal("shared"))
			Expect(endpoint.AuthorizationHeader()).To(Equal("Basic " + base64.StdEncoding.EncodeToString([]byte("shared:shared-secret"))))
		})

		It("will reject invalid credentials", func() {
			opts.KernelCredentials = `{"python": `
			Expect(errors.Is(opts.Validate(), livy.ErrBadConfiguration)).To(BeTrue())

			opts = configuration.DefaultLivyOptions()
			opts.LivyBase64Password = "%%%"
			opts.LivyUsername = "alice"
			Expect(errors.Is(opts.Validate(), livy.ErrBadConfiguration)).To(BeTrue())

			opts = configuration.DefaultLivyOptions()
			opts.LivyUrl = "not a url"
			Expect(errors.Is(opts.Validate(), livy.ErrBadConfiguration)).To(BeTrue())

			opts = configuration.DefaultLivyOptions()
			opts.LivyAuth = "Kerberos"
			Expect(errors.Is(opts.Validate(), livy.ErrBadConfiguration)).To(BeTrue())

			opts = configuration.DefaultLivyOptions()
			opts.CustomHeaders = "X-Broken"
			Expect(errors.Is(opts.Validate(), livy.ErrBadConfiguration)).To(BeTrue())
		})
	})

	Context("Session properties", func() {
		It("will build the properties of each language", func() {
			opts.SessionConfigs = `{"driverMemory": "1000M", "executorCores": 2, "conf": {"spark.dynamicAllocation.enabled": false}}`
			opts.YarnQueue = "research"
			opts.LivyServerHeartbeatTimeoutSeconds = 60

			props, err := opts.SessionPropertiesFor(livy.LangPython)
			Expect(err).To(BeNil())
			Expect(props.Kind).To(Equal(livy.KindPySpark))
			Expect(props.Language).To(Equal(livy.LangPython))
			Expect(props.Extra).To(HaveKeyWithValue("driverMemory", "1000M"))
			Expect(props.Extra).To(HaveKey("executorCores"))
			Expect(props.Extra).ToNot(HaveKey("conf"))
			Expect(props.Conf).To(HaveKeyWithValue("spark.dynamicAllocation.enabled", "false"))
			Expect(props.Conf).To(HaveKeyWithValue("spark.yarn.appMasterEnv.PYSPARK_PYTHON", "/usr/local/bin/python2.7"))
			Expect(props.Conf).To(HaveKeyWithValue(livy.SparkYarnQueueConf, "research"))
			Expect(props.Queue).To(Equal("research"))
			Expect(props.HeartbeatTimeoutInSecond).To(Equal(60))

			props, err = opts.SessionPropertiesFor(livy.LangPython3)
			Expect(err).To(BeNil())
			Expect(props.Kind).To(Equal(livy.KindPySpark))
			Expect(props.Conf).To(HaveKeyWithValue("spark.yarn.appMasterEnv.PYSPARK_PYTHON", "/usr/local/bin/python3.6"))

			props, err = opts.SessionPropertiesFor(livy.LangScala)
			Expect(err).To(BeNil())
			Expect(props.Kind).To(Equal(livy.KindSpark))
			Expect(props.Conf).ToNot(HaveKey("spark.yarn.appMasterEnv.PYSPARK_PYTHON"))

			props, err = opts.SessionPropertiesFor(livy.LangR)
			Expect(err).To(BeNil())
			Expect(props.Kind).To(Equal(livy.KindSparkR))

			props, err = opts.SessionPropertiesFor(livy.LangSQL)
			Expect(err).To(BeNil())
			Expect(props.Kind).To(Equal(livy.KindSQL))
		})

		It("will return a new value on every call", func() {
			first, err := opts.SessionPropertiesFor(livy.LangScala)
			Expect(err).To(BeNil())
			first.Conf["spark.executor.memory"] = "8g"
			first.Name = "changed"

			second, err := opts.SessionPropertiesFor(livy.LangScala)
			Expect(err).To(BeNil())
			Expect(second.Conf).ToNot(HaveKey("spark.executor.memory"))
			Expect(second.Name).To(BeEmpty())
		})

		It("will reject invalid session configs and languages", func() {
			opts.SessionConfigs = `{"conf": "spark.executor.memory=8g"}`
			_, err := opts.SessionPropertiesFor(livy.LangScala)
			Expect(errors.Is(err, livy.ErrBadConfiguration)).To(BeTrue())

			opts.SessionConfigs = `[1, 2]`
			Expect(errors.Is(opts.Validate(), livy.ErrBadConfiguration)).To(BeTrue())

			opts = configuration.DefaultLivyOptions()
			_, err = opts.SessionPropertiesFor(livy.Language("cobol"))
			Expect(errors.Is(err, livy.ErrBadConfiguration)).To(BeTrue())
		})
	})

	Context("Queues and messages", func() {
		It("will list the configured queues", func() {
			opts.YarnQueue = "default"
			opts.YarnQueueList = "default, research,,batch "

			Expect(opts.DefaultQueue()).To(Equal("default"))
			Expect(opts.QueueList()).To(Equal([]string{"default", "research", "batch"}))

			opts.YarnQueueList = ""
			Expect(opts.QueueList()).To(BeEmpty())
		})

		It("will format fatal errors", func() {
			msg := opts.FatalErrorMessage(errors.New("session 3 failed to start"))
			Expect(msg).To(HavePrefix("The code failed because of a fatal error:\n\tsession 3 failed to start."))
			Expect(msg).To(ContainSubstring("c) Restart the kernel."))

			opts.FatalErrorSuggestion = "Ask for help."
			Expect(opts.FatalErrorMessage(errors.New("boom"))).To(Equal("Ask for help.\nboom"))
		})

		It("will not print passwords", func() {
			opts.LivyPassword = "hunter2"
			opts.LivyBase64Password = "aHVudGVyMg=="
			opts.KernelCredentials = `{"python": {"password": "hunter3"}}`

			Expect(opts.String()).ToNot(ContainSubstring("hunter2"))
			Expect(opts.String()).ToNot(ContainSubstring("aHVudGVyMg=="))
			Expect(opts.PrettyString(2)).ToNot(ContainSubstring("hunter3"))
			Expect(opts.PrettyString(2)).To(ContainSubstring(`"livy_url": "http://localhost:8998"`))

			Expect(opts.Clone().LivyPassword).To(Equal("hunter2"))
		})
	})
})
