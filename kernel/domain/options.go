package domain

import (
	"fmt"
	"strings"

	"github.com/Scusemua/go-utils/config"
	"github.com/goccy/go-json"
	"github.com/scusemua/livy-notebook/common/configuration"
	"github.com/scusemua/livy-notebook/common/livy"
)

const (
	// DefaultPrometheusPort of 0 disables the metrics server.
	DefaultPrometheusPort = 0

	DefaultConsulServiceName = "livy"
	DefaultLanguage          = string(livy.LangPython)
)

type KernelOptions struct {
	config.LoggerOptions
	configuration.LivyOptions `yaml:",inline" json:"livy_options"`

	KernelId  string `name:"kernel_id"    json:"kernel_id"    yaml:"kernel_id"    description:"Identifier of the front-end instance. Sessions are named after it, so reusing an id re-attaches to its session. A random id is used if empty."`
	Language  string `name:"language"     json:"language"     yaml:"language"     description:"Language of the session: python, python3, scala, r, or sql."`
	ProxyUser string `name:"proxy_user"   json:"proxy_user"   yaml:"proxy_user"   description:"User the sessions run as. Defaults to the current user."`

	PrometheusPort    int    `name:"prometheus_port"     json:"prometheus_port"     yaml:"prometheus_port"     description:"Port on which Prometheus metrics are served. Zero disables the metrics server."`
	JaegerAddr        string `name:"jaeger_addr"         json:"jaeger_addr"         yaml:"jaeger_addr"         description:"host:port of the Jaeger agent. Tracing is disabled if empty."`
	ConsulAddr        string `name:"consul_addr"         json:"consul_addr"         yaml:"consul_addr"         description:"Address of the Consul agent. If set, the gateway URL is looked up in Consul."`
	ConsulServiceName string `name:"consul_service_name" json:"consul_service_name" yaml:"consul_service_name" description:"Name of the gateway service registered in Consul."`

	PrettyPrintOptions bool `name:"pretty_print_options" json:"pretty_print_options" yaml:"pretty_print_options" description:"Print the options on startup."`
}

// DefaultKernelOptions returns the options used when nothing is configured.
func DefaultKernelOptions() KernelOptions {
	return KernelOptions{
		LivyOptions:       configuration.DefaultLivyOptions(),
		Language:          DefaultLanguage,
		PrometheusPort:    DefaultPrometheusPort,
		ConsulServiceName: DefaultConsulServiceName,
	}
}

// Validate checks the options after they have been parsed.
func (o *KernelOptions) Validate() error {
	if _, err := livy.LanguageToKind(o.SessionLanguage()); err != nil {
		return err
	}

	if o.PrometheusPort < 0 {
		return livy.NewBadConfigurationError(fmt.Sprintf("invalid prometheus_port %d", o.PrometheusPort))
	}

	return o.LivyOptions.Validate()
}

func (o *KernelOptions) SessionLanguage() livy.Language {
	return livy.Language(strings.ToLower(strings.TrimSpace(o.Language)))
}

func (o *KernelOptions) String() string {
	m, err := json.Marshal(o.redacted())
	if err != nil {
		panic(err)
	}

	return string(m)
}

// PrettyString is the same as String, except that PrettyString calls json.MarshalIndent instead of json.Marshal.
func (o *KernelOptions) PrettyString(indentSize int) string {
	m, err := json.MarshalIndent(o.redacted(), "", strings.Repeat(" ", indentSize))
	if err != nil {
		panic(err)
	}

	return string(m)
}

func (o *KernelOptions) redacted() map[string]interface{} {
	var livyOptions map[string]interface{}
	if err := json.Unmarshal([]byte(o.LivyOptions.String()), &livyOptions); err != nil {
		panic(err)
	}

	return map[string]interface{}{
		"livy_options":         livyOptions,
		"kernel_id":            o.KernelId,
		"language":             o.Language,
		"proxy_user":           o.ProxyUser,
		"prometheus_port":      o.PrometheusPort,
		"jaeger_addr":          o.JaegerAddr,
		"consul_addr":          o.ConsulAddr,
		"consul_service_name":  o.ConsulServiceName,
		"pretty_print_options": o.PrettyPrintOptions,
		"debug":                o.Debug,
		"verbose":              o.LoggerOptions.Verbose,
	}
}
