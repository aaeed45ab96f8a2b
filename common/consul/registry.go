package consul

import (
	"fmt"
	"net"
	"strconv"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	consul "github.com/hashicorp/consul/api"
	"github.com/pkg/errors"
)

var (
	ErrNoHealthyInstances = errors.New("no healthy instances of service")
)

// HealthService is the part of the Consul health API used to look up services.
type HealthService interface {
	Service(service string, tag string, passingOnly bool, q *consul.QueryOptions) ([]*consul.ServiceEntry, *consul.QueryMeta, error)
}

// NewClient returns a new Client with connection to consul
func NewClient(addr string) (*Client, error) {
	cfg := consul.DefaultConfig()
	cfg.Address = addr

	c, err := consul.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return NewClientWithHealth(c.Health()), nil
}

// NewClientWithHealth returns a Client that looks services up through the given health API.
func NewClientWithHealth(health HealthService) *Client {
	cli := &Client{health: health}
	config.InitLogger(&cli.logger, "Consul ")
	return cli
}

// Client resolves the address of the gateway from the Consul catalog.
type Client struct {
	health HealthService

	logger logger.Logger
}

// ResolveServiceURL returns the base URL of a healthy instance of the named service.
// The instance's service address is preferred over its node address.
func (c *Client) ResolveServiceURL(name string, scheme string) (string, error) {
	entries, _, err := c.health.Service(name, "", true, nil)
	if err != nil {
		return "", errors.Wrapf(err, "failed to look up service \"%s\"", name)
	}

	for _, entry := range entries {
		if entry == nil || entry.Service == nil {
			continue
		}

		host := entry.Service.Address
		if host == "" && entry.Node != nil {
			host = entry.Node.Address
		}

		if host == "" {
			continue
		}

		if scheme == "" {
			scheme = "http"
		}

		url := fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, strconv.Itoa(entry.Service.Port)))
		c.logger.Debug("Resolved service \"%s\" to %s.", name, url)
		return url, nil
	}

	return "", errors.Wrapf(ErrNoHealthyInstances, "\"%s\"", name)
}
