package consul_test

import (
	"errors"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/scusemua/livy-notebook/common/consul"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeHealth struct {
	entries []*consulapi.ServiceEntry
	err     error

	service     string
	passingOnly bool
}

func (h *fakeHealth) Service(service string, _ string, passingOnly bool, _ *consulapi.QueryOptions) ([]*consulapi.ServiceEntry, *consulapi.QueryMeta, error) {
	h.service = service
	h.passingOnly = passingOnly
	return h.entries, &consulapi.QueryMeta{}, h.err
}

var _ = Describe("Client", func() {
	It("will prefer the service address", func() {
		health := &fakeHealth{entries: []*consulapi.ServiceEntry{
			{
				Node:    &consulapi.Node{Address: "10.0.0.1"},
				Service: &consulapi.AgentService{Address: "livy.internal", Port: 8998},
			},
		}}

		url, err := consul.NewClientWithHealth(health).ResolveServiceURL("livy", "")
		Expect(err).To(BeNil())
		Expect(url).To(Equal("http://livy.internal:8998"))
		Expect(health.service).To(Equal("livy"))
		Expect(health.passingOnly).To(BeTrue())
	})

	It("will fall back to the node address", func() {
		health := &fakeHealth{entries: []*consulapi.ServiceEntry{
			{Service: nil},
			{
				Node:    &consulapi.Node{Address: "10.0.0.2"},
				Service: &consulapi.AgentService{Port: 8999},
			},
		}}

		url, err := consul.NewClientWithHealth(health).ResolveServiceURL("livy", "https")
		Expect(err).To(BeNil())
		Expect(url).To(Equal("https://10.0.0.2:8999"))
	})

	It("will fail when there are no healthy instances", func() {
		health := &fakeHealth{entries: []*consulapi.ServiceEntry{
			{Service: &consulapi.AgentService{Port: 8998}},
		}}

		_, err := consul.NewClientWithHealth(health).ResolveServiceURL("livy", "http")
		Expect(errors.Is(err, consul.ErrNoHealthyInstances)).To(BeTrue())
	})

	It("will return lookup failures", func() {
		lookupErr := errors.New("connection refused")
		health := &fakeHealth{err: lookupErr}

		_, err := consul.NewClientWithHealth(health).ResolveServiceURL("livy", "http")
		Expect(errors.Is(err, lookupErr)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("\"livy\""))
	})
})
