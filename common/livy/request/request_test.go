package request_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/scusemua/livy-notebook/common/livy"
	"github.com/scusemua/livy-notebook/common/livy/client"
	"github.com/scusemua/livy-notebook/common/livy/controller"
	"github.com/scusemua/livy-notebook/common/livy/manager"
	"github.com/scusemua/livy-notebook/common/livy/request"
	"github.com/scusemua/livy-notebook/common/livy/session"
	"github.com/scusemua/livy-notebook/testing/fake_livy"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type testConfig struct {
	endpoint *livy.Endpoint
	queue    string
	queues   []string
}

func (c *testConfig) EndpointFor(_ livy.Language) (*livy.Endpoint, error) {
	return c.endpoint, nil
}

func (c *testConfig) SessionPropertiesFor(language livy.Language) (*livy.SessionProperties, error) {
	kind, err := livy.LanguageToKind(language)
	if err != nil {
		return nil, err
	}

	return &livy.SessionProperties{Kind: kind, Language: language}, nil
}

func (c *testConfig) DefaultQueue() string {
	return c.queue
}

func (c *testConfig) QueueList() []string {
	return c.queues
}

var _ = Describe("Parse", func() {
	It("will parse queue requests", func() {
		req, err := request.Parse(map[string]interface{}{request.FieldRequestType: "get_yarn_queue"})
		Expect(err).To(BeNil())
		Expect(req).To(Equal(request.GetQueue{}))
		Expect(req.Type()).To(Equal(request.TypeGetQueue))

		req, err = request.Parse(map[string]interface{}{request.FieldRequestType: "set_yarn_queue", request.FieldYarnQueue: "research"})
		Expect(err).To(BeNil())
		Expect(req).To(Equal(request.SetQueue{Queue: "research"}))
		Expect(req.Type()).To(Equal(request.TypeSetQueue))
	})

	It("will reject unknown request types", func() {
		_, err := request.Parse(map[string]interface{}{request.FieldRequestType: "restart"})
		Expect(errors.Is(err, request.ErrUnknownRequest)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("restart"))

		_, err = request.Parse(map[string]interface{}{})
		Expect(errors.Is(err, request.ErrUnknownRequest)).To(BeTrue())
	})

	It("will reject a queue change without a queue", func() {
		_, err := request.Parse(map[string]interface{}{request.FieldRequestType: "set_yarn_queue"})
		Expect(errors.Is(err, request.ErrInvalidRequest)).To(BeTrue())

		_, err = request.Parse(map[string]interface{}{request.FieldRequestType: "set_yarn_queue", request.FieldYarnQueue: 7})
		Expect(errors.Is(err, request.ErrInvalidRequest)).To(BeTrue())
	})
})

var _ = Describe("Dispatcher", func() {
	var (
		fake       *fake_livy.FakeLivy
		cfg        *testConfig
		ctrl       *controller.Controller
		dispatcher *request.Dispatcher
		ctx        context.Context
	)

	BeforeEach(func() {
		fake = fake_livy.NewFakeLivy()

		endpoint, err := livy.NewEndpoint(fake.URL(), livy.AuthNone, "", "", nil)
		Expect(err).To(BeNil())

		policy, err := client.NewRetryPolicy(1, []time.Duration{time.Millisecond}, client.DefaultRetryableStatusCodes)
		Expect(err).To(BeNil())

		cfg = &testConfig{endpoint: endpoint, queue: "default", queues: []string{"default", "research", "batch"}}
		ctrl = controller.NewController(manager.NewManager(nil), cfg, controller.Settings{
			SessionOptions: session.Options{
				StartupPollInterval:  time.Millisecond,
				StatementPollInitial: time.Millisecond,
			},
			RetryPolicy: policy,
		}, &controller.RecordingReporter{}, controller.WithCurrentUser("notebook"))

		dispatcher = request.NewDispatcher(ctrl, cfg, cfg, request.Kernel{
			InstanceId: "kernel-1",
			Language:   livy.LangPython,
		})
		ctx = context.Background()
	})

	AfterEach(func() {
		fake.Close()
	})

	It("will report the configured queue when there is no session", func() {
		reply := dispatcher.HandleMessage(ctx, map[string]interface{}{request.FieldRequestType: "get_yarn_queue"})
		Expect(reply.Status).To(Equal(request.StatusOk))
		Expect(reply.RequestType).To(Equal("get_yarn_queue"))
		Expect(reply.Data).To(Equal(&request.QueueData{Current: "default", QueueList: []string{"default", "research", "batch"}}))

		encoded, err := json.Marshal(reply)
		Expect(err).To(BeNil())
		Expect(string(encoded)).To(ContainSubstring(`"yarn_queue_list":["default","research","batch"]`))
	})

	It("will recreate the session on another queue", func() {
		name, err := ctrl.CreateSession(ctx, "kernel-1", livy.LangPython, "", "")
		Expect(err).To(BeNil())
		Expect(fake.HasSession(0)).To(BeTrue())

		reply := dispatcher.HandleMessage(ctx, map[string]interface{}{
			request.FieldRequestType: "set_yarn_queue",
			request.FieldYarnQueue:   "research",
		})
		Expect(reply.Status).To(Equal(request.StatusOk))
		Expect(reply.Message).To(BeEmpty())

		Expect(fake.HasSession(0)).To(BeFalse())
		Expect(fake.HasSession(1)).To(BeTrue())

		sess, err := ctrl.Resolve(name)
		Expect(err).To(BeNil())
		Expect(sess.Id()).To(Equal(1))
		Expect(sess.Properties().Queue).To(Equal("research"))

		requests := fake.Requests()
		var body map[string]interface{}
		for _, req := range requests {
			if req.Method == http.MethodPost && req.Path == "/sessions" {
				Expect(json.Unmarshal(req.Body, &body)).To(Succeed())
			}
		}
		Expect(body["queue"]).To(Equal("research"))

		reply = dispatcher.Dispatch(ctx, request.GetQueue{})
		Expect(reply.Status).To(Equal(request.StatusOk))
		Expect(reply.Data.(*request.QueueData).Current).To(Equal("research"))
	})

	It("will replace unregistered sessions of the kernel", func() {
		fake.AddSession(livy.SessionInfo{Id: 5, Name: "session_name-kernel-1", Kind: livy.KindPySpark, State: livy.StatusIdle, ProxyUser: "notebook"})
		fake.AddSession(livy.SessionInfo{Id: 6, Name: "session_name-kernel-2", Kind: livy.KindPySpark, State: livy.StatusIdle, ProxyUser: "notebook"})

		reply := dispatcher.Dispatch(ctx, request.SetQueue{Queue: "batch"})
		Expect(reply.Status).To(Equal(request.StatusOk))

		Expect(fake.HasSession(5)).To(BeFalse())
		Expect(fake.HasSession(6)).To(BeTrue())
		Expect(fake.HasSession(7)).To(BeTrue())
	})

	It("will report failures to recreate the session", func() {
		fake.FailNext(http.MethodPost, "/sessions", http.StatusBadRequest, 1)

		reply := dispatcher.Dispatch(ctx, request.SetQueue{Queue: "batch"})
		Expect(reply.Status).To(Equal(request.StatusError))
		Expect(reply.RequestType).To(Equal("set_yarn_queue"))
		Expect(reply.Message).To(ContainSubstring("400"))
	})

	It("will reply with an error to unknown requests", func() {
		reply := dispatcher.HandleMessage(ctx, map[string]interface{}{request.FieldRequestType: "restart"})
		Expect(reply.Status).To(Equal(request.StatusError))
		Expect(reply.RequestType).To(Equal("restart"))
		Expect(reply.Message).To(ContainSubstring("unknown request type"))
		Expect(fake.Requests()).To(BeEmpty())
	})
})
