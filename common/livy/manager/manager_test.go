package manager_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/scusemua/livy-notebook/common/livy"
	"github.com/scusemua/livy-notebook/common/livy/manager"
	"github.com/scusemua/livy-notebook/common/livy/mock_client"
	"github.com/scusemua/livy-notebook/common/livy/session"
	"github.com/scusemua/livy-notebook/common/metrics"
	"go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Manager", func() {
	var (
		mockCtrl    *gomock.Controller
		mockClient  *mock_client.MockLivyClient
		livyMetrics *metrics.LivyMetrics
		registry    *manager.Manager
		ctx         context.Context
	)

	BeforeEach(func() {
		var err error

		mockCtrl = gomock.NewController(GinkgoT())
		mockClient = mock_client.NewMockLivyClient(mockCtrl)

		livyMetrics, err = metrics.NewLivyMetrics(prometheus.NewRegistry())
		Expect(err).To(BeNil())

		registry = manager.NewManager(livyMetrics)
		ctx = context.Background()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	wrap := func(id int) *session.Session {
		return session.Wrap(mockClient, &livy.SessionInfo{
			Id:    id,
			Name:  fmt.Sprintf("session_name-%d", id),
			Kind:  livy.KindPySpark,
			State: livy.StatusIdle,
		}, session.DefaultOptions(), nil)
	}

	registered := func() float64 {
		return testutil.ToFloat64(livyMetrics.RegisteredSessionsGauge)
	}

	It("will register and look up sessions by case-insensitive name", func() {
		sess := wrap(1)
		Expect(registry.Add("MySession", sess)).To(Succeed())

		Expect(registry.Contains("mysession")).To(BeTrue())
		Expect(registry.Contains(" MYSESSION ")).To(BeTrue())

		found, err := registry.Get("mySession")
		Expect(err).To(BeNil())
		Expect(found).To(BeIdenticalTo(sess))

		Expect(registry.Len()).To(Equal(1))
		Expect(registry.Names()).To(Equal([]string{"mysession"}))
		Expect(registered()).To(Equal(1.0))
	})

	It("will reject duplicate names", func() {
		Expect(registry.Add("a", wrap(1))).To(Succeed())

		err := registry.Add("A", wrap(2))
		Expect(errors.Is(err, livy.ErrDuplicateSession)).To(BeTrue())

		var dupErr *livy.DuplicateSessionError
		Expect(errors.As(err, &dupErr)).To(BeTrue())
		Expect(dupErr.Name).To(Equal("a"))

		found, err := registry.Get("a")
		Expect(err).To(BeNil())
		Expect(found.Id()).To(Equal(1))
	})

	It("will fail to find unregistered names", func() {
		_, err := registry.Get("missing")
		Expect(errors.Is(err, livy.ErrSessionNotFound)).To(BeTrue())

		err = registry.Delete(ctx, "missing")
		Expect(errors.Is(err, livy.ErrSessionNotFound)).To(BeTrue())
	})

	It("will return the earliest-registered session when no name is given", func() {
		_, err := registry.GetAny()
		Expect(errors.Is(err, livy.ErrNoSessions)).To(BeTrue())

		Expect(registry.Add("first", wrap(1))).To(Succeed())
		Expect(registry.Add("second", wrap(2))).To(Succeed())

		sess, err := registry.GetAny()
		Expect(err).To(BeNil())
		Expect(sess.Id()).To(Equal(1))

	})

	It("will look up names by id within one endpoint", func() {
		endpointA, err := livy.NewEndpoint("http://gateway-a:8998", livy.AuthNone, "", "", nil)
		Expect(err).To(BeNil())
		endpointB, err := livy.NewEndpoint("http://gateway-b:8998", livy.AuthNone, "", "", nil)
		Expect(err).To(BeNil())

		mockClient.EXPECT().Endpoint().Return(endpointA).AnyTimes()
		otherClient := mock_client.NewMockLivyClient(mockCtrl)
		otherClient.EXPECT().Endpoint().Return(endpointB).AnyTimes()

		Expect(registry.Add("first", wrap(2))).To(Succeed())
		Expect(registry.Add("second", session.Wrap(otherClient, &livy.SessionInfo{
			Id:    2,
			Name:  "session_name-2",
			Kind:  livy.KindSpark,
			State: livy.StatusIdle,
		}, session.DefaultOptions(), nil))).To(Succeed())

		name, ok := registry.GetNameById(2, endpointA)
		Expect(ok).To(BeTrue())
		Expect(name).To(Equal("first"))

		name, ok = registry.GetNameById(2, endpointB)
		Expect(ok).To(BeTrue())
		Expect(name).To(Equal("second"))

		_, ok = registry.GetNameById(3, endpointA)
		Expect(ok).To(BeFalse())
	})

	It("will summarize the registered sessions", func() {
		Expect(registry.Add("first", wrap(1))).To(Succeed())
		Expect(registry.Add("second", wrap(2))).To(Succeed())

		info := registry.SessionsInfo()
		Expect(info).To(HaveLen(2))
		Expect(info[0]).To(HavePrefix("first\t1\tsession_name-1\t"))
		Expect(info[1]).To(ContainSubstring("\tpyspark\tidle\t"))
	})

	It("will unregister a session without deleting it", func() {
		sess := wrap(1)
		Expect(registry.Add("a", sess)).To(Succeed())

		removed, ok := registry.Remove("A")
		Expect(ok).To(BeTrue())
		Expect(removed).To(BeIdenticalTo(sess))
		Expect(removed.Status()).To(Equal(livy.StatusIdle))
		Expect(registry.Len()).To(Equal(0))
		Expect(registered()).To(Equal(0.0))

		_, ok = registry.Remove("a")
		Expect(ok).To(BeFalse())
	})

	It("will delete and unregister a session", func() {
		Expect(registry.Add("a", wrap(4))).To(Succeed())
		mockClient.EXPECT().DeleteSession(gomock.Any(), 4).Return(nil).Times(1)

		Expect(registry.Delete(ctx, "a")).To(Succeed())
		Expect(registry.Contains("a")).To(BeFalse())
	})

	It("will unregister a session even if the gateway could not delete it", func() {
		sess := wrap(4)
		Expect(registry.Add("a", sess)).To(Succeed())
		mockClient.EXPECT().DeleteSession(gomock.Any(), 4).
			Return(&livy.HttpError{Method: http.MethodDelete, Path: "/sessions/4", Status: http.StatusInternalServerError, Attempts: 9}).
			Times(1)

		Expect(registry.Delete(ctx, "a")).To(Succeed())
		Expect(registry.Contains("a")).To(BeFalse())
		Expect(sess.Status()).To(Equal(livy.StatusDead))
	})

	It("will clean up every session and report every failure", func() {
		for i := 1; i <= 4; i++ {
			Expect(registry.Add(fmt.Sprintf("s%d", i), wrap(i))).To(Succeed())
		}
		Expect(registered()).To(Equal(4.0))

		mockClient.EXPECT().DeleteSession(gomock.Any(), 1).Return(nil)
		mockClient.EXPECT().DeleteSession(gomock.Any(), 2).Return(&livy.NetworkError{Method: http.MethodDelete, Path: "/sessions/2", Attempts: 9, Cause: errors.New("connection refused")})
		mockClient.EXPECT().DeleteSession(gomock.Any(), 3).Return(&livy.HttpError{Method: http.MethodDelete, Path: "/sessions/3", Status: http.StatusNotFound, Attempts: 1})
		mockClient.EXPECT().DeleteSession(gomock.Any(), 4).Return(&livy.HttpError{Method: http.MethodDelete, Path: "/sessions/4", Status: http.StatusForbidden, Attempts: 1})

		err := registry.CleanUpAll(ctx)
		Expect(err).ToNot(BeNil())

		var merr *multierror.Error
		Expect(errors.As(err, &merr)).To(BeTrue())
		Expect(merr.Errors).To(HaveLen(2))
		Expect(errors.Is(err, livy.ErrNetwork)).To(BeTrue())

		Expect(registry.Len()).To(Equal(0))
		Expect(registered()).To(Equal(0.0))
	})

	It("will clean up an empty registry", func() {
		Expect(registry.CleanUpAll(ctx)).To(Succeed())
	})
})
