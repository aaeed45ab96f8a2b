package request

import (
	"context"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/pkg/errors"
	"github.com/scusemua/livy-notebook/common/livy"
	"github.com/scusemua/livy-notebook/common/livy/controller"
	"github.com/scusemua/livy-notebook/common/utils"
)

const (
	StatusOk    = "ok"
	StatusError = "error"
)

// Reply is the response to a request message.
type Reply struct {
	Status      string      `json:"status"`
	RequestType string      `json:"request_type"`
	Message     string      `json:"message"`
	Data        interface{} `json:"data"`
}

// QueueData is the Data of the reply to a GetQueue request.
type QueueData struct {
	Current   string   `json:"current"`
	QueueList []string `json:"yarn_queue_list"`
}

// QueueSource supplies the configured queues.
type QueueSource interface {
	DefaultQueue() string
	QueueList() []string
}

// Kernel identifies the front-end instance whose session the requests apply to.
type Kernel struct {
	InstanceId string
	Language   livy.Language
	ProxyUser  string
}

// Dispatcher handles the administrative requests of one kernel.
type Dispatcher struct {
	log logger.Logger

	controller *controller.Controller
	sessions   controller.SessionConfigSource
	queues     QueueSource
	kernel     Kernel
}

func NewDispatcher(ctrl *controller.Controller, sessions controller.SessionConfigSource, queues QueueSource, kernel Kernel) *Dispatcher {
	dispatcher := &Dispatcher{
		controller: ctrl,
		sessions:   sessions,
		queues:     queues,
		kernel:     kernel,
	}

	config.InitLogger(&dispatcher.log, dispatcher)

	return dispatcher
}

// HandleMessage parses and dispatches the content of a request message.
func (d *Dispatcher) HandleMessage(ctx context.Context, content map[string]interface{}) *Reply {
	req, err := Parse(content)
	if err != nil {
		requestType, _ := content[FieldRequestType].(string)
		d.log.Error(utils.RedStyle.Render("Rejected request: %v"), err)
		return &Reply{Status: StatusError, RequestType: requestType, Message: err.Error(), Data: map[string]interface{}{}}
	}

	return d.Dispatch(ctx, req)
}

// Dispatch handles a request.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) *Reply {
	reply := &Reply{Status: StatusOk, RequestType: string(req.Type()), Data: map[string]interface{}{}}

	var err error
	switch r := req.(type) {
	case GetQueue:
		reply.Data, err = d.getQueue()
	case SetQueue:
		err = d.setQueue(ctx, r.Queue)
	default:
		err = errors.Wrapf(ErrUnknownRequest, "%T", req)
	}

	if err != nil {
		d.log.Error(utils.RedStyle.Render("Failed to handle \"%s\" request: %v"), req.Type(), err)
		reply.Status = StatusError
		reply.Message = err.Error()
	}

	return reply
}

func (d *Dispatcher) sessionName() string {
	return d.controller.GenerateSessionName(d.kernel.InstanceId)
}

func (d *Dispatcher) getQueue() (*QueueData, error) {
	data := &QueueData{Current: d.queues.DefaultQueue(), QueueList: d.queues.QueueList()}
	if data.QueueList == nil {
		data.QueueList = []string{}
	}

	if sess, err := d.controller.Registry().Get(d.sessionName()); err == nil {
		if queue := sess.Properties().Queue; queue != "" {
			data.Current = queue
		}
	}

	return data, nil
}

// setQueue deletes every session of the kernel and creates a new one on the queue.
func (d *Dispatcher) setQueue(ctx context.Context, queue string) error {
	name := d.sessionName()

	endpoint, err := d.sessions.EndpointFor(d.kernel.Language)
	if err != nil {
		return err
	}

	if d.controller.Registry().Contains(name) {
		if err = d.controller.DeleteByName(ctx, name); err != nil {
			d.log.Warn("Failed to delete session \"%s\": %v", name, err)
		}
	}

	remote, err := d.controller.ListRemoteSessions(ctx, endpoint, d.kernel.ProxyUser)
	if err != nil {
		d.log.Warn("Could not list the sessions at %s: %v", endpoint.URL(), err)
	}

	for _, sess := range remote {
		if sess.Name() != name {
			continue
		}

		if err = d.controller.DeleteById(ctx, endpoint, sess.Id()); err != nil {
			d.log.Warn("Failed to delete session %d: %v", sess.Id(), err)
		}
	}

	_, err = d.controller.CreateSession(ctx, d.kernel.InstanceId, d.kernel.Language, d.kernel.ProxyUser, queue)
	return err
}
