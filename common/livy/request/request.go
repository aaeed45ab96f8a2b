package request

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownRequest = errors.New("unknown request type")
	ErrInvalidRequest = errors.New("invalid request")
)

// Type is the "request_type" of an administrative request.
type Type string

const (
	TypeGetQueue Type = "get_yarn_queue"
	TypeSetQueue Type = "set_yarn_queue"

	FieldRequestType = "request_type"
	FieldYarnQueue   = "yarn_queue"
)

// Request is one of GetQueue or SetQueue.
type Request interface {
	Type() Type

	request()
}

// GetQueue asks for the queue of the kernel's session and the queues it may use.
type GetQueue struct{}

func (GetQueue) Type() Type {
	return TypeGetQueue
}

func (GetQueue) request() {}

// SetQueue moves the kernel's session to another queue by recreating it.
type SetQueue struct {
	Queue string
}

func (SetQueue) Type() Type {
	return TypeSetQueue
}

func (SetQueue) request() {}

// Parse converts the content of a request message into a Request.
func Parse(content map[string]interface{}) (Request, error) {
	requestType, _ := content[FieldRequestType].(string)

	switch Type(requestType) {
	case TypeGetQueue:
		return GetQueue{}, nil
	case TypeSetQueue:
		queue, _ := content[FieldYarnQueue].(string)
		if queue == "" {
			return nil, fmt.Errorf("%w: \"%s\" requires a non-empty \"%s\"", ErrInvalidRequest, TypeSetQueue, FieldYarnQueue)
		}

		return SetQueue{Queue: queue}, nil
	default:
		return nil, fmt.Errorf("%w: \"%s\"", ErrUnknownRequest, requestType)
	}
}
