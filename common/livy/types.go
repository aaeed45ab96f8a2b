package livy

import (
	"maps"
	"strings"

	"github.com/goccy/go-json"
)

const (
	// SparkYarnQueueConf is the Spark configuration key that selects the YARN queue of a session.
	SparkYarnQueueConf = "spark.yarn.queue"

	MimeTextPlain       = "text/plain"
	MimeApplicationJson = "application/json"
)

// SessionProperties is the body of a session-creation request.
//
// SessionProperties is built once when a session is created and is never mutated after it has been
// submitted to the gateway; the Session keeps its own Clone.
type SessionProperties struct {
	Kind      Kind              `json:"kind"`
	Name      string            `json:"name,omitempty"`
	ProxyUser string            `json:"proxyUser,omitempty"`
	Conf      map[string]string `json:"conf,omitempty"`
	Queue     string            `json:"queue,omitempty"`

	// HeartbeatTimeoutInSecond asks the gateway to reclaim the session if it is not refreshed within
	// the given number of seconds. Zero disables the server-side timeout.
	HeartbeatTimeoutInSecond int `json:"heartbeatTimeoutInSecond,omitempty"`

	// Language is the front-end language; it is local bookkeeping and is never sent to the gateway.
	Language Language `json:"-"`

	// Extra holds any additional gateway parameters (driverMemory, numExecutors, ...).
	// Keys in Extra never override the typed fields above.
	Extra map[string]interface{} `json:"-"`
}

// Clone returns a deep copy of the properties.
func (p *SessionProperties) Clone() *SessionProperties {
	if p == nil {
		return nil
	}

	clone := *p
	if p.Conf != nil {
		clone.Conf = make(map[string]string, len(p.Conf))
		maps.Copy(clone.Conf, p.Conf)
	}
	if p.Extra != nil {
		clone.Extra = make(map[string]interface{}, len(p.Extra))
		maps.Copy(clone.Extra, p.Extra)
	}

	return &clone
}

// SetQueue selects the YARN queue the session should be placed in.
func (p *SessionProperties) SetQueue(queue string) {
	if queue == "" {
		return
	}

	if p.Conf == nil {
		p.Conf = make(map[string]string)
	}

	p.Queue = queue
	p.Conf[SparkYarnQueueConf] = queue
}

// MarshalJSON flattens Extra into the same JSON object as the typed fields.
func (p *SessionProperties) MarshalJSON() ([]byte, error) {
	type plain SessionProperties
	typed, err := json.Marshal((*plain)(p))
	if err != nil {
		return nil, err
	}

	if len(p.Extra) == 0 {
		return typed, nil
	}

	merged := make(map[string]interface{}, len(p.Extra)+8)
	maps.Copy(merged, p.Extra)

	var fields map[string]interface{}
	if err = json.Unmarshal(typed, &fields); err != nil {
		return nil, err
	}
	maps.Copy(merged, fields)

	return json.Marshal(merged)
}

// SessionInfo is the gateway's view of one session.
type SessionInfo struct {
	Id        int                `json:"id"`
	Name      string             `json:"name"`
	AppId     string             `json:"appId"`
	Owner     string             `json:"owner"`
	ProxyUser string             `json:"proxyUser"`
	State     SessionStatus      `json:"state"`
	Kind      Kind               `json:"kind"`
	AppInfo   map[string]*string `json:"appInfo"`
	Log       []string           `json:"log"`
}

// AppInfoValue returns the named entry of AppInfo, or the empty string.
func (i *SessionInfo) AppInfoValue(key string) string {
	if i.AppInfo == nil {
		return ""
	}

	if v := i.AppInfo[key]; v != nil {
		return *v
	}

	return ""
}

// SessionList is the response to GET /sessions.
type SessionList struct {
	From     int            `json:"from"`
	Total    int            `json:"total"`
	Sessions []*SessionInfo `json:"sessions"`
}

// StatementRequest is the body of POST /sessions/{id}/statements.
type StatementRequest struct {
	Code string `json:"code"`
	Kind Kind   `json:"kind,omitempty"`
}

// Statement is the gateway's view of one statement.
type Statement struct {
	Id       int              `json:"id"`
	Code     string           `json:"code"`
	State    StatementState   `json:"state"`
	Output   *StatementOutput `json:"output"`
	Progress float64          `json:"progress"`
}

// StatementOutput is the output of a statement in the "available" state.
type StatementOutput struct {
	Status         string                 `json:"status"`
	ExecutionCount int                    `json:"execution_count"`
	Data           map[string]interface{} `json:"data,omitempty"`
	Ename          string                 `json:"ename,omitempty"`
	Evalue         string                 `json:"evalue,omitempty"`
	Traceback      []string               `json:"traceback,omitempty"`
}

// IsError returns true if the code ran but raised an error.
func (o *StatementOutput) IsError() bool {
	return o.Status == "error"
}

// Diagnostic returns the error name, value, and traceback of an output, as reported by the gateway.
func (o *StatementOutput) Diagnostic() string {
	if o == nil {
		return ""
	}

	diagnostic := o.Evalue
	if o.Ename != "" {
		diagnostic = o.Ename + ": " + o.Evalue
	}

	if len(o.Traceback) > 0 {
		diagnostic += "\n" + strings.Join(o.Traceback, "")
	}

	return strings.TrimSpace(diagnostic)
}

// CompletionRequest is the body of POST /sessions/{id}/completion.
type CompletionRequest struct {
	Code   string `json:"code"`
	Kind   Kind   `json:"kind"`
	Cursor int    `json:"cursor"`
}

type CompletionResponse struct {
	Candidates []string `json:"candidates"`
}
