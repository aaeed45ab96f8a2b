package fake_livy

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/scusemua/livy-notebook/common/livy"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// RecordedRequest is a request received by the FakeLivy server.
type RecordedRequest struct {
	Method  string
	Path    string
	Body    []byte
	Headers http.Header
}

// StatementHandler produces the output of a statement from its code.
type StatementHandler func(sessionId int, code string) *livy.StatementOutput

type fakeStatement struct {
	statement *livy.Statement
	polls     int
	final     livy.StatementState
}

type fakeSession struct {
	info       *livy.SessionInfo
	script     []livy.SessionStatus
	polls      int
	statements []*fakeStatement
	// running is the number of statements that have been submitted but not yet reported as final.
	running int
}

// failure is a status code injected into the next matching requests.
type failure struct {
	method    string
	path      string
	status    int
	remaining int
}

// FakeLivy is an in-memory gateway served by a gin engine on an httptest.Server.
//
// Sessions walk through StartupStates, one step per GET of the session. Statements report "running" for
// StatementPolls GETs and then report the state and output produced by the StatementHandler.
type FakeLivy struct {
	Server *httptest.Server

	// NextSessionId is the id assigned to the next created session.
	NextSessionId int

	// StartupStates is the sequence of states reported by successive GETs of a new session.
	// The last state is sticky.
	StartupStates []livy.SessionStatus

	// StatementPolls is the number of GETs for which a statement reports "running".
	StatementPolls int

	// StatementHandler computes statement outputs. By default, it echoes the code as text/plain.
	StatementHandler StatementHandler

	// FinalStatementState is the state a statement finishes in; "available" by default.
	FinalStatementState livy.StatementState

	// Candidates is returned by the completion endpoint.
	Candidates []string

	// Owner is reported as the owner and default proxy user of created sessions.
	Owner string

	// Log is returned as the log tail of every session.
	Log []string

	sessions map[int]*fakeSession
	order    []int
	requests []*RecordedRequest
	failures []*failure
	overlaps int

	mu sync.Mutex

	log logger.Logger
}

func NewFakeLivy() *FakeLivy {
	fake := &FakeLivy{
		StartupStates:       []livy.SessionStatus{livy.StatusStarting, livy.StatusIdle},
		FinalStatementState: livy.StatementAvailable,
		Owner:               "notebook",
		sessions:            make(map[int]*fakeSession),
	}
	fake.StatementHandler = func(_ int, code string) *livy.StatementOutput {
		return TextOutput(code)
	}

	config.InitLogger(&fake.log, fake)

	engine := gin.New()
	engine.Use(fake.recordAndInject)
	engine.POST("/sessions", fake.handleCreateSession)
	engine.GET("/sessions", fake.handleListSessions)
	engine.GET("/sessions/:id", fake.handleGetSession)
	engine.DELETE("/sessions/:id", fake.handleDeleteSession)
	engine.POST("/sessions/:id/statements", fake.handlePostStatement)
	engine.GET("/sessions/:id/statements/:sid", fake.handleGetStatement)
	engine.POST("/sessions/:id/completion", fake.handleCompletion)

	fake.Server = httptest.NewServer(engine)

	return fake
}

// TextOutput returns a successful text/plain statement output.
func TextOutput(text string) *livy.StatementOutput {
	return &livy.StatementOutput{
		Status: "ok",
		Data:   map[string]interface{}{livy.MimeTextPlain: text},
	}
}

// ErrorOutput returns a statement output describing an exception raised by the code.
func ErrorOutput(ename string, evalue string, traceback ...string) *livy.StatementOutput {
	return &livy.StatementOutput{
		Status:    "error",
		Ename:     ename,
		Evalue:    evalue,
		Traceback: traceback,
	}
}

func (f *FakeLivy) URL() string {
	return f.Server.URL
}

func (f *FakeLivy) Close() {
	f.Server.Close()
}

// FailNext makes the next n requests matching method and path fail with the given status.
// An empty method or path matches anything.
func (f *FakeLivy) FailNext(method string, path string, status int, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures = append(f.failures, &failure{method: method, path: path, status: status, remaining: n})
}

// AddSession registers a session as though it had been created by another process.
func (f *FakeLivy) AddSession(info livy.SessionInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()

	infoCopy := info
	f.sessions[info.Id] = &fakeSession{info: &infoCopy}
	f.order = append(f.order, info.Id)
	if info.Id >= f.NextSessionId {
		f.NextSessionId = info.Id + 1
	}
}

// RemoveSession makes a session disappear, as though the gateway had reclaimed it.
func (f *FakeLivy) RemoveSession(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removeSessionUnsafe(id)
}

// SetSessionState overrides the state of a session, discarding the rest of its startup script.
func (f *FakeLivy) SetSessionState(id int, state livy.SessionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sess, ok := f.sessions[id]; ok {
		sess.script = nil
		sess.info.State = state
	}
}

func (f *FakeLivy) HasSession(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.sessions[id]
	return ok
}

// Requests returns every request received so far, in arrival order.
func (f *FakeLivy) Requests() []*RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	requests := make([]*RecordedRequest, len(f.requests))
	copy(requests, f.requests)
	return requests
}

// Count returns the number of requests received with the given method and exact path.
func (f *FakeLivy) Count(method string, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, req := range f.requests {
		if req.Method == method && req.Path == path {
			n++
		}
	}

	return n
}

// SubmittedCode returns the code of every statement submitted to the given session, in submission order.
func (f *FakeLivy) SubmittedCode(sessionId int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	sess, ok := f.sessions[sessionId]
	if !ok {
		return nil
	}

	code := make([]string, 0, len(sess.statements))
	for _, stmt := range sess.statements {
		code = append(code, stmt.statement.Code)
	}

	return code
}

// Overlaps returns the number of statements that were submitted while another statement of the same
// session had not yet been reported as final.
func (f *FakeLivy) Overlaps() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.overlaps
}

func (f *FakeLivy) removeSessionUnsafe(id int) {
	delete(f.sessions, id)
	for i, existing := range f.order {
		if existing == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

func (f *FakeLivy) recordAndInject(c *gin.Context) {
	body, _ := c.GetRawData()
	c.Request.Body = http.NoBody

	f.mu.Lock()
	f.requests = append(f.requests, &RecordedRequest{
		Method:  c.Request.Method,
		Path:    c.Request.URL.Path,
		Body:    body,
		Headers: c.Request.Header.Clone(),
	})

	for _, fail := range f.failures {
		if fail.remaining <= 0 {
			continue
		}
		if fail.method != "" && fail.method != c.Request.Method {
			continue
		}
		if fail.path != "" && fail.path != c.Request.URL.Path {
			continue
		}

		fail.remaining--
		f.mu.Unlock()
		f.log.Debug("Injecting status %d for %s %s", fail.status, c.Request.Method, c.Request.URL.Path)
		c.AbortWithStatusJSON(fail.status, gin.H{"msg": fmt.Sprintf("injected failure %d", fail.status)})
		return
	}
	f.mu.Unlock()

	c.Set("body", body)
	c.Next()
}

func (f *FakeLivy) lookupSessionUnsafe(c *gin.Context) (*fakeSession, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid session id"})
		return nil, false
	}

	sess, ok := f.sessions[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"msg": fmt.Sprintf("Session '%d' not found.", id)})
		return nil, false
	}

	return sess, true
}

func (f *FakeLivy) handleCreateSession(c *gin.Context) {
	var props map[string]interface{}
	if err := json.Unmarshal(c.MustGet("body").([]byte), &props); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.NextSessionId
	f.NextSessionId++

	info := &livy.SessionInfo{
		Id:        id,
		Owner:     f.Owner,
		ProxyUser: f.Owner,
		State:     livy.StatusNotStarted,
		AppInfo:   map[string]*string{"driverLogUrl": nil, "sparkUiUrl": nil},
		Log:       f.Log,
	}
	if kind, ok := props["kind"].(string); ok {
		info.Kind = livy.Kind(kind)
	}
	if name, ok := props["name"].(string); ok {
		info.Name = name
	}
	if proxyUser, ok := props["proxyUser"].(string); ok {
		info.ProxyUser = proxyUser
	}

	script := make([]livy.SessionStatus, len(f.StartupStates))
	copy(script, f.StartupStates)

	f.sessions[id] = &fakeSession{info: info, script: script}
	f.order = append(f.order, id)

	c.JSON(http.StatusCreated, info)
}

func (f *FakeLivy) handleListSessions(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	list := &livy.SessionList{Sessions: make([]*livy.SessionInfo, 0, len(f.order))}
	for _, id := range f.order {
		list.Sessions = append(list.Sessions, f.sessions[id].info)
	}
	list.Total = len(list.Sessions)

	c.JSON(http.StatusOK, list)
}

func (f *FakeLivy) handleGetSession(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sess, ok := f.lookupSessionUnsafe(c)
	if !ok {
		return
	}

	if sess.polls < len(sess.script) {
		sess.info.State = sess.script[sess.polls]
		sess.polls++
	}

	if sess.info.State.IsHealthy() {
		appId := fmt.Sprintf("application_1_%04d", sess.info.Id)
		driverLogUrl := fmt.Sprintf("http://yarn/logs/%s", appId)
		sparkUiUrl := fmt.Sprintf("http://yarn/proxy/%s", appId)
		sess.info.AppId = appId
		sess.info.AppInfo = map[string]*string{"driverLogUrl": &driverLogUrl, "sparkUiUrl": &sparkUiUrl}
	}

	c.JSON(http.StatusOK, sess.info)
}

func (f *FakeLivy) handleDeleteSession(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sess, ok := f.lookupSessionUnsafe(c)
	if !ok {
		return
	}

	f.removeSessionUnsafe(sess.info.Id)
	c.JSON(http.StatusOK, gin.H{"msg": "deleted"})
}

func (f *FakeLivy) handlePostStatement(c *gin.Context) {
	var req livy.StatementRequest
	if err := json.Unmarshal(c.MustGet("body").([]byte), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	sess, ok := f.lookupSessionUnsafe(c)
	if !ok {
		return
	}

	if sess.running > 0 {
		f.overlaps++
	}
	sess.running++

	stmt := &fakeStatement{
		statement: &livy.Statement{
			Id:    len(sess.statements),
			Code:  req.Code,
			State: livy.StatementWaiting,
		},
		final: f.FinalStatementState,
	}
	sess.statements = append(sess.statements, stmt)

	c.JSON(http.StatusCreated, stmt.statement)
}

func (f *FakeLivy) handleGetStatement(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sess, ok := f.lookupSessionUnsafe(c)
	if !ok {
		return
	}

	sid, err := strconv.Atoi(c.Param("sid"))
	if err != nil || sid < 0 || sid >= len(sess.statements) {
		c.JSON(http.StatusNotFound, gin.H{"msg": "statement not found"})
		return
	}

	stmt := sess.statements[sid]
	if stmt.statement.State.IsFinal() {
		c.JSON(http.StatusOK, stmt.statement)
		return
	}

	if stmt.polls < f.StatementPolls {
		stmt.polls++
		stmt.statement.State = livy.StatementRunning
		c.JSON(http.StatusOK, stmt.statement)
		return
	}

	stmt.statement.State = stmt.final
	stmt.statement.Progress = 1
	if stmt.final == livy.StatementAvailable {
		stmt.statement.Output = f.StatementHandler(sess.info.Id, stmt.statement.Code)
		if stmt.statement.Output != nil {
			stmt.statement.Output.ExecutionCount = sid
		}
	}
	sess.running--

	c.JSON(http.StatusOK, stmt.statement)
}

func (f *FakeLivy) handleCompletion(c *gin.Context) {
	var req livy.CompletionRequest
	if err := json.Unmarshal(c.MustGet("body").([]byte), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.lookupSessionUnsafe(c); !ok {
		return
	}

	candidates := make([]string, 0, len(f.Candidates))
	prefix := req.Code
	if req.Cursor >= 0 && req.Cursor <= len(prefix) {
		prefix = prefix[:req.Cursor]
	}
	if idx := strings.LastIndexAny(prefix, " .("); idx >= 0 {
		prefix = prefix[idx+1:]
	}

	for _, candidate := range f.Candidates {
		if strings.HasPrefix(candidate, prefix) {
			candidates = append(candidates, candidate)
		}
	}

	c.JSON(http.StatusOK, livy.CompletionResponse{Candidates: candidates})
}
