// Package apitest runs an in-memory autobot API for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"autobot-console/internal/model"
)

const sessionCookie = "autobot_session"

type injected struct {
	status int
	body   string
}

type account struct {
	user     model.AccountUser
	password string
}

// Server is an httptest server with the autobot routes.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	nextID   uint
	tasks    map[uint]*model.Task
	logs     map[uint][]model.TaskLog
	servers  []model.BarkServer
	devices  []model.BarkDevice
	records  []model.BarkRecord
	logStats model.LogStats
	bark     model.BarkStats

	nextUser uint
	accounts map[string]account
	sessions map[string]model.AccountUser

	requireSession bool
	unauthorized   bool
	failLogs       map[uint]bool
	inject         map[string]injected
	hits           map[string]int
	headers        map[string]http.Header
}

// New starts the server. Close it with t.Cleanup(srv.Close).
func New() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		tasks:    make(map[uint]*model.Task),
		logs:     make(map[uint][]model.TaskLog),
		accounts: make(map[string]account),
		sessions: make(map[string]model.AccountUser),
		failLogs: make(map[uint]bool),
		inject:   make(map[string]injected),
		hits:     make(map[string]int),
		headers:  make(map[string]http.Header),
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(s.record, s.injectFailures)

	r.POST("/login", s.login)

	api := r.Group("/api", s.auth)
	api.GET("/me", s.me)
	api.POST("/logout", s.logout)

	api.GET("/tasks", s.listTasks)
	api.POST("/tasks", s.createTask)
	api.GET("/tasks/:id", s.getTask)
	api.PUT("/tasks/:id", s.updateTask)
	api.DELETE("/tasks/:id", s.deleteTask)
	api.POST("/tasks/:id/run", s.runTask)
	api.GET("/tasks/:id/logs", s.listLogs)
	api.DELETE("/tasks/:id/logs", s.deleteTaskLogs)
	api.GET("/tasks/:id/result", s.taskResult)
	api.PUT("/tasks/:id/bark-config", s.updateBarkConfig)
	api.GET("/tasks/:id/bark-keys", s.taskBarkKeys)
	api.POST("/validate-script", s.validateScript)
	api.DELETE("/logs/all", s.deleteAllLogs)
	api.GET("/logs/stats", s.getLogStats)

	api.GET("/bark/servers", s.listServers)
	api.POST("/bark/servers", s.createServer)
	api.GET("/bark/servers/:id", s.getServer)
	api.PUT("/bark/servers/:id", s.updateServer)
	api.DELETE("/bark/servers/:id", s.deleteServer)
	api.GET("/bark/devices", s.listDevices)
	api.GET("/bark/devices/selection", s.deviceSelection)
	api.POST("/bark/devices", s.createDevice)
	api.GET("/bark/devices/:id", s.getDevice)
	api.PUT("/bark/devices/:id", s.updateDevice)
	api.DELETE("/bark/devices/:id", s.deleteDevice)
	api.GET("/bark/stats", s.getBarkStats)
	api.GET("/bark/records", s.listBarkRecords)
	api.DELETE("/bark/records/all", s.deleteBarkRecords)
	return r
}

// Seeding and inspection.

func (s *Server) AddTask(t model.Task) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	if t.Status == "" {
		t.Status = model.StatusActive
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.tasks[t.ID] = &t
	return t
}

func (s *Server) Task(id uint) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return *t, true
}

func (s *Server) AddLog(l model.TaskLog) model.TaskLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	l.ID = s.nextID
	if t, ok := s.tasks[l.TaskID]; ok {
		l.Task = *t
	}
	s.logs[l.TaskID] = append(s.logs[l.TaskID], l)
	return l
}

func (s *Server) AddServer(b model.BarkServer) model.BarkServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b.ID = s.nextID
	if b.Status == "" {
		b.Status = model.StatusActive
	}
	s.servers = append(s.servers, b)
	return b
}

func (s *Server) AddDevice(d model.BarkDevice) model.BarkDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	d.ID = s.nextID
	if d.Status == "" {
		d.Status = model.StatusActive
	}
	s.devices = append(s.devices, d)
	return d
}

// AddRecord stores a bark record; the newest record is listed first.
func (s *Server) AddRecord(r model.BarkRecord) model.BarkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.records = append(s.records, r)
	return r
}

func (s *Server) Servers() []model.BarkServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.BarkServer(nil), s.servers...)
}

func (s *Server) Devices() []model.BarkDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.BarkDevice(nil), s.devices...)
}

func (s *Server) AddAccount(username, password string) model.AccountUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUser++
	u := model.AccountUser{ID: s.nextUser, Username: username, CreatedAt: time.Now()}
	s.accounts[username] = account{user: u, password: password}
	return u
}

// RequireSession makes every /api/ route demand a valid session cookie.
func (s *Server) RequireSession(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requireSession = on
}

// ForceUnauthorized answers every /api/ route with 401.
func (s *Server) ForceUnauthorized(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unauthorized = on
}

func (s *Server) SetLogStats(st model.LogStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logStats = st
}

func (s *Server) SetBarkStats(st model.BarkStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bark = st
}

// FailLogs makes the log list of one task answer 500.
func (s *Server) FailLogs(taskID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLogs[taskID] = true
}

// Inject answers method+path with status and body until cleared with a zero status.
// A body starting with "{" is sent as JSON, anything else as text.
func (s *Server) Inject(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	if status == 0 {
		delete(s.inject, key)
		return
	}
	s.inject[key] = injected{status: status, body: body}
}

// Hits counts requests to method+path, query excluded.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// Header returns the headers of the last request to method+path.
func (s *Server) Header(method, path string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[method+" "+path]
}

// Middleware.

func (s *Server) record(c *gin.Context) {
	key := c.Request.Method + " " + c.Request.URL.Path
	s.mu.Lock()
	s.hits[key]++
	s.headers[key] = c.Request.Header.Clone()
	s.mu.Unlock()
	c.Next()
}

func (s *Server) injectFailures(c *gin.Context) {
	s.mu.Lock()
	inj, ok := s.inject[c.Request.Method+" "+c.Request.URL.Path]
	s.mu.Unlock()
	if !ok {
		c.Next()
		return
	}
	contentType := "text/plain; charset=utf-8"
	if strings.HasPrefix(inj.body, "{") {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(inj.status, contentType, []byte(inj.body))
	c.Abort()
}

func (s *Server) auth(c *gin.Context) {
	s.mu.Lock()
	unauthorized := s.unauthorized
	if !unauthorized && s.requireSession {
		_, ok := s.sessionUserLocked(c)
		unauthorized = !ok
	}
	s.mu.Unlock()
	if unauthorized {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "未登录"})
		return
	}
	c.Next()
}

func (s *Server) sessionUserLocked(c *gin.Context) (model.AccountUser, bool) {
	cookie, err := c.Cookie(sessionCookie)
	if err != nil {
		return model.AccountUser{}, false
	}
	u, ok := s.sessions[cookie]
	return u, ok
}

// Auth.

func (s *Server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[req.Username]
	if !ok || acc.password != req.Password {
		s.mu.Unlock()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "用户名或密码错误"})
		return
	}
	session := uuid.NewString()
	s.sessions[session] = acc.user
	s.mu.Unlock()

	c.SetCookie(sessionCookie, session, 3600*24*7, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "登录成功", "user": acc.user})
}

func (s *Server) me(c *gin.Context) {
	s.mu.Lock()
	u, ok := s.sessionUserLocked(c)
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未登录"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (s *Server) logout(c *gin.Context) {
	if cookie, err := c.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, cookie)
		s.mu.Unlock()
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "登出成功"})
}

// Tasks.

func (s *Server) listTasks(c *gin.Context) {
	page, limit := pageParams(c, 10)
	status := c.Query("status")

	s.mu.Lock()
	var all []model.Task
	for _, t := range s.tasks {
		if status == "" || t.Status == status {
			all = append(all, *t)
		}
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	c.JSON(http.StatusOK, gin.H{
		"tasks": paginate(all, page, limit),
		"total": len(all),
		"page":  page,
		"limit": limit,
	})
}

func (s *Server) getTask(c *gin.Context) {
	id, ok := idParam(c, "无效的任务ID")
	if !ok {
		return
	}
	s.mu.Lock()
	t, found := s.tasks[id]
	s.mu.Unlock()
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) createTask(c *gin.Context) {
	var in model.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.Name == "" || in.Script == "" || in.CronExpr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少必填字段"})
		return
	}
	t := s.AddTask(model.Task{
		Name:                in.Name,
		Description:         in.Description,
		Script:              in.Script,
		CronExpr:            in.CronExpr,
		Status:              in.Status,
		BarkConfig:          in.BarkConfig,
		TimeExclusionConfig: in.TimeExclusionConfig,
	})
	c.JSON(http.StatusCreated, t)
}

func (s *Server) updateTask(c *gin.Context) {
	id, ok := idParam(c, "无效的任务ID")
	if !ok {
		return
	}
	var in model.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, found := s.tasks[id]
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}
	setIf(&t.Name, in.Name)
	setIf(&t.Description, in.Description)
	setIf(&t.Script, in.Script)
	setIf(&t.CronExpr, in.CronExpr)
	setIf(&t.Status, in.Status)
	setIf(&t.BarkConfig, in.BarkConfig)
	setIf(&t.TimeExclusionConfig, in.TimeExclusionConfig)
	t.UpdatedAt = time.Now()
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTask(c *gin.Context) {
	id, ok := idParam(c, "无效的任务ID")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, found := s.tasks[id]
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}
	deleted := len(s.logs[id])
	delete(s.tasks, id)
	delete(s.logs, id)
	c.JSON(http.StatusOK, gin.H{
		"message":      "任务删除成功",
		"task_name":    t.Name,
		"deleted_logs": deleted,
	})
}

func (s *Server) runTask(c *gin.Context) {
	id, ok := idParam(c, "无效的任务ID")
	if !ok {
		return
	}
	s.mu.Lock()
	t, found := s.tasks[id]
	if found {
		now := time.Now()
		t.LastRun = &now
	}
	s.mu.Unlock()
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "任务已开始执行"})
}

func (s *Server) listLogs(c *gin.Context) {
	id, ok := idParam(c, "无效的任务ID")
	if !ok {
		return
	}
	page, limit := pageParams(c, 10)
	status := c.Query("status")

	s.mu.Lock()
	if s.failLogs[id] {
		s.mu.Unlock()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取日志失败"})
		return
	}
	var logs []model.TaskLog
	for _, l := range s.logs[id] {
		if status == "" || l.Status == status {
			logs = append(logs, l)
		}
	}
	s.mu.Unlock()

	sort.Slice(logs, func(i, j int) bool { return logs[i].StartTime.After(logs[j].StartTime) })
	c.JSON(http.StatusOK, gin.H{
		"logs":  paginate(logs, page, limit),
		"total": len(logs),
		"page":  page,
		"limit": limit,
	})
}

func (s *Server) deleteTaskLogs(c *gin.Context) {
	id, ok := idParam(c, "无效的任务ID")
	if !ok {
		return
	}
	s.mu.Lock()
	deleted := len(s.logs[id])
	delete(s.logs, id)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "任务日志已删除", "task_id": id, "deleted_count": deleted})
}

func (s *Server) taskResult(c *gin.Context) {
	id, ok := idParam(c, "无效的任务ID")
	if !ok {
		return
	}
	s.mu.Lock()
	var latest *model.TaskLog
	for i := range s.logs[id] {
		l := &s.logs[id][i]
		if l.Status != "success" || l.Result == "" {
			continue
		}
		if latest == nil || l.StartTime.After(latest.StartTime) {
			latest = l
		}
	}
	var res model.TaskLog
	if latest != nil {
		res = *latest
	}
	s.mu.Unlock()

	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "未找到成功执行的结果"})
		return
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(res.Result), &result); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "解析结果失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task_id":    res.TaskID,
		"log_id":     res.ID,
		"result":     result,
		"created_at": res.StartTime,
	})
}

func (s *Server) updateBarkConfig(c *gin.Context) {
	id, ok := idParam(c, "无效的任务ID")
	if !ok {
		return
	}
	var req struct {
		BarkConfig string `json:"bark_config" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(req.BarkConfig), &fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 Bark 配置格式"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, found := s.tasks[id]
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}
	t.BarkConfig = req.BarkConfig
	t.UpdatedAt = time.Now()
	c.JSON(http.StatusOK, gin.H{"message": "Bark 配置更新成功"})
}

// taskBarkKeys reports the result keys of the task's latest run, whatever its status.
func (s *Server) taskBarkKeys(c *gin.Context) {
	id, ok := idParam(c, "无效的任务ID")
	if !ok {
		return
	}
	s.mu.Lock()
	if _, found := s.tasks[id]; !found {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}
	var latest *model.TaskLog
	for i := range s.logs[id] {
		l := &s.logs[id][i]
		if latest == nil || l.StartTime.After(latest.StartTime) {
			latest = l
		}
	}
	result := ""
	if latest != nil {
		result = latest.Result
	}
	s.mu.Unlock()

	keys := []string{}
	var parsed map[string]any
	if result != "" && json.Unmarshal([]byte(result), &parsed) == nil {
		for k := range parsed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	c.JSON(http.StatusOK, gin.H{
		"keys":                 keys,
		"has_execution_result": latest != nil,
		"task_id":              id,
	})
}

func (s *Server) validateScript(c *gin.Context) {
	var req struct {
		Script string `json:"script" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !strings.Contains(req.Script, "def main") {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": "脚本必须定义 main 函数"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "message": "脚本语法正确"})
}

func (s *Server) deleteAllLogs(c *gin.Context) {
	s.mu.Lock()
	deleted := 0
	for id, logs := range s.logs {
		deleted += len(logs)
		delete(s.logs, id)
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "所有日志已删除", "deleted_count": deleted})
}

func (s *Server) getLogStats(c *gin.Context) {
	s.mu.Lock()
	st := s.logStats
	s.mu.Unlock()
	c.JSON(http.StatusOK, st)
}

// Bark.

func (s *Server) listServers(c *gin.Context) {
	page, limit := pageParams(c, 10)
	s.mu.Lock()
	all := append([]model.BarkServer(nil), s.servers...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"servers": paginate(all, page, limit), "total": len(all), "page": page, "limit": limit})
}

func (s *Server) getServer(c *gin.Context) {
	id, ok := idParam(c, "无效的服务器ID")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.servers {
		if b.ID == id {
			c.JSON(http.StatusOK, b)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "服务器不存在"})
}

func (s *Server) createServer(c *gin.Context) {
	var in model.BarkServerInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b := s.AddServer(model.BarkServer{Name: in.Name, URL: in.URL, Description: in.Description, IsDefault: in.IsDefault, Status: in.Status})
	c.JSON(http.StatusCreated, b)
}

func (s *Server) updateServer(c *gin.Context) {
	id, ok := idParam(c, "无效的服务器ID")
	if !ok {
		return
	}
	var in model.BarkServerInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.servers {
		if s.servers[i].ID != id {
			continue
		}
		b := &s.servers[i]
		b.Name, b.URL, b.Description, b.IsDefault = in.Name, in.URL, in.Description, in.IsDefault
		setIf(&b.Status, in.Status)
		c.JSON(http.StatusOK, b)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "服务器不存在"})
}

func (s *Server) deleteServer(c *gin.Context) {
	id, ok := idParam(c, "无效的服务器ID")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.servers {
		if b.ID == id {
			s.servers = append(s.servers[:i], s.servers[i+1:]...)
			c.JSON(http.StatusOK, gin.H{"message": "服务器删除成功"})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "服务器不存在"})
}

func (s *Server) listDevices(c *gin.Context) {
	page, limit := pageParams(c, 10)
	s.mu.Lock()
	all := append([]model.BarkDevice(nil), s.devices...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"devices": paginate(all, page, limit), "total": len(all), "page": page, "limit": limit})
}

func (s *Server) getDevice(c *gin.Context) {
	id, ok := idParam(c, "无效的设备ID")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.ID == id {
			c.JSON(http.StatusOK, d)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "设备不存在"})
}

func (s *Server) createDevice(c *gin.Context) {
	var in model.BarkDeviceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d := s.AddDevice(model.BarkDevice{Name: in.Name, DeviceKey: in.DeviceKey, Description: in.Description, ServerID: in.ServerID, IsDefault: in.IsDefault, Status: in.Status})
	c.JSON(http.StatusCreated, d)
}

func (s *Server) updateDevice(c *gin.Context) {
	id, ok := idParam(c, "无效的设备ID")
	if !ok {
		return
	}
	var in model.BarkDeviceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.devices {
		if s.devices[i].ID != id {
			continue
		}
		d := &s.devices[i]
		d.Name, d.DeviceKey, d.Description, d.ServerID, d.IsDefault = in.Name, in.DeviceKey, in.Description, in.ServerID, in.IsDefault
		setIf(&d.Status, in.Status)
		c.JSON(http.StatusOK, d)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "设备不存在"})
}

func (s *Server) deleteDevice(c *gin.Context) {
	id, ok := idParam(c, "无效的设备ID")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.devices {
		if d.ID == id {
			s.devices = append(s.devices[:i], s.devices[i+1:]...)
			c.JSON(http.StatusOK, gin.H{"message": "设备删除成功"})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "设备不存在"})
}

func (s *Server) deviceSelection(c *gin.Context) {
	s.mu.Lock()
	var active []model.BarkDevice
	for _, d := range s.devices {
		if d.Status == model.StatusActive {
			active = append(active, d)
		}
	}
	s.mu.Unlock()
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].IsDefault != active[j].IsDefault {
			return active[i].IsDefault
		}
		return active[i].Name < active[j].Name
	})
	c.JSON(http.StatusOK, gin.H{"devices": active})
}

func (s *Server) listBarkRecords(c *gin.Context) {
	var taskID uint64
	if raw := c.Query("task_id"); raw != "" {
		var err error
		if taskID, err = strconv.ParseUint(raw, 10, 32); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的任务ID"})
			return
		}
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || size < 1 || size > 100 {
		size = 20
	}

	s.mu.Lock()
	var matched []model.BarkRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if taskID == 0 || s.records[i].TaskID == uint(taskID) {
			matched = append(matched, s.records[i])
		}
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"records":   paginate(matched, page, size),
		"total":     len(matched),
		"page":      page,
		"page_size": size,
	})
}

func (s *Server) getBarkStats(c *gin.Context) {
	s.mu.Lock()
	st := s.bark
	s.mu.Unlock()
	c.JSON(http.StatusOK, st)
}

func (s *Server) deleteBarkRecords(c *gin.Context) {
	s.mu.Lock()
	deleted := s.bark.TotalRecords
	if n := int64(len(s.records)); n > deleted {
		deleted = n
	}
	s.bark = model.BarkStats{MaxRecords: s.bark.MaxRecords}
	s.records = nil
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"message": "所有Bark记录已删除", "deleted_count": deleted})
}

// Helpers.

func idParam(c *gin.Context, invalid string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid})
		return 0, false
	}
	return uint(id), true
}

func pageParams(c *gin.Context, defaultLimit int) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", fmt.Sprint(defaultLimit)))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	return page, limit
}

func paginate[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
