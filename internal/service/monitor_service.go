package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codelab-api/internal/dto"
	"github.com/noah-isme/codelab-api/internal/models"
	"github.com/noah-isme/codelab-api/internal/observability"
)

const (
	monitorSendBufferSize = 32
	monitorSnapshotTTL    = 30 * time.Minute
	monitorKeepalive      = 30 * time.Second
)

// MonitorConnectionOptions wraps identity extracted during the websocket upgrade.
// Addressing is by (lab_id, user_id); both come from the auth layer.
type MonitorConnectionOptions struct {
	LabID   string
	UserID  uint
	Role    string
	Context context.Context
}

// MonitorService holds the live per-lab connection sets and activity maps and
// fans aggregated state out to observers. The state is intentionally
// non-persistent: it is a dashboard, not an audit trail.
type MonitorService interface {
	ServeConnection(conn *websocket.Conn, opts MonitorConnectionOptions)
	Snapshot(labID string) []dto.StudentActivityView
	Start(ctx context.Context)
}

type monitorService struct {
	proctoring  ProctoringService
	redis       *redis.Client
	redisStream string
	redisCache  string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	hub         *monitorHub
	nodeID      string
}

// monitorHub partitions connections by lab. The hub mutex guards only the lab
// map; each room carries its own lock, so labs never contend with each other.
type monitorHub struct {
	mu    sync.RWMutex
	rooms map[string]*labRoom
	log   zerolog.Logger
}

type labRoom struct {
	mu         sync.Mutex
	clients    map[*monitorClient]struct{}
	activities map[uint]*studentActivity
}

// studentActivity is the ephemeral per-connection view behind the dashboard.
// It survives reconnects within the process lifetime and is lost on restart.
type studentActivity struct {
	StudentID       uint
	ProblemID       uint
	Language        string
	Code            string
	AttemptCount    int
	TabSwitches     int
	FullscreenExits int
	LastSeen        time.Time
	Connected       bool
}

type monitorClient struct {
	conn    *websocket.Conn
	send    chan dto.MonitorOutbound
	options MonitorConnectionOptions
	service *monitorService
	closed  chan struct{}
	once    sync.Once
	baseCtx context.Context
}

type monitorEvent struct {
	Source     string                    `json:"source"`
	LabID      string                    `json:"lab_id"`
	Activities []dto.StudentActivityView `json:"activities"`
	SentAt     time.Time                 `json:"sent_at"`
}

// NewMonitorService creates the live monitoring service instance. It is
// constructed once at process start and injected into connection handlers.
func NewMonitorService(proctoring ProctoringService, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) MonitorService {
	hub := &monitorHub{
		rooms: make(map[string]*labRoom),
		log:   logger.With().Str("component", "monitor_hub").Logger(),
	}

	streamChannel := ""
	cachePrefix := ""
	natsSubject := ""
	if channelBase != "" {
		streamChannel = channelBase + ":monitor"
		cachePrefix = channelBase + ":monitor:snapshot"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".monitor"
	}

	return &monitorService{
		proctoring:  proctoring,
		redis:       redisClient,
		redisStream: streamChannel,
		redisCache:  cachePrefix,
		nats:        natsConn,
		natsSubject: natsSubject,
		logger:      logger.With().Str("component", "monitor_service").Logger(),
		hub:         hub,
		nodeID:      uuid.NewString(),
	}
}

func (s *monitorService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *monitorService) ServeConnection(conn *websocket.Conn, opts MonitorConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	client := &monitorClient{
		conn:    conn,
		send:    make(chan dto.MonitorOutbound, monitorSendBufferSize),
		options: opts,
		service: s,
		closed:  make(chan struct{}),
		baseCtx: baseCtx,
	}

	s.hub.register(client)
	observability.MonitorConnections().Inc()

	if isStudentRole(opts.Role) {
		s.resumeStudent(baseCtx, client)
	} else if cached := s.fetchSnapshot(baseCtx, opts.LabID); len(cached) > 0 {
		// Prime new observers with the last known lab state.
		client.trySend(dto.NewActivitiesReply(cached))
	}

	go client.writer()
	client.reader()

	observability.MonitorConnections().Dec()
}

// resumeStudent creates or reuses the in-memory activity view and opens or
// resumes the persisted proctoring session.
func (s *monitorService) resumeStudent(ctx context.Context, client *monitorClient) {
	room := s.hub.room(client.options.LabID)

	room.mu.Lock()
	activity, ok := room.activities[client.options.UserID]
	if !ok {
		activity = &studentActivity{StudentID: client.options.UserID}
		room.activities[client.options.UserID] = activity
	}
	activity.AttemptCount++
	activity.Connected = true
	activity.LastSeen = time.Now().UTC()
	room.mu.Unlock()

	if _, err := s.proctoring.TouchSession(ctx, client.options.LabID, client.options.UserID); err != nil {
		s.logger.Warn().Err(err).
			Str("lab_id", client.options.LabID).
			Uint("student_id", client.options.UserID).
			Msg("failed to open proctoring session")
	}
}

// Snapshot returns the current activity view of a lab, students sorted by id.
func (s *monitorService) Snapshot(labID string) []dto.StudentActivityView {
	room := s.hub.room(labID)

	room.mu.Lock()
	views := make([]dto.StudentActivityView, 0, len(room.activities))
	for _, activity := range room.activities {
		views = append(views, dto.StudentActivityView{
			StudentID:       activity.StudentID,
			ProblemID:       activity.ProblemID,
			Language:        activity.Language,
			Code:            activity.Code,
			AttemptCount:    activity.AttemptCount,
			TabSwitches:     activity.TabSwitches,
			FullscreenExits: activity.FullscreenExits,
			LastSeen:        activity.LastSeen,
			Connected:       activity.Connected,
		})
	}
	room.mu.Unlock()

	sort.Slice(views, func(i, j int) bool { return views[i].StudentID < views[j].StudentID })
	return views
}

// handleMessage dispatches one parsed client frame. The switch is exhaustive
// over the closed message set; ParseMonitorMessage rejects anything else.
func (s *monitorService) handleMessage(ctx context.Context, client *monitorClient, message dto.MonitorMessage) {
	// Observers are read-only: they may ping and request snapshots, nothing else.
	if !isStudentRole(client.options.Role) {
		switch message.(type) {
		case dto.PingMessage, dto.GetActivitiesMessage:
		default:
			client.trySend(dto.NewMonitorError("observers cannot send activity events"))
			return
		}
	}

	switch m := message.(type) {
	case dto.PingMessage:
		observability.MonitorMessages().WithLabelValues(dto.MonitorTypePing).Inc()
		client.trySend(dto.NewPong())

	case dto.ActivityUpdateMessage:
		observability.MonitorMessages().WithLabelValues(dto.MonitorTypeActivityUpdate).Inc()
		s.applyActivityUpdate(client, m)
		if _, err := s.proctoring.TouchSession(ctx, client.options.LabID, client.options.UserID); err != nil {
			s.logger.Warn().Err(err).Str("lab_id", client.options.LabID).Msg("session touch failed")
		}
		s.broadcastSnapshot(ctx, client.options.LabID)

	case dto.CodeChangeMessage:
		observability.MonitorMessages().WithLabelValues(dto.MonitorTypeCodeChange).Inc()
		s.applyCodeChange(client, m)
		s.broadcastSnapshot(ctx, client.options.LabID)

	case dto.GetActivitiesMessage:
		observability.MonitorMessages().WithLabelValues(dto.MonitorTypeGetActivities).Inc()
		client.trySend(dto.NewActivitiesReply(s.Snapshot(client.options.LabID)))

	case dto.ViolationMessage:
		observability.MonitorMessages().WithLabelValues(dto.MonitorTypeViolation).Inc()
		s.handleViolation(ctx, client, m)

	case dto.EndSessionMessage:
		observability.MonitorMessages().WithLabelValues(dto.MonitorTypeEndSession).Inc()
		if err := s.proctoring.EndSession(ctx, client.options.LabID, client.options.UserID); err != nil {
			s.logger.Warn().Err(err).Str("lab_id", client.options.LabID).Msg("end session failed")
			client.trySend(dto.NewMonitorError("could not end session"))
		}

	default:
		// Unreachable while ParseMonitorMessage covers the full set.
		s.logger.Error().Str("type", fmt.Sprintf("%T", message)).Msg("unhandled monitor message")
	}
}

func (s *monitorService) applyActivityUpdate(client *monitorClient, m dto.ActivityUpdateMessage) {
	room := s.hub.room(client.options.LabID)

	room.mu.Lock()
	defer room.mu.Unlock()

	activity, ok := room.activities[client.options.UserID]
	if !ok {
		activity = &studentActivity{StudentID: client.options.UserID, AttemptCount: 1}
		room.activities[client.options.UserID] = activity
	}

	if m.Code != nil {
		activity.Code = *m.Code
	}
	if m.Language != nil {
		activity.Language = *m.Language
	}
	if m.ProblemID != nil {
		activity.ProblemID = *m.ProblemID
	}
	if m.TabSwitches != nil {
		activity.TabSwitches = *m.TabSwitches
	}
	if m.FullscreenExits != nil {
		activity.FullscreenExits = *m.FullscreenExits
	}
	activity.Connected = true
	activity.LastSeen = time.Now().UTC()
}

func (s *monitorService) applyCodeChange(client *monitorClient, m dto.CodeChangeMessage) {
	s.applyActivityUpdate(client, dto.ActivityUpdateMessage{Code: m.Code, Language: m.Language})
}

func (s *monitorService) handleViolation(ctx context.Context, client *monitorClient, m dto.ViolationMessage) {
	event := dto.ViolationEventRequest{
		Type:         m.ViolationType,
		Severity:     m.Severity,
		Details:      m.Details,
		SubmissionID: m.SubmissionID,
	}

	if _, err := s.proctoring.RecordViolation(ctx, client.options.LabID, client.options.UserID, event); err != nil {
		s.logger.Warn().Err(err).
			Str("lab_id", client.options.LabID).
			Uint("student_id", client.options.UserID).
			Str("type", m.ViolationType).
			Msg("violation rejected")
		client.trySend(dto.NewMonitorError("violation rejected: " + err.Error()))
		return
	}

	// Mirror counters into the live view so observers see them immediately.
	room := s.hub.room(client.options.LabID)
	room.mu.Lock()
	if activity, ok := room.activities[client.options.UserID]; ok {
		switch m.ViolationType {
		case models.ViolationTabSwitch:
			activity.TabSwitches++
		case models.ViolationFullscreenExit:
			activity.FullscreenExits++
		}
		activity.LastSeen = time.Now().UTC()
	}
	room.mu.Unlock()

	s.broadcastSnapshot(ctx, client.options.LabID)
}

// broadcastSnapshot fans the lab's aggregated state out to every local
// subscriber, caches it, and mirrors it to peer nodes.
func (s *monitorService) broadcastSnapshot(ctx context.Context, labID string) {
	snapshot := s.Snapshot(labID)
	s.hub.broadcast(labID, dto.NewActivityBroadcast(snapshot))
	observability.MonitorBroadcasts().Inc()

	s.cacheSnapshot(ctx, labID, snapshot)
	if err := s.publish(labID, snapshot); err != nil {
		s.logger.Warn().Err(err).Str("lab_id", labID).Msg("failed to publish monitor event")
	}
}

func (s *monitorService) cacheSnapshot(ctx context.Context, labID string, snapshot []dto.StudentActivityView) {
	if s.redis == nil || s.redisCache == "" {
		return
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal monitor snapshot")
		return
	}

	key := fmt.Sprintf("%s:%s", s.redisCache, labID)
	if err := s.redis.Set(ctx, key, payload, monitorSnapshotTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache monitor snapshot")
	}
}

func (s *monitorService) fetchSnapshot(ctx context.Context, labID string) []dto.StudentActivityView {
	if s.redis == nil || s.redisCache == "" {
		return nil
	}

	key := fmt.Sprintf("%s:%s", s.redisCache, labID)
	result, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return nil
	}

	var snapshot []dto.StudentActivityView
	if err := json.Unmarshal([]byte(result), &snapshot); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unmarshal cached monitor snapshot")
		return nil
	}
	return snapshot
}

func (s *monitorService) publish(labID string, snapshot []dto.StudentActivityView) error {
	event := monitorEvent{
		Source:     s.nodeID,
		LabID:      labID,
		Activities: snapshot,
		SentAt:     time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(context.Background(), s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *monitorService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("monitor redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *monitorService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "codelab-monitor", func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats monitor subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain monitor nats subscription")
		}
	}()
}

// handleEvent rebroadcasts a peer node's snapshot to local subscribers.
func (s *monitorService) handleEvent(data []byte) {
	var event monitorEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid monitor event")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.hub.broadcast(event.LabID, dto.NewActivityBroadcast(event.Activities))
}

func (h *monitorHub) room(labID string) *labRoom {
	h.mu.RLock()
	room, ok := h.rooms[labID]
	h.mu.RUnlock()
	if ok {
		return room
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok = h.rooms[labID]; ok {
		return room
	}
	room = &labRoom{
		clients:    make(map[*monitorClient]struct{}),
		activities: make(map[uint]*studentActivity),
	}
	h.rooms[labID] = room
	return room
}

func (h *monitorHub) register(client *monitorClient) {
	room := h.room(client.options.LabID)

	room.mu.Lock()
	room.clients[client] = struct{}{}
	room.mu.Unlock()

	h.log.Debug().
		Str("lab_id", client.options.LabID).
		Uint("user_id", client.options.UserID).
		Str("role", client.options.Role).
		Msg("monitor client connected")
}

// unregister removes the connection and, for students, marks the activity view
// disconnected. The activity entry and the persisted session both survive.
func (h *monitorHub) unregister(client *monitorClient) {
	room := h.room(client.options.LabID)

	room.mu.Lock()
	delete(room.clients, client)
	if isStudentRole(client.options.Role) {
		if activity, ok := room.activities[client.options.UserID]; ok {
			activity.Connected = false
			activity.LastSeen = time.Now().UTC()
		}
	}
	room.mu.Unlock()

	h.log.Debug().
		Str("lab_id", client.options.LabID).
		Uint("user_id", client.options.UserID).
		Msg("monitor client disconnected")
}

// broadcast delivers a frame to every subscriber of one lab. It iterates a
// snapshot of the connection set; clients whose buffers are full are collected
// during the pass and dropped afterwards, so one dead connection never blocks
// the rest of the lab.
func (h *monitorHub) broadcast(labID string, frame dto.MonitorOutbound) {
	room := h.room(labID)

	room.mu.Lock()
	targets := make([]*monitorClient, 0, len(room.clients))
	for client := range room.clients {
		targets = append(targets, client)
	}
	room.mu.Unlock()

	var stale []*monitorClient
	for _, client := range targets {
		if !client.trySend(frame) {
			stale = append(stale, client)
		}
	}

	for _, client := range stale {
		h.log.Warn().
			Str("lab_id", labID).
			Uint("user_id", client.options.UserID).
			Msg("dropping unresponsive monitor client")
		client.close()
	}
}

// trySend queues a frame without blocking. A false return marks the client as
// unresponsive.
func (c *monitorClient) trySend(frame dto.MonitorOutbound) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *monitorClient) reader() {
	defer c.close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.service.logger.Debug().Err(err).Msg("monitor read loop ended")
			return
		}

		message, err := dto.ParseMonitorMessage(data)
		if err != nil {
			// One malformed frame must not take down the connection.
			c.service.logger.Warn().Err(err).Uint("user_id", c.options.UserID).Msg("rejected monitor frame")
			c.trySend(dto.NewMonitorError(err.Error()))
			continue
		}

		c.service.handleMessage(c.baseCtx, c, message)
	}
}

func (c *monitorClient) writer() {
	defer c.close()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				c.service.logger.Debug().Err(err).Msg("monitor write loop terminated")
				return
			}
		case <-time.After(monitorKeepalive):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("monitor ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *monitorClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.unregister(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func isStudentRole(role string) bool {
	return strings.ToLower(strings.TrimSpace(role)) == "student"
}
