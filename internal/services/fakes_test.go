package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ridechat/internal/config"
	"ridechat/internal/models"
	"ridechat/internal/repositories/interfaces"
	"ridechat/pkg/alert"
	"ridechat/pkg/queue"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testChatConfig() *config.ChatConfig {
	return &config.ChatConfig{MaxContentLength: 500, HistoryLimit: 50}
}

type fakeRoomRepo struct {
	mu           sync.Mutex
	rooms        map[string]*models.ChatRoom
	incrementErr error
	findErr      error
	// beforeWrite runs ahead of membership writes, e.g. to close the room
	// between the service's read and its write.
	beforeWrite func(room *models.ChatRoom)
}

func newFakeRoomRepo(rooms ...*models.ChatRoom) *fakeRoomRepo {
	r := &fakeRoomRepo{rooms: make(map[string]*models.ChatRoom)}
	for _, room := range rooms {
		r.rooms[room.RideID] = room
	}
	return r
}

func (r *fakeRoomRepo) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.RideID]; ok {
		return interfaces.ErrDuplicate
	}
	room.ID = primitive.NewObjectID()
	room.CreatedAt = time.Now()
	stored := *room
	r.rooms[room.RideID] = &stored
	return nil
}

func (r *fakeRoomRepo) FindRoomByRide(ctx context.Context, rideID string) (*models.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	room, ok := r.rooms[rideID]
	if !ok {
		return nil, fmt.Errorf("chat room for ride %s: %w", rideID, interfaces.ErrNotFound)
	}
	copied := *room
	copied.PassengerIDs = append([]string(nil), room.PassengerIDs...)
	return &copied, nil
}

func (r *fakeRoomRepo) UpdateRoom(ctx context.Context, rideID string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[rideID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if closed, ok := updates["is_closed"].(bool); ok {
		room.IsClosed = closed
	}
	if at, ok := updates["closed_at"].(time.Time); ok {
		room.ClosedAt = &at
	}
	return nil
}

func (r *fakeRoomRepo) AddPassenger(ctx context.Context, rideID, passengerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[rideID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if r.beforeWrite != nil {
		r.beforeWrite(room)
	}
	if room.IsClosed {
		return interfaces.ErrClosed
	}
	if !room.HasPassenger(passengerID) {
		room.PassengerIDs = append(room.PassengerIDs, passengerID)
	}
	return nil
}

func (r *fakeRoomRepo) RemovePassenger(ctx context.Context, rideID, passengerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[rideID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if r.beforeWrite != nil {
		r.beforeWrite(room)
	}
	if room.IsClosed {
		return interfaces.ErrClosed
	}
	kept := room.PassengerIDs[:0]
	for _, id := range room.PassengerIDs {
		if id != passengerID {
			kept = append(kept, id)
		}
	}
	room.PassengerIDs = kept
	return nil
}

func (r *fakeRoomRepo) IncrementMessageCount(ctx context.Context, rideID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.incrementErr != nil {
		return r.incrementErr
	}
	if room, ok := r.rooms[rideID]; ok {
		room.MessageCount++
	}
	return nil
}

func (r *fakeRoomRepo) room(rideID string) *models.ChatRoom {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *r.rooms[rideID]
	return &copied
}

type fakeMessageRepo struct {
	mu        sync.Mutex
	messages  map[string]*models.Message
	order     []string
	createErr error
	listErr   error
	updateErr error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[string]*models.Message)}
}

func (r *fakeMessageRepo) CreateMessage(ctx context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	message.ID = primitive.NewObjectID()
	message.CreatedAt = time.Now()
	stored := *message
	r.messages[message.ID.Hex()] = &stored
	r.order = append(r.order, message.ID.Hex())
	return nil
}

func (r *fakeMessageRepo) FindMessage(ctx context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	message, ok := r.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, interfaces.ErrNotFound)
	}
	copied := *message
	return &copied, nil
}

func (r *fakeMessageRepo) UpdateMessage(ctx context.Context, id string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	message, ok := r.messages[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	applyMessageUpdates(message, updates)
	return nil
}

func (r *fakeMessageRepo) UpdateMessageIfStatus(ctx context.Context, id string, statuses []models.MessageStatus, updates map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return false, r.updateErr
	}
	message, ok := r.messages[id]
	if !ok {
		return false, nil
	}
	for _, status := range statuses {
		if message.Status == status {
			applyMessageUpdates(message, updates)
			return true, nil
		}
	}
	return false, nil
}

func applyMessageUpdates(message *models.Message, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			message.Status = v.(models.MessageStatus)
		case "is_flagged":
			message.IsFlagged = v.(bool)
		case "flag_reason":
			message.FlagReason = v.(string)
		case "moderation_details":
			message.ModerationDetails = v.(*models.ModerationDetails)
		}
	}
	message.UpdatedAt = time.Now()
}

func (r *fakeMessageRepo) CountMessages(ctx context.Context, rideID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.messages {
		if m.RideID == rideID {
			n++
		}
	}
	return n, nil
}

func (r *fakeMessageRepo) ListMessages(ctx context.Context, rideID string, limit, skip int) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]*models.Message, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		m := r.messages[r.order[i]]
		if m.RideID != rideID {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		copied := *m
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) stored(id string) *models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *r.messages[id]
	return &copied
}

func (r *fakeMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type deliveredEvent struct {
	Event   string
	Payload interface{}
}

type broadcastCall struct {
	Group   string
	Event   string
	Payload interface{}
	Except  string
}

// fakeTransport delivers into per-connection inboxes.
type fakeTransport struct {
	mu         sync.Mutex
	connected  map[string]bool
	groups     map[string]map[string]bool
	inbox      map[string][]deliveredEvent
	broadcasts []broadcastCall
}

func newFakeTransport(connIDs ...string) *fakeTransport {
	t := &fakeTransport{
		connected: make(map[string]bool),
		groups:    make(map[string]map[string]bool),
		inbox:     make(map[string][]deliveredEvent),
	}
	for _, id := range connIDs {
		t.connected[id] = true
	}
	return t
}

func (t *fakeTransport) Join(connID, group string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.groups[group] == nil {
		t.groups[group] = make(map[string]bool)
	}
	t.groups[group][connID] = true
}

func (t *fakeTransport) Leave(connID, group string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.groups[group], connID)
}

func (t *fakeTransport) SendTo(connID, event string, payload interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox[connID] = append(t.inbox[connID], deliveredEvent{Event: event, Payload: payload})
}

func (t *fakeTransport) Broadcast(group, event string, payload interface{}, exceptConnID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.broadcasts = append(t.broadcasts, broadcastCall{Group: group, Event: event, Payload: payload, Except: exceptConnID})
	for connID := range t.groups[group] {
		if connID != exceptConnID {
			t.inbox[connID] = append(t.inbox[connID], deliveredEvent{Event: event, Payload: payload})
		}
	}
}

func (t *fakeTransport) IsConnected(connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected[connID]
}

func (t *fakeTransport) disconnect(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.connected, connID)
	for _, members := range t.groups {
		delete(members, connID)
	}
}

func (t *fakeTransport) events(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.inbox[connID]))
	for _, e := range t.inbox[connID] {
		names = append(names, e.Event)
	}
	return names
}

func (t *fakeTransport) lastPayload(connID, event string) interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	inbox := t.inbox[connID]
	for i := len(inbox) - 1; i >= 0; i-- {
		if inbox[i].Event == event {
			return inbox[i].Payload
		}
	}
	return nil
}

func (t *fakeTransport) broadcastCount(event string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, b := range t.broadcasts {
		if b.Event == event {
			n++
		}
	}
	return n
}

func (t *fakeTransport) members(group string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0)
	for id := range t.groups[group] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type fakeSubmitter struct {
	mu   sync.Mutex
	jobs []*models.ModerationJob
}

func (s *fakeSubmitter) Submit(job *models.ModerationJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

func (s *fakeSubmitter) submitted() []*models.ModerationJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.ModerationJob(nil), s.jobs...)
}

type fakeClassifier struct {
	mu     sync.Mutex
	inputs []string
	result func(text string) *models.ModerationResult
}

func (c *fakeClassifier) Classify(ctx context.Context, text string) *models.ModerationResult {
	c.mu.Lock()
	c.inputs = append(c.inputs, text)
	c.mu.Unlock()
	return c.result(text)
}

func flaggedResult(category string) *models.ModerationResult {
	return &models.ModerationResult{
		IsFlagged:      true,
		Categories:     map[string]bool{category: true},
		CategoryScores: map[string]float64{category: 0.97},
		Model:          "omni-moderation-latest",
	}
}

func safeResult() *models.ModerationResult {
	return &models.ModerationResult{
		Categories:     map[string]bool{"harassment": false},
		CategoryScores: map[string]float64{"harassment": 0.01},
	}
}

type fakeQueue struct {
	mu       sync.Mutex
	failures int
	calls    int
	added    []interface{}
	opts     []queue.JobOptions
}

func (q *fakeQueue) Add(ctx context.Context, data interface{}, opts *queue.JobOptions) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.failures > 0 {
		q.failures--
		return nil, errors.New("redis unavailable")
	}
	q.added = append(q.added, data)
	q.opts = append(q.opts, *opts)
	return &queue.Job{ID: fmt.Sprintf("job-%d", q.calls)}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []*alert.Alert
}

func (n *fakeNotifier) Notify(ctx context.Context, a *alert.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *fakeNotifier) sent() []*alert.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*alert.Alert(nil), n.alerts...)
}
