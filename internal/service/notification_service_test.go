package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeRealtime struct {
	mu       sync.Mutex
	users    map[string][][]byte
	roles    map[string][][]byte
	requests map[string][][]byte
	all      [][]byte
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{
		users:    make(map[string][][]byte),
		roles:    make(map[string][][]byte),
		requests: make(map[string][][]byte),
	}
}

func (f *fakeRealtime) SendToUser(userID string, message []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = append(f.users[userID], message)
}

func (f *fakeRealtime) SendToRole(role string, message []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[role] = append(f.roles[role], message)
}

func (f *fakeRealtime) SendToRequest(requestID string, message []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[requestID] = append(f.requests[requestID], message)
}

func (f *fakeRealtime) BroadcastAll(message []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.all = append(f.all, message)
}

// timeoutError satisfies net.Error and models a transient transport fault.
type timeoutError struct{}

func (timeoutError) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type fakeExternal struct {
	mu    sync.Mutex
	calls []string // open ids in call order
	errs  []error  // error script, consumed per call; nil past the end
}

func (f *fakeExternal) SendText(ctx context.Context, openID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if len(f.calls) < len(f.errs) {
		err = f.errs[len(f.calls)]
	}
	f.calls = append(f.calls, openID)
	return err
}

func (f *fakeExternal) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestNotifier(db *gorm.DB, realtime RealtimeSender, external ExternalSender) *notificationService {
	return &notificationService{
		users:       repository.NewUserRepository(db),
		realtime:    realtime,
		external:    external,
		log:         logrus.WithField("component", "notifier"),
		backoffBase: time.Millisecond,
	}
}

func TestNotifyRoutesAudiences(t *testing.T) {
	db := openTestDB(t)
	rt := newFakeRealtime()
	n := newTestNotifier(db, rt, nil)

	n.Notify(Event{Type: EventGeneral, Message: "hi", Audience: ToUser("u1"), Data: GeneralData{}})
	n.Notify(Event{Type: EventGeneral, Message: "hi", Audience: ToRole(model.RoleManager), Data: GeneralData{}})
	n.Notify(Event{Type: EventGeneral, Message: "hi", Audience: ToRequest("r1"), Data: GeneralData{}})
	n.Notify(Event{Type: EventBroadcast, Message: "hi", Audience: ToAll(), Data: GeneralData{}})

	assert.Len(t, rt.users["u1"], 1)
	assert.Len(t, rt.roles[model.RoleManager], 1)
	assert.Len(t, rt.requests["r1"], 1)
	assert.Len(t, rt.all, 1)
}

func TestNotifyEnvelopeShape(t *testing.T) {
	db := openTestDB(t)
	rt := newFakeRealtime()
	n := newTestNotifier(db, rt, nil)

	n.Notify(Event{
		Type:     EventStatusChange,
		Message:  "Request status changed to APPROVED",
		Audience: ToUser("u1"),
		Data:     StatusChangeData{RequestID: "req-1", From: "ELIGIBLE", Status: "APPROVED"},
	})

	require.Len(t, rt.users["u1"], 1)
	var wire struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Data    struct {
			RequestID string `json:"request_id"`
			From      string `json:"from"`
			Status    string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rt.users["u1"][0], &wire))
	assert.Equal(t, "status_change", wire.Type)
	assert.Equal(t, "req-1", wire.Data.RequestID)
	assert.Equal(t, "APPROVED", wire.Data.Status)
}

func TestExternalRetriesNetworkErrors(t *testing.T) {
	db := openTestDB(t)
	user := seedUser(t, db, "alice", model.RoleRequester, nil)
	require.NoError(t, db.Model(&model.User{}).
		Where("id = ?", user.ID).
		Update("lark_open_id", "ou_alice").Error)

	ext := &fakeExternal{errs: []error{timeoutError{}, timeoutError{}, nil}}
	n := newTestNotifier(db, newFakeRealtime(), ext)

	n.Notify(Event{Type: EventGeneral, Message: "hello", Audience: ToUser(user.ID.String()), Data: GeneralData{}})
	n.Flush()

	assert.Equal(t, 3, ext.callCount())
}

func TestExternalGivesUpAfterMaxAttempts(t *testing.T) {
	db := openTestDB(t)
	user := seedUser(t, db, "bob", model.RoleRequester, nil)
	require.NoError(t, db.Model(&model.User{}).
		Where("id = ?", user.ID).
		Update("lark_open_id", "ou_bob").Error)

	ext := &fakeExternal{errs: []error{timeoutError{}, timeoutError{}, timeoutError{}, timeoutError{}}}
	n := newTestNotifier(db, newFakeRealtime(), ext)

	n.Notify(Event{Type: EventGeneral, Message: "hello", Audience: ToUser(user.ID.String()), Data: GeneralData{}})
	n.Flush()

	assert.Equal(t, externalMaxAttempts, ext.callCount())
}

func TestExternalAbortsOnNonNetworkError(t *testing.T) {
	db := openTestDB(t)
	user := seedUser(t, db, "carol", model.RoleRequester, nil)
	require.NoError(t, db.Model(&model.User{}).
		Where("id = ?", user.ID).
		Update("lark_open_id", "ou_carol").Error)

	ext := &fakeExternal{errs: []error{errors.New("lark api error 230002: invalid receive_id")}}
	n := newTestNotifier(db, newFakeRealtime(), ext)

	n.Notify(Event{Type: EventGeneral, Message: "hello", Audience: ToUser(user.ID.String()), Data: GeneralData{}})
	n.Flush()

	assert.Equal(t, 1, ext.callCount())
}

func TestExternalSkipsUnlinkedUsers(t *testing.T) {
	db := openTestDB(t)
	linked := seedUser(t, db, "linked", model.RoleManager, nil)
	seedUser(t, db, "unlinked", model.RoleManager, nil)
	require.NoError(t, db.Model(&model.User{}).
		Where("id = ?", linked.ID).
		Update("lark_open_id", "ou_linked").Error)

	ext := &fakeExternal{}
	n := newTestNotifier(db, newFakeRealtime(), ext)

	n.Notify(Event{Type: EventGeneral, Message: "team notice", Audience: ToRole(model.RoleManager), Data: GeneralData{}})
	n.Flush()

	require.Equal(t, 1, ext.callCount())
	assert.Equal(t, "ou_linked", ext.calls[0])
}

func TestRequestRoomsAreRealtimeOnly(t *testing.T) {
	db := openTestDB(t)
	user := seedUser(t, db, "dave", model.RoleRequester, nil)
	require.NoError(t, db.Model(&model.User{}).
		Where("id = ?", user.ID).
		Update("lark_open_id", "ou_dave").Error)

	ext := &fakeExternal{}
	rt := newFakeRealtime()
	n := newTestNotifier(db, rt, ext)

	n.Notify(Event{Type: EventStatusChange, Message: "update", Audience: ToRequest("req-9"), Data: GeneralData{}})
	n.Flush()

	assert.Len(t, rt.requests["req-9"], 1)
	assert.Zero(t, ext.callCount())
}

func TestNotifyWithoutExternalChannel(t *testing.T) {
	db := openTestDB(t)
	rt := newFakeRealtime()
	n := newTestNotifier(db, rt, nil)

	n.Notify(Event{Type: EventGeneral, Message: "no chat configured", Audience: ToUser("u1"), Data: GeneralData{}})
	n.Flush()

	assert.Len(t, rt.users["u1"], 1)
}
