package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/codelab-api/internal/dto"
)

func newMonitorFixture(t *testing.T) (*monitorService, *stubProctoringStore) {
	t.Helper()
	store := newStubProctoringStore()
	proctoring := NewProctoringService(store, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	svc := NewMonitorService(proctoring, nil, "", nil, zerolog.Nop()).(*monitorService)
	return svc, store
}

// newTestClient registers a hub client without a real websocket connection.
// The send channel stands in for the wire.
func newTestClient(svc *monitorService, labID string, userID uint, role string) *monitorClient {
	client := &monitorClient{
		send:    make(chan dto.MonitorOutbound, monitorSendBufferSize),
		options: MonitorConnectionOptions{LabID: labID, UserID: userID, Role: role},
		service: svc,
		closed:  make(chan struct{}),
		baseCtx: context.Background(),
	}
	svc.hub.register(client)
	if isStudentRole(role) {
		svc.resumeStudent(context.Background(), client)
	}
	return client
}

func receiveFrame(t *testing.T, client *monitorClient) dto.MonitorOutbound {
	t.Helper()
	select {
	case frame := <-client.send:
		return frame
	case <-time.After(time.Second):
		t.Fatal("expected a frame, got none")
		return dto.MonitorOutbound{}
	}
}

func drain(client *monitorClient) {
	for {
		select {
		case <-client.send:
		default:
			return
		}
	}
}

func TestMonitorPingAnswersPong(t *testing.T) {
	svc, _ := newMonitorFixture(t)
	student := newTestClient(svc, "lab-1", 7, "student")

	svc.handleMessage(context.Background(), student, dto.PingMessage{})

	frame := receiveFrame(t, student)
	require.Equal(t, dto.MonitorTypePong, frame.Type)
	require.Empty(t, student.send)
}

func TestMonitorActivityUpdateReachesObserversInSameLabOnly(t *testing.T) {
	svc, _ := newMonitorFixture(t)
	student := newTestClient(svc, "lab-1", 7, "student")
	observer := newTestClient(svc, "lab-1", 99, "faculty")
	otherLab := newTestClient(svc, "lab-2", 100, "faculty")
	drain(student)
	drain(observer)

	code := "print(1)"
	language := "python"
	svc.handleMessage(context.Background(), student, dto.ActivityUpdateMessage{Code: &code, Language: &language})

	frame := receiveFrame(t, observer)
	require.Equal(t, dto.MonitorTypeActivityUpdate, frame.Type)
	require.Len(t, frame.Activities, 1)
	require.Equal(t, uint(7), frame.Activities[0].StudentID)
	require.Equal(t, code, frame.Activities[0].Code)
	require.Equal(t, language, frame.Activities[0].Language)

	require.Empty(t, otherLab.send)
}

func TestMonitorActivityUpdateTouchesSession(t *testing.T) {
	svc, store := newMonitorFixture(t)
	student := newTestClient(svc, "lab-1", 7, "student")

	code := "x = 1"
	svc.handleMessage(context.Background(), student, dto.ActivityUpdateMessage{Code: &code})

	session, err := store.GetActiveSession(context.Background(), "lab-1", 7)
	require.NoError(t, err)
	require.True(t, session.Active)
}

func TestMonitorObserverIsReadOnly(t *testing.T) {
	svc, _ := newMonitorFixture(t)
	observer := newTestClient(svc, "lab-1", 99, "faculty")
	drain(observer)

	code := "stolen := true"
	svc.handleMessage(context.Background(), observer, dto.ActivityUpdateMessage{Code: &code})

	frame := receiveFrame(t, observer)
	require.Equal(t, dto.MonitorTypeError, frame.Type)
	require.Empty(t, svc.Snapshot("lab-1"))
}

func TestMonitorViolationUpdatesSessionAndLiveView(t *testing.T) {
	svc, store := newMonitorFixture(t)
	student := newTestClient(svc, "lab-1", 7, "student")
	observer := newTestClient(svc, "lab-1", 99, "faculty")
	drain(student)
	drain(observer)

	svc.handleMessage(context.Background(), student, dto.ViolationMessage{ViolationType: "tab_switch"})

	session, err := store.GetActiveSession(context.Background(), "lab-1", 7)
	require.NoError(t, err)
	require.Equal(t, 1, session.TabSwitches)

	frame := receiveFrame(t, observer)
	require.Equal(t, dto.MonitorTypeActivityUpdate, frame.Type)
	require.Len(t, frame.Activities, 1)
	require.Equal(t, 1, frame.Activities[0].TabSwitches)
}

func TestMonitorUnknownViolationAnsweredWithError(t *testing.T) {
	svc, _ := newMonitorFixture(t)
	student := newTestClient(svc, "lab-1", 7, "student")
	drain(student)

	svc.handleMessage(context.Background(), student, dto.ViolationMessage{ViolationType: "telepathy"})

	frame := receiveFrame(t, student)
	require.Equal(t, dto.MonitorTypeError, frame.Type)
}

func TestMonitorDisconnectKeepsActivityEntry(t *testing.T) {
	svc, _ := newMonitorFixture(t)
	student := newTestClient(svc, "lab-1", 7, "student")

	student.close()

	views := svc.Snapshot("lab-1")
	require.Len(t, views, 1)
	require.False(t, views[0].Connected)
}

func TestMonitorReconnectIncrementsAttemptCount(t *testing.T) {
	svc, _ := newMonitorFixture(t)
	first := newTestClient(svc, "lab-1", 7, "student")
	first.close()
	newTestClient(svc, "lab-1", 7, "student")

	views := svc.Snapshot("lab-1")
	require.Len(t, views, 1)
	require.Equal(t, 2, views[0].AttemptCount)
	require.True(t, views[0].Connected)
}

func TestMonitorBroadcastDropsUnresponsiveClientOnly(t *testing.T) {
	svc, _ := newMonitorFixture(t)
	healthy := newTestClient(svc, "lab-1", 99, "faculty")
	stuck := newTestClient(svc, "lab-1", 100, "faculty")
	drain(healthy)
	drain(stuck)

	// Fill the stuck client's buffer so the next delivery cannot be queued.
	for i := 0; i < monitorSendBufferSize; i++ {
		require.True(t, stuck.trySend(dto.NewPong()))
	}

	svc.hub.broadcast("lab-1", dto.NewActivityBroadcast(nil))

	frame := receiveFrame(t, healthy)
	require.Equal(t, dto.MonitorTypeActivityUpdate, frame.Type)

	select {
	case <-stuck.closed:
	case <-time.After(time.Second):
		t.Fatal("unresponsive client was not dropped")
	}

	room := svc.hub.room("lab-1")
	room.mu.Lock()
	_, stillThere := room.clients[stuck]
	room.mu.Unlock()
	require.False(t, stillThere)
}

func TestMonitorSnapshotCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newStubProctoringStore()
	proctoring := NewProctoringService(store, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	svc := NewMonitorService(proctoring, client, "codelab", nil, zerolog.Nop()).(*monitorService)

	snapshot := []dto.StudentActivityView{{StudentID: 7, Language: "python", Connected: true, LastSeen: time.Now().UTC().Truncate(time.Second)}}
	svc.cacheSnapshot(context.Background(), "lab-1", snapshot)

	restored := svc.fetchSnapshot(context.Background(), "lab-1")
	require.Len(t, restored, 1)
	require.Equal(t, uint(7), restored[0].StudentID)
	require.Equal(t, "python", restored[0].Language)
	require.True(t, restored[0].Connected)
}

func TestMonitorIgnoresOwnPublishedEvents(t *testing.T) {
	svc, _ := newMonitorFixture(t)
	observer := newTestClient(svc, "lab-1", 99, "faculty")
	drain(observer)

	payload, err := json.Marshal(monitorEvent{Source: svc.nodeID, LabID: "lab-1"})
	require.NoError(t, err)
	svc.handleEvent(payload)
	require.Empty(t, observer.send)

	payload, err = json.Marshal(monitorEvent{
		Source:     "peer-node",
		LabID:      "lab-1",
		Activities: []dto.StudentActivityView{{StudentID: 7}},
	})
	require.NoError(t, err)
	svc.handleEvent(payload)

	frame := receiveFrame(t, observer)
	require.Equal(t, dto.MonitorTypeActivityUpdate, frame.Type)
	require.Len(t, frame.Activities, 1)
}
