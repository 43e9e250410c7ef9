package dispatch

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.ServeWorker(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialWorker(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func register(t *testing.T, conn *websocket.Conn, workerID string, max int) {
	t.Helper()
	err := conn.WriteJSON(WorkerRegister{Type: TypeWorkerRegister, WorkerID: workerID, MaxSessions: max})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
}

func waitForWorkers(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(hub.Snapshot().Workers) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("workers = %d, want %d", len(hub.Snapshot().Workers), n)
}

func TestHubRegisterAndSnapshot(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := newHubServer(t, hub)

	conn := dialWorker(t, srv)
	register(t, conn, "w1", 4)
	waitForWorkers(t, hub, 1)

	snap := hub.Snapshot()
	if !snap.Online {
		t.Fatal("Online = false, want true")
	}
	if snap.Workers[0].WorkerID != "w1" || snap.Workers[0].MaxSessions != 4 {
		t.Fatalf("worker = %+v", snap.Workers[0])
	}
}

func TestHubDispatchReachesWorker(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := newHubServer(t, hub)

	conn := dialWorker(t, srv)
	register(t, conn, "w1", 4)
	waitForWorkers(t, hub, 1)

	workerID, err := hub.Dispatch(JobAssign{JobID: "j1", RoomName: "test-a-1", AgentID: "a", CallerIdentity: "c"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if workerID != "w1" {
		t.Fatalf("workerID = %q, want w1", workerID)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read assigned job: %v", err)
	}
	msg, err := ParseHubMessage(raw)
	if err != nil {
		t.Fatalf("ParseHubMessage() error = %v", err)
	}
	job := msg.(JobAssign)
	if job.JobID != "j1" || job.RoomName != "test-a-1" {
		t.Fatalf("job = %+v", job)
	}
}

func TestHubDispatchWithoutWorkers(t *testing.T) {
	hub := NewHub(HubOptions{})
	if _, err := hub.Dispatch(JobAssign{JobID: "j1", RoomName: "r", AgentID: "a"}); err != ErrNoWorkerAvailable {
		t.Fatalf("Dispatch() error = %v, want %v", err, ErrNoWorkerAvailable)
	}
}

func TestHubPrefersLeastLoadedWorker(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := newHubServer(t, hub)

	busy := dialWorker(t, srv)
	register(t, busy, "busy", 4)
	idle := dialWorker(t, srv)
	register(t, idle, "idle", 4)
	waitForWorkers(t, hub, 2)

	if err := busy.WriteJSON(WorkerHeartbeat{Type: TypeWorkerHeartbeat, WorkerID: "busy", ActiveSessions: 3}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := hub.Snapshot()
		if len(snap.Workers) == 2 && (snap.Workers[0].ActiveSessions == 3 || snap.Workers[1].ActiveSessions == 3) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	workerID, err := hub.Dispatch(JobAssign{JobID: "j1", RoomName: "r", AgentID: "a"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if workerID != "idle" {
		t.Fatalf("workerID = %q, want idle", workerID)
	}
}

func TestHubSkipsFullWorker(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := newHubServer(t, hub)

	conn := dialWorker(t, srv)
	register(t, conn, "w1", 1)
	waitForWorkers(t, hub, 1)

	if err := conn.WriteJSON(WorkerHeartbeat{Type: TypeWorkerHeartbeat, WorkerID: "w1", ActiveSessions: 1}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := hub.Snapshot()
		if len(snap.Workers) == 1 && snap.Workers[0].ActiveSessions == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := hub.Dispatch(JobAssign{JobID: "j1", RoomName: "r", AgentID: "a"}); err != ErrNoWorkerAvailable {
		t.Fatalf("Dispatch() error = %v, want %v", err, ErrNoWorkerAvailable)
	}
}

func TestHubForwardsJobResults(t *testing.T) {
	results := make(chan JobResult, 1)
	hub := NewHub(HubOptions{OnJobResult: func(r JobResult) { results <- r }})
	srv := newHubServer(t, hub)

	conn := dialWorker(t, srv)
	register(t, conn, "w1", 4)
	waitForWorkers(t, hub, 1)

	err := conn.WriteJSON(JobResult{Type: TypeJobResult, JobID: "j1", WorkerID: "w1", Status: "completed"})
	if err != nil {
		t.Fatalf("write result: %v", err)
	}

	select {
	case r := <-results:
		if r.JobID != "j1" || r.Status != "completed" {
			t.Fatalf("result = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job result not forwarded")
	}
}

func TestHubDispatchDuringHeartbeats(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := newHubServer(t, hub)

	first := dialWorker(t, srv)
	register(t, first, "w1", 8)
	second := dialWorker(t, srv)
	register(t, second, "w2", 8)
	waitForWorkers(t, hub, 2)

	// Heartbeats mutate worker load while dispatch sorts candidates; the race
	// detector flags any unguarded read of those fields.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			first.WriteJSON(WorkerHeartbeat{Type: TypeWorkerHeartbeat, WorkerID: "w1", ActiveSessions: i % 4})
			second.WriteJSON(WorkerHeartbeat{Type: TypeWorkerHeartbeat, WorkerID: "w2", ActiveSessions: (i + 1) % 4})
		}
	}()

	go func() {
		for {
			first.SetReadDeadline(time.Now().Add(2 * time.Second))
			if _, _, err := first.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go func() {
		for {
			second.SetReadDeadline(time.Now().Add(2 * time.Second))
			if _, _, err := second.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		if _, err := hub.Dispatch(JobAssign{JobID: "j", RoomName: "r", AgentID: "a"}); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	}

	close(stop)
	<-done
}

func TestHubRemovesWorkerOnDisconnect(t *testing.T) {
	hub := NewHub(HubOptions{})
	srv := newHubServer(t, hub)

	conn := dialWorker(t, srv)
	register(t, conn, "w1", 4)
	waitForWorkers(t, hub, 1)

	conn.Close()
	waitForWorkers(t, hub, 0)

	if hub.Snapshot().Online {
		t.Fatal("Online = true after disconnect, want false")
	}
}
