package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"ramadan-companion/internal/prayer"
)

var noteTime = time.Date(2026, time.February, 18, 18, 31, 0, 0, time.FixedZone("MMT", 6*3600+1800))

func TestNewPrayerNotification(t *testing.T) {
	note := NewPrayerNotification(prayer.Maghrib, noteTime)
	if note.Title != "It's time for Maghrib" {
		t.Fatalf("标题不正确: %q", note.Title)
	}
	if note.Body != "Ramadan Kareem! Time to perform your Maghrib prayer." {
		t.Fatalf("正文不正确: %q", note.Body)
	}
	if note.Channel.ID != "PRAYER_NOTI" || note.Channel.Importance != "high" || note.Channel.Category != "alarm" {
		t.Fatalf("渠道元数据不正确: %+v", note.Channel)
	}
	if note.Day != "2026-02-18" {
		t.Fatalf("日期应按本地时间, 实际 %s", note.Day)
	}
}

func TestNotificationIDStable(t *testing.T) {
	seen := make(map[uint32]prayer.Prayer)
	for _, p := range prayer.Notifiable {
		id := NotificationID(p)
		if id != NotificationID(p) {
			t.Fatalf("%s 的 ID 不稳定", p)
		}
		if other, ok := seen[id]; ok {
			t.Fatalf("%s 与 %s 的 ID 冲突", p, other)
		}
		seen[id] = p
	}
	a := NewPrayerNotification(prayer.Fajr, noteTime)
	b := NewPrayerNotification(prayer.Fajr, noteTime.Add(24*time.Hour))
	if a.ID != b.ID {
		t.Fatal("ID 只应由名称派生")
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": 7}})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), NewPrayerNotification(prayer.Maghrib, noteTime)); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	text, _ := received["text"].(string)
	if !strings.Contains(text, "It's time for Maghrib") {
		t.Fatalf("text 应包含标题: %q", text)
	}
}

func TestTelegramNotifierReplacesSameIDSameDay(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	var editedID float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		paths = append(paths, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
		if id, ok := body["message_id"].(float64); ok {
			editedID = id
		}
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": 42}})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := NewPrayerNotification(prayer.Isha, noteTime)
	for i := 0; i < 2; i++ {
		if err := notifier.Notify(context.Background(), note); err != nil {
			t.Fatalf("Notify 应成功: %v", err)
		}
	}
	if err := notifier.Notify(context.Background(), NewPrayerNotification(prayer.Isha, noteTime.Add(24*time.Hour))); err != nil {
		t.Fatalf("Notify 应成功: %v", err)
	}

	want := []string{"sendMessage", "editMessageText", "sendMessage"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Fatalf("调用序列不正确: %v", paths)
	}
	if editedID != 42 {
		t.Fatalf("应编辑 message_id 42, 实际 %v", editedID)
	}
}

func TestTelegramNotifierUnchangedEditSucceeds(t *testing.T) {
	var mu sync.Mutex
	var edits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/editMessageText") {
			mu.Lock()
			edits++
			mu.Unlock()
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":          false,
				"error_code":  400,
				"description": "Bad Request: message is not modified: specified new message content and reply markup are exactly the same as a current content and reply markup of the message",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": 7}})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := NewPrayerNotification(prayer.Maghrib, noteTime)
	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("首次发送应成功: %v", err)
	}
	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("同一分钟重复提醒应视为成功: %v", err)
	}
	if edits != 1 {
		t.Fatalf("应调用一次 editMessageText, 实际 %d", edits)
	}
}

func TestTelegramNotifierReportsDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Bad Request: chat not found"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), NewPrayerNotification(prayer.Fajr, noteTime))
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("错误信息应包含 API 描述, 实际 %v", err)
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), NewPrayerNotification(prayer.Fajr, noteTime)); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	ch := make(chan struct{})
	close(ch)
	return &fakeToken{err: err, done: ch}
}

func (f *fakeToken) Wait() bool                     { return true }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (f *fakeToken) Done() <-chan struct{}          { return f.done }
func (f *fakeToken) Error() error                   { return f.err }

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	calls []publishCall
	err   error
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.calls = append(f.calls, publishCall{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return newFakeToken(f.err)
}

func TestMQTTNotifierPublishesRetained(t *testing.T) {
	pub := &fakePublisher{}
	notifier := NewMQTTNotifier(pub, "ramadan/alerts/", 1, time.Second, testLogger())

	note := NewPrayerNotification(prayer.Asr, noteTime)
	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("MQTT Notify 应成功: %v", err)
	}
	if len(pub.calls) != 1 {
		t.Fatalf("应发布 1 条消息, 实际 %d", len(pub.calls))
	}
	call := pub.calls[0]
	if want := fmt.Sprintf("ramadan/alerts/%d", note.ID); call.topic != want || notifier.Topic(note.ID) != want {
		t.Fatalf("topic 不正确: %s", call.topic)
	}
	if !call.retained || call.qos != 1 {
		t.Fatalf("应以 retained QoS1 发布: %+v", call)
	}
	var decoded Notification
	if err := json.Unmarshal(call.payload, &decoded); err != nil {
		t.Fatalf("payload 应为 JSON: %v", err)
	}
	if decoded.Prayer != prayer.Asr {
		t.Fatalf("payload prayer 不正确: %s", decoded.Prayer)
	}
}

func TestMQTTNotifierError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	notifier := NewMQTTNotifier(pub, "", 0, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), NewPrayerNotification(prayer.Asr, noteTime)); err == nil {
		t.Fatal("发布失败应报错")
	}
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, Notification) error {
	return errors.New("sink down")
}

func TestFanoutAttemptsEverySink(t *testing.T) {
	mem := NewMemoryNotifier()
	fan := NewFanout(failingNotifier{}, nil, mem, NewLogNotifier(testLogger()))
	if fan.Len() != 3 {
		t.Fatalf("nil 应被跳过, 实际 %d", fan.Len())
	}
	if err := fan.Notify(context.Background(), NewPrayerNotification(prayer.Dhuhr, noteTime)); err == nil {
		t.Fatal("有渠道失败时应返回错误")
	}
	if len(mem.Visible()) != 1 {
		t.Fatal("失败渠道不应阻止后续渠道")
	}
}

func TestMemoryNotifierReplacesByID(t *testing.T) {
	mem := NewMemoryNotifier()
	note := NewPrayerNotification(prayer.Maghrib, noteTime)
	_ = mem.Notify(context.Background(), note)
	_ = mem.Notify(context.Background(), note)
	_ = mem.Notify(context.Background(), NewPrayerNotification(prayer.Isha, noteTime))

	if mem.Sends() != 3 {
		t.Fatalf("应记录 3 次发送, 实际 %d", mem.Sends())
	}
	if len(mem.Visible()) != 2 {
		t.Fatalf("同 ID 应覆盖, 可见数量 %d", len(mem.Visible()))
	}
	mem.Dismiss()
	if len(mem.Visible()) != 0 {
		t.Fatal("Dismiss 后应为空")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
