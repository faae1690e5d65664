package alerting

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"

	"ramadan-companion/internal/prayer"
)

// Channel 描述通知渠道的元数据。
type Channel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Importance  string `json:"importance"`
	Category    string `json:"category"`
}

// PrayerChannel is the single channel every prayer alert is posted to.
var PrayerChannel = Channel{
	ID:          "PRAYER_NOTI",
	Name:        "Prayer Alerts",
	Description: "Notifications for Prayer Times",
	Importance:  "high",
	Category:    "alarm",
}

// Notification 封装一次祈祷提醒。ID 仅由祈祷名称派生，同 ID 的提醒互相覆盖。
type Notification struct {
	ID      uint32        `json:"id"`
	Prayer  prayer.Prayer `json:"prayer"`
	Title   string        `json:"title"`
	Body    string        `json:"body"`
	Channel Channel       `json:"channel"`
	At      time.Time     `json:"at"`
	Day     string        `json:"day"`
	RunID   string        `json:"run_id,omitempty"`
}

// NotificationID derives the stable identifier for a prayer name.
func NotificationID(name prayer.Prayer) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

// NewPrayerNotification 构造祈祷提醒。
func NewPrayerNotification(p prayer.Prayer, at time.Time) Notification {
	return Notification{
		ID:      NotificationID(p),
		Prayer:  p,
		Title:   fmt.Sprintf("It's time for %s", p),
		Body:    fmt.Sprintf("Ramadan Kareem! Time to perform your %s prayer.", p),
		Channel: PrayerChannel,
		At:      at,
		Day:     at.Format(time.DateOnly),
	}
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// LogNotifier 仅将提醒写入日志。
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier 构造日志告警器。
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info().
		Uint32("id", note.ID).
		Str("prayer", string(note.Prayer)).
		Str("channel", note.Channel.ID).
		Time("at", note.At).
		Str("run_id", note.RunID).
		Msg(note.Title)
	return nil
}

// Fanout 将同一提醒投递给多个渠道，单个渠道失败不影响其他渠道。
type Fanout struct {
	notifiers []Notifier
}

// NewFanout combines notifiers; nil entries are skipped.
func NewFanout(notifiers ...Notifier) *Fanout {
	f := &Fanout{}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

// Len reports how many sinks are attached.
func (f *Fanout) Len() int {
	return len(f.notifiers)
}

// Notify implements Notifier. Every sink is attempted; errors are joined.
func (f *Fanout) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*Fanout)(nil)
)
