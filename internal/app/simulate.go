package app

import (
	"context"
	"errors"
	"fmt"

	"ramadan-companion/internal/alerting"
	"ramadan-companion/internal/prayer"
)

// SimulateNotification 通过已配置的告警通道发送一次指定祈祷的提醒。
func (a *App) SimulateNotification(ctx context.Context, name string) (alerting.Notification, error) {
	if !a.Config.Alerting.Enabled {
		return alerting.Notification{}, errors.New("alerting 未启用")
	}

	p, err := prayer.ParsePrayer(name)
	if err != nil {
		return alerting.Notification{}, err
	}
	if p == prayer.Sunrise {
		return alerting.Notification{}, errors.New("Sunrise 不是祈祷, 不会触发提醒")
	}

	notifier, closeNotifier, err := a.newNotifier()
	if err != nil {
		return alerting.Notification{}, err
	}
	defer closeNotifier()
	if notifier == nil {
		return alerting.Notification{}, errors.New("未配置任何告警通道")
	}

	note := alerting.NewPrayerNotification(p, a.now())
	note.RunID = "simulated"
	if err := notifier.Notify(ctx, note); err != nil {
		return note, err
	}
	fmt.Fprintf(a.Out, "sent #%d %s\n", note.ID, note.Title)
	return note, nil
}
