package watcher

import (
	"context"
	"fmt"
	"time"
)

// StartupMode selects who receives the startup notice.
type StartupMode string

const (
	StartupSelf StartupMode = "self"
	StartupAll  StartupMode = "all"
	StartupOff  StartupMode = "off"
)

// Startup describes the tasks run after each successful connect. The notice
// is only sent after the first one.
type Startup struct {
	Account     string
	DisplayName string
	Mode        StartupMode
	Version     string
	Location    *time.Location
	// AllowsGroup filters groups for listing and the "all" notice.
	AllowsGroup func(title string) bool
	Now         func() time.Time
}

func (w *Watcher) runStartup(ctx context.Context, conn Conn, first bool) {
	s := w.startup

	if s.DisplayName != "" {
		if err := conn.UpdateProfile(ctx, s.DisplayName); err != nil {
			w.logger.Warn("profile update failed", "error", err)
		} else {
			w.logger.Info("profile name update sent", "name", s.DisplayName)
		}
	}

	groups, err := conn.ListGroups(ctx)
	if err != nil {
		w.logger.Warn("listing groups failed", "error", err)
	}
	var active []string
	for _, g := range groups {
		allowed := s.AllowsGroup == nil || s.AllowsGroup(g.Name)
		w.logger.Info("group", "name", g.Name, "ignored", !allowed, "member", g.IsMember, "blocked", g.IsBlocked)
		if allowed && g.IsMember && !g.IsBlocked && g.ID != "" {
			active = append(active, g.ID)
		}
	}
	if err == nil {
		w.logger.Info("account groups", "total", len(groups), "active", len(active))
	}

	if !first {
		return
	}
	msg := s.notice()
	switch s.Mode {
	case StartupSelf:
		if s.Account == "" {
			return
		}
		if err := conn.SendDirectMessage(ctx, s.Account, msg); err != nil {
			w.logger.Warn("startup message failed", "error", err)
		}
	case StartupAll:
		for _, id := range active {
			if err := conn.SendGroupMessage(ctx, id, msg); err != nil {
				w.logger.Warn("startup message failed", "group_id", id, "error", err)
			}
		}
		w.logger.Info("startup message sent", "groups", len(active))
	default:
		w.logger.Debug("startup message disabled")
	}
}

func (s Startup) notice() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	t := now()
	if s.Location != nil {
		t = t.In(s.Location)
	}
	version := s.Version
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("Oden %s started\n%s", version, t.Format("2006-01-02 15:04:05"))
}
