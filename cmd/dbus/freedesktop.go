package main

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/creachadair/command"
	"github.com/danderson/dbusmsg/freedesktop/background"
	"github.com/danderson/dbusmsg/freedesktop/idle"
	"github.com/danderson/dbusmsg/freedesktop/notifications"
	"github.com/danderson/dbusmsg/freedesktop/powermanagement"
)

func runFdoBackground(env *command.Env) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext(env)
	defer cancel()
	apps, err := background.New(conn).BackgroundApps(ctx)
	if err != nil {
		return fmt.Errorf("listing background apps: %w", err)
	}
	slices.SortFunc(apps, func(a, b background.App) int {
		return cmp.Compare(a.ID, b.ID)
	})
	for _, app := range apps {
		fmt.Println(app.ID, app.Instance, app.Status)
	}
	return nil
}

func runFdoIdle(env *command.Env) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext(env)
	defer cancel()
	c := idle.New(conn)
	locked, err := c.Locked(ctx)
	if err != nil {
		return fmt.Errorf("getting lock state: %w", err)
	}
	idleTime, err := c.IdleTime(ctx)
	if err != nil {
		return fmt.Errorf("getting idle time: %w", err)
	}
	fmt.Println("Locked:", locked)
	fmt.Println("Idle for:", idleTime)
	return nil
}

func runFdoPower(env *command.Env) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext(env)
	defer cancel()
	pm := powermanagement.New(conn)
	checks := []struct {
		label string
		fn    func() (bool, error)
	}{
		{"Can suspend", func() (bool, error) { return pm.CanSuspend(ctx) }},
		{"Can hibernate", func() (bool, error) { return pm.CanHibernate(ctx) }},
		{"Can hybrid suspend", func() (bool, error) { return pm.CanHybridSuspend(ctx) }},
		{"Can suspend then hibernate", func() (bool, error) { return pm.CanSuspendThenHibernate(ctx) }},
		{"Should save power", func() (bool, error) { return pm.ShouldSavePower(ctx) }},
		{"Sleep inhibited", func() (bool, error) { return pm.HasInhibit(ctx) }},
	}
	for _, c := range checks {
		v, err := c.fn()
		if err != nil {
			fmt.Printf("%s: %v\n", c.label, err)
		} else {
			fmt.Printf("%s: %v\n", c.label, v)
		}
	}
	return nil
}

func runFdoNotify(env *command.Env) error {
	var req notifications.Notification
	switch len(env.Args) {
	case 2:
		req.Body = env.Args[1]
		fallthrough
	case 1:
		req.Summary = env.Args[0]
	default:
		return env.Usagef("notify takes a summary and an optional body")
	}
	req.AppName = "dbus"
	req.Urgency = notifications.UrgencyNormal
	req.Timeout = -1

	conn, err := busConn(env.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext(env)
	defer cancel()
	id, err := notifications.New(conn).Notify(ctx, req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	fmt.Println("notification", id)
	return nil
}
