package notify

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	fdoDest  = "org.freedesktop.Notifications"
	fdoPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	fdoIface = "org.freedesktop.Notifications"
)

// Desktop posts notifications through org.freedesktop.Notifications and
// reports button presses on Actions.
type Desktop struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string

	mu       sync.Mutex
	serverID uint32

	signals chan *dbus.Signal
	actions chan ActionKey
	done    chan struct{}
}

// NewDesktop connects to the session bus and starts listening for actions.
func NewDesktop(appName string) (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(fdoIface),
		dbus.WithMatchMember("ActionInvoked"),
	); err != nil {
		conn.Close()
		return nil, err
	}

	d := &Desktop{
		conn:    conn,
		obj:     conn.Object(fdoDest, fdoPath),
		appName: appName,
		signals: make(chan *dbus.Signal, 16),
		actions: make(chan ActionKey, 8),
		done:    make(chan struct{}),
	}
	conn.Signal(d.signals)
	go d.listen()
	return d, nil
}

func (d *Desktop) Name() string { return "desktop" }

// Actions delivers the keys of pressed notification buttons.
func (d *Desktop) Actions() <-chan ActionKey {
	return d.actions
}

// Post shows or replaces the notification.
func (d *Desktop) Post(ctx context.Context, desc Descriptor) error {
	actions := make([]string, 0, len(desc.Actions)*2)
	for _, a := range desc.Actions {
		actions = append(actions, string(a.Key), a.Label)
	}
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(1)),
	}
	expire := int32(-1)
	if desc.Ongoing {
		hints["resident"] = dbus.MakeVariant(true)
		expire = 0
	} else if desc.AutoDismiss {
		hints["transient"] = dbus.MakeVariant(true)
	}

	d.mu.Lock()
	replaces := d.serverID
	d.mu.Unlock()

	var id uint32
	err := d.obj.CallWithContext(ctx, fdoIface+".Notify", 0,
		d.appName, replaces, "alarm-symbolic", desc.Title, desc.Body, actions, hints, expire,
	).Store(&id)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.serverID = id
	d.mu.Unlock()
	return nil
}

// Cancel closes the notification if one is shown.
func (d *Desktop) Cancel(ctx context.Context, _ int) error {
	d.mu.Lock()
	id := d.serverID
	d.serverID = 0
	d.mu.Unlock()

	if id == 0 {
		return nil
	}
	return d.obj.CallWithContext(ctx, fdoIface+".CloseNotification", 0, id).Err
}

// Close stops the listener and releases the bus connection.
func (d *Desktop) Close() error {
	d.conn.RemoveSignal(d.signals)
	close(d.done)
	return d.conn.Close()
}

func (d *Desktop) listen() {
	for {
		select {
		case <-d.done:
			return
		case sig, ok := <-d.signals:
			if !ok {
				return
			}
			id, key, ok := parseActionInvoked(sig)
			if !ok {
				continue
			}
			d.mu.Lock()
			current := d.serverID
			d.mu.Unlock()
			if id != current {
				continue
			}
			select {
			case d.actions <- key:
			default:
				log.Warn().Str("action", string(key)).Msg("notify: action dropped, receiver busy")
			}
		}
	}
}

func parseActionInvoked(sig *dbus.Signal) (uint32, ActionKey, bool) {
	if sig == nil || sig.Name != fdoIface+".ActionInvoked" || len(sig.Body) != 2 {
		return 0, "", false
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return 0, "", false
	}
	key, ok := sig.Body[1].(string)
	if !ok {
		return 0, "", false
	}
	return id, ActionKey(key), true
}
