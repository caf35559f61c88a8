//go:build linux

package mdns

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const avahiService = "org.freedesktop.Avahi"

// avahiPublisher holds an Avahi entry group registered over the system bus.
type avahiPublisher struct {
	conn  *dbus.Conn
	group dbus.ObjectPath
}

func announce(s Service) (Publisher, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	server := conn.Object(avahiService, "/")
	var group dbus.ObjectPath
	if err := server.Call("org.freedesktop.Avahi.Server.EntryGroupNew", 0).Store(&group); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create avahi entry group: %w", err)
	}

	txt := make([][]byte, len(s.TXTRecords))
	for i, rec := range s.TXTRecords {
		txt[i] = []byte(rec)
	}

	entryGroup := conn.Object(avahiService, group)
	// interface -1 = all, protocol -1 = both IP versions, empty domain and
	// host mean .local with the system hostname.
	err = entryGroup.Call(
		"org.freedesktop.Avahi.EntryGroup.AddService", 0,
		int32(-1), int32(-1), uint32(0),
		s.Name, ServiceType, "", "",
		uint16(s.Port), txt,
	).Store()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to add avahi service: %w", err)
	}
	if err := entryGroup.Call("org.freedesktop.Avahi.EntryGroup.Commit", 0).Store(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to commit avahi entry group: %w", err)
	}

	return &avahiPublisher{conn: conn, group: group}, nil
}

func (p *avahiPublisher) Stop() error {
	entryGroup := p.conn.Object(avahiService, p.group)
	err := entryGroup.Call("org.freedesktop.Avahi.EntryGroup.Free", 0).Store()
	p.conn.Close()
	if err != nil {
		return fmt.Errorf("failed to free avahi entry group: %w", err)
	}
	return nil
}
