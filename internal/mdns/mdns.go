// Package mdns advertises the flasher daemon on the local network over
// Avahi, so companion apps can find it without configuration.
package mdns

// ServiceType is the DNS-SD type companion apps browse for.
const ServiceType = "_cardflash._tcp"

// Service describes one advertisement.
type Service struct {
	Name       string   // instance name shown to browsers
	Port       int      // TCP port the API listens on
	TXTRecords []string // key=value pairs
}

// Publisher keeps a service advertised until Stop.
type Publisher interface {
	Stop() error
}

// Announce advertises the service for the life of the returned Publisher.
// Only Linux hosts with a reachable Avahi daemon can advertise; everywhere
// else the error says so.
func Announce(s Service) (Publisher, error) {
	return announce(s)
}
