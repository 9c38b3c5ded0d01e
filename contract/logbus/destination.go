package logbus

// Destination is where a single record is routed: either a registry queue
// or an ad-hoc name that is declared on demand and never checked.
// The zero value means "no override".
type Destination struct {
	name  string
	adHoc bool
}

// Known routes to a registry queue.
func Known(q QueueName) Destination { return Destination{name: string(q)} }

// AdHoc routes to an arbitrary queue name. AdHoc("") is the zero Destination.
func AdHoc(name string) Destination {
	if name == "" {
		return Destination{}
	}

	return Destination{name: name, adHoc: true}
}

// ParseDestination returns Known for registry members and AdHoc otherwise.
func ParseDestination(name string) Destination {
	if IsKnown(name) {
		return Known(QueueName(name))
	}

	return AdHoc(name)
}

// Name is the broker queue name, used as the routing key.
func (d Destination) Name() string { return d.name }

// Queue returns the registry queue for a Known destination.
func (d Destination) Queue() (QueueName, bool) {
	if d.adHoc || d.name == "" {
		return "", false
	}

	return QueueName(d.name), true
}

func (d Destination) IsAdHoc() bool { return d.adHoc }

func (d Destination) IsZero() bool { return d.name == "" }

func (d Destination) String() string { return d.name }
