package tram

// ChannelMapping translates logical channel names into transport destinations.
type ChannelMapping interface {
	Transform(channel string) string
}

// DefaultChannelMapping renames the channels it knows and passes others through.
type DefaultChannelMapping struct {
	mappings map[string]string
}

// NewChannelMapping creates a DefaultChannelMapping from logical to physical names.
func NewChannelMapping(mappings map[string]string) *DefaultChannelMapping {
	m := &DefaultChannelMapping{mappings: make(map[string]string, len(mappings))}
	for k, v := range mappings {
		m.mappings[k] = v
	}
	return m
}

// Transform returns the mapped name, or channel itself when unmapped.
func (m *DefaultChannelMapping) Transform(channel string) string {
	if m == nil {
		return channel
	}
	if mapped, ok := m.mappings[channel]; ok {
		return mapped
	}
	return channel
}

type identityMapping struct{}

func (identityMapping) Transform(channel string) string { return channel }
