package tram

import "strings"

// InReply renames a command header to the name it carries in a reply:
// the "command_" prefix is replaced by "commandreply_".
//
//	InReply("command_saga_id") == "commandreply_saga_id"
func InReply(header string) string {
	return CommandReplyPrefix + strings.TrimPrefix(header, CommandHeaderPrefix)
}

// CorrelationHeaders returns the headers a reply to a command must carry.
// Every command header is echoed under its InReply name, and the command's ID
// is recorded under HeaderInReplyTo.
func CorrelationHeaders(commandHeaders map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range commandHeaders {
		if strings.HasPrefix(k, CommandHeaderPrefix) {
			out[InReply(k)] = v
		}
	}
	if id, ok := commandHeaders[HeaderID]; ok {
		out[HeaderInReplyTo] = id
	}
	return out
}
