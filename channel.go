package gobayeux

import (
	"regexp"
	"strings"
)

// Channel represents a Bayeux Channel which is defined as "a string that
// looks like a URL path such as `/foo/bar`, `/meta/connect`, or
// `/service/chat`."
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels
type Channel string

const (
	// MetaHandshake is the Channel for the first message a new client sends.
	MetaHandshake Channel = "/meta/handshake"
	// MetaConnect is the Channel used for connect messages after a
	// successful handshake.
	MetaConnect Channel = "/meta/connect"
	// MetaDisconnect is the Channel used for disconnect messages.
	MetaDisconnect Channel = "/meta/disconnect"
	// MetaSubscribe is the Channel used by a client to subscribe to
	// channels.
	MetaSubscribe Channel = "/meta/subscribe"
	// MetaUnsubscribe is the Channel used by a client to unsubscribe from
	// channels.
	MetaUnsubscribe Channel = "/meta/unsubscribe"

	emptyChannel Channel = ""
	rootChannel  Channel = "/"
)

// ChannelType is used to distinguish the three classes of channel:
//   - meta channels, prefixed `/meta/`
//   - service channels, prefixed `/service/`
//   - broadcast channels, everything else
type ChannelType string

const (
	// MetaChannel represents the `/meta/` channel type.
	MetaChannel ChannelType = "meta"
	// ServiceChannel represents the `/service/` channel type.
	ServiceChannel ChannelType = "service"
	// BroadcastChannel represents all other channels.
	BroadcastChannel ChannelType = "broadcast"
)

const (
	metaPrefix    string = "/meta/"
	servicePrefix string = "/service/"
)

// segmentAlphabet is the character class a single channel segment may be
// built from.
const segmentAlphabet = `A-Za-z0-9\-_!~()$@`

var (
	channelNameRE    = regexp.MustCompile(`^(/[` + segmentAlphabet + `]+)+$`)
	channelSegmentRE = regexp.MustCompile(`^[` + segmentAlphabet + `]+$`)
)

// Type reports which of the three ChannelType classes c belongs to.
func (c Channel) Type() ChannelType {
	s := string(c)
	switch {
	case strings.HasPrefix(s, metaPrefix):
		return MetaChannel
	case strings.HasPrefix(s, servicePrefix):
		return ServiceChannel
	default:
		return BroadcastChannel
	}
}

// IsMeta reports whether c is a /meta/ channel.
func (c Channel) IsMeta() bool { return c.Type() == MetaChannel }

// IsService reports whether c is a /service/ channel.
func (c Channel) IsService() bool { return c.Type() == ServiceChannel }

// IsPattern reports whether c contains a wildcard segment.
func (c Channel) IsPattern() bool {
	return strings.Contains(string(c), "*")
}

// IsWildcard reports whether c ends with the multi-segment wildcard `/**`.
func (c Channel) IsWildcard() bool {
	return strings.HasSuffix(string(c), "/**")
}

// Segments returns the non-empty `/`-separated parts of c.
func (c Channel) Segments() []string {
	parts := strings.Split(string(c), "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// IsValidName reports whether c is a syntactically valid, concrete channel
// name: it begins with `/`, contains no wildcard, no empty segments, and
// (other than the root channel) no trailing slash.
func (c Channel) IsValidName() bool {
	if c == rootChannel {
		return true
	}
	return channelNameRE.MatchString(string(c))
}

// IsValidPattern reports whether c is a syntactically valid channel
// pattern: it begins with `/`, every segment is either a valid name
// segment or exactly `*` or `**`, and it contains at least one wildcard
// segment.
func (c Channel) IsValidPattern() bool {
	s := string(c)
	if !strings.HasPrefix(s, "/") || s == "/" {
		return false
	}
	segments := strings.Split(s[1:], "/")
	hasWildcard := false
	for _, seg := range segments {
		switch seg {
		case "":
			return false
		case "*", "**":
			hasWildcard = true
		default:
			if !channelSegmentRE.MatchString(seg) {
				return false
			}
		}
	}
	return hasWildcard
}

// Matches reports whether c (a concrete channel name) matches pattern,
// translating `**` to `.*` and `*` to `[^/]*`, anchored at both ends. If
// either c or pattern is not valid per IsValidName/IsValidPattern, Matches
// returns false without raising.
func (c Channel) Matches(pattern Channel) bool {
	return channelMatches(c, pattern)
}

// channelMatches translates pattern to an anchored regular expression and
// tests channel against it.
func channelMatches(channel, pattern Channel) bool {
	if !channel.IsValidName() || !pattern.IsValidPattern() {
		return false
	}
	re, err := patternRegexp(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(string(channel))
}

func patternRegexp(pattern Channel) (*regexp.Regexp, error) {
	segments := strings.Split(string(pattern)[1:], "/")
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "**":
			parts = append(parts, ".*")
		case "*":
			parts = append(parts, "[^/]*")
		default:
			parts = append(parts, regexp.QuoteMeta(seg))
		}
	}
	return regexp.Compile("^/" + strings.Join(parts, "/") + "$")
}

// Normalize prepends a leading `/` if absent and strips a trailing `/`
// unless the result would be the empty string, in which case it returns
// the root channel.
func Normalize(s string) Channel {
	if s == "" {
		return rootChannel
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	if s != "/" && strings.HasSuffix(s, "/") {
		s = strings.TrimRight(s, "/")
	}
	if s == "" {
		return rootChannel
	}
	return Channel(s)
}

// InNamespace reports whether c falls under the namespace ns, i.e. c is ns
// itself or begins with ns followed by `/`.
func InNamespace(c, ns Channel) bool {
	cs, nss := string(c), string(ns)
	if cs == nss {
		return true
	}
	return strings.HasPrefix(cs, nss+"/")
}

// Namespace returns the first segment of c as a namespace Channel, e.g.
// Namespace("/chat/room1") == "/chat".
func Namespace(c Channel) Channel {
	segments := c.Segments()
	if len(segments) == 0 {
		return rootChannel
	}
	return Channel("/" + segments[0])
}

// RelativeTo returns the portion of c after the namespace ns. If c is not
// InNamespace(c, ns), RelativeTo returns c unchanged.
func RelativeTo(c, ns Channel) Channel {
	if !InNamespace(c, ns) {
		return c
	}
	rel := strings.TrimPrefix(string(c), string(ns))
	rel = strings.TrimPrefix(rel, "/")
	return Channel(rel)
}

// Parents enumerates the parent-chain of c, from the immediate parent up
// to (and including) the root channel. The root channel's parent chain is
// empty.
func Parents(c Channel) []Channel {
	segments := c.Segments()
	if len(segments) == 0 {
		return nil
	}
	parents := make([]Channel, 0, len(segments))
	for i := len(segments) - 1; i > 0; i-- {
		parents = append(parents, Channel("/"+strings.Join(segments[:i], "/")))
	}
	parents = append(parents, rootChannel)
	return parents
}
