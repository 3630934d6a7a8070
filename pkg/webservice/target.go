package webservice

import (
	"fmt"
	"strings"

	"github.com/ArionMiles/trackmanager/pkg/api"
)

// ResolveURL returns the request URL for t. Endpoints are expanded to
// <scheme>://<host>/<action>.php?sFunctionName=<function> and URI-encoded;
// literal paths are returned unchanged. Unknown or nil targets resolve to "".
func (s *Service) ResolveURL(t api.Target) string {
	switch t := t.(type) {
	case api.Path:
		return string(t)
	case api.Endpoint:
		return s.endpointURL(t)
	case *api.Endpoint:
		if t == nil {
			return ""
		}
		return s.endpointURL(*t)
	default:
		return ""
	}
}

func (s *Service) endpointURL(e api.Endpoint) string {
	return EncodeURI(fmt.Sprintf("%s://%s/%s.php?sFunctionName=%s",
		s.cfg.Scheme, s.cfg.Host, e.Action, e.FunctionName))
}

// uriReserved holds the bytes EncodeURI leaves untouched besides ASCII
// letters and digits.
const uriReserved = ";,/?:@&=+$-_.!~*'()#"

// EncodeURI percent-encodes every byte of s that is not a letter, digit or
// URI reserved/unreserved mark, the way ECMAScript encodeURI does. Existing
// percent signs are encoded too.
func EncodeURI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAlnum(c) || strings.IndexByte(uriReserved, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isAlnum(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}
