package webdav

import (
	"bytes"
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dittodav/pkg/vpath"
)

const (
	xmlContentType = "application/xml; charset=utf-8"
	davNamespace   = "DAV:"
	statusOK       = "HTTP/1.1 200 OK"
)

// Outgoing documents use the D: prefix bound to DAV:. Incoming documents
// are decoded with namespace-qualified tags instead.

type multistatus struct {
	XMLName   xml.Name   `xml:"D:multistatus"`
	Namespace string     `xml:"xmlns:D,attr"`
	Responses []response `xml:"D:response"`
}

type response struct {
	Href     string   `xml:"D:href"`
	Propstat propstat `xml:"D:propstat"`
}

type propstat struct {
	Prop   prop   `xml:"D:prop"`
	Status string `xml:"D:status"`
}

type prop struct {
	CreationDate  string        `xml:"D:creationdate"`
	LastModified  string        `xml:"D:getlastmodified,omitempty"`
	ContentLength int64         `xml:"D:getcontentlength"`
	ContentType   string        `xml:"D:getcontenttype,omitempty"`
	ETag          string        `xml:"D:getetag,omitempty"`
	ResourceType  resourceType  `xml:"D:resourcetype"`
	LockDiscovery struct{}      `xml:"D:lockdiscovery"`
	SupportedLock supportedLock `xml:"D:supportedlock"`
}

type resourceType struct {
	Collection *struct{} `xml:"D:collection"`
}

type supportedLock struct {
	LockEntries []lockEntry `xml:"D:lockentry"`
}

type lockEntry struct {
	LockScope lockScope `xml:"D:lockscope"`
	LockType  lockType  `xml:"D:locktype"`
}

type lockScope struct {
	Exclusive *struct{} `xml:"D:exclusive"`
	Shared    *struct{} `xml:"D:shared"`
}

type lockType struct {
	Write *struct{} `xml:"D:write"`
}

type lockDiscoveryProp struct {
	XMLName       xml.Name      `xml:"D:prop"`
	Namespace     string        `xml:"xmlns:D,attr"`
	LockDiscovery lockDiscovery `xml:"D:lockdiscovery"`
}

type lockDiscovery struct {
	ActiveLock activeLock `xml:"D:activelock"`
}

type activeLock struct {
	LockType  davElement `xml:"D:locktype"`
	LockScope davElement `xml:"D:lockscope"`
	Depth     string     `xml:"D:depth"`
	Owner     href       `xml:"D:owner"`
	Timeout   string     `xml:"D:timeout"`
	LockToken href       `xml:"D:locktoken"`
	LockRoot  href       `xml:"D:lockroot"`
}

// davElement encodes as its field element wrapping one empty DAV element
// of that name, as in <D:locktype><D:write/></D:locktype>.
type davElement string

func (e davElement) MarshalXML(enc *xml.Encoder, start xml.StartElement) error {
	child := xml.StartElement{Name: xml.Name{Local: "D:" + string(e)}}
	for _, tok := range []xml.Token{start, child, child.End(), start.End()} {
		if err := enc.EncodeToken(tok); err != nil {
			return err
		}
	}
	return nil
}

type href struct {
	Href string `xml:"D:href"`
}

// lockInfo is the optional LOCK request body.
type lockInfo struct {
	XMLName   xml.Name     `xml:"DAV: lockinfo"`
	LockScope namedElement `xml:"DAV: lockscope"`
	LockType  namedElement `xml:"DAV: locktype"`
	Owner     lockOwner    `xml:"DAV: owner"`
}

// namedElement captures the names of its child elements, as in
// <lockscope><exclusive/></lockscope>.
type namedElement struct {
	Children []struct {
		XMLName xml.Name
	} `xml:",any"`
}

func (e namedElement) first() string {
	if len(e.Children) == 0 {
		return ""
	}
	return e.Children[0].XMLName.Local
}

type lockOwner struct {
	Href string `xml:"DAV: href"`
	Text string `xml:",chardata"`
}

// encode renders v as an XML document with a declaration.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// escapeHref renders p as an href: every segment is escaped and
// collections end with a separator.
func escapeHref(p vpath.Path, collection bool) string {
	components := p.Components()
	for i, c := range components {
		components[i] = url.PathEscape(c)
	}

	s := strings.Join(components, vpath.Separator)
	if s == "" {
		s = vpath.Separator
	}
	if collection && !strings.HasSuffix(s, vpath.Separator) {
		s += vpath.Separator
	}
	return s
}

func httpDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// etag derives the entity tag from the creation time.
func etag(created time.Time) string {
	return strconv.Quote(strconv.FormatInt(created.Unix(), 10))
}
