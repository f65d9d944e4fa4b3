package discovery

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Service constants.
const (
	ServiceType = "_lwm2m._udp"
	Domain      = "local."

	// MaxInstanceNameLen is the DNS-SD limit on instance labels.
	MaxInstanceNameLen = 63

	DefaultTTL     = 120 * time.Second
	BrowseTimeout  = 10 * time.Second
	TXTKeyEndpoint = "ep"
	TXTKeyObjects  = "objs"
	TXTKeyServers  = "srv"
)

// Discovery errors.
var (
	ErrMissingRequired = errors.New("missing required TXT record")
	ErrInvalidObjects  = errors.New("invalid object list")
	ErrNotAdvertising  = errors.New("not advertising")
)

// ClientInfo is what a client advertises about itself.
type ClientInfo struct {
	Endpoint  string
	Port      uint16
	ObjectIDs []uint16
	Servers   int
}

// InstanceName returns the DNS-SD instance label for the client.
func (c *ClientInfo) InstanceName() string {
	name := c.Endpoint
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// ClientService is a client found while browsing.
type ClientService struct {
	ClientInfo
	InstanceName string
	Host         string
	Addresses    []string
}

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records of a client.
func EncodeTXT(info *ClientInfo) TXTRecordMap {
	ids := slices.Clone(info.ObjectIDs)
	slices.Sort(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(int(id))
	}

	txt := TXTRecordMap{
		TXTKeyEndpoint: info.Endpoint,
		TXTKeyObjects:  strings.Join(parts, ","),
	}
	if info.Servers > 0 {
		txt[TXTKeyServers] = strconv.Itoa(info.Servers)
	}
	return txt
}

// DecodeTXT parses the TXT records of a client.
func DecodeTXT(txt TXTRecordMap) (*ClientInfo, error) {
	info := &ClientInfo{}

	var ok bool
	info.Endpoint, ok = txt[TXTKeyEndpoint]
	if !ok || info.Endpoint == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyEndpoint)
	}

	objs, ok := txt[TXTKeyObjects]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyObjects)
	}
	if objs != "" {
		for _, s := range strings.Split(objs, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidObjects, objs)
			}
			info.ObjectIDs = append(info.ObjectIDs, uint16(id))
		}
	}

	if srv, ok := txt[TXTKeyServers]; ok {
		n, err := strconv.Atoi(srv)
		if err == nil && n >= 0 {
			info.Servers = n
		}
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings,
// sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		if !found {
			v = ""
		}
		txt[k] = v
	}
	return txt
}
