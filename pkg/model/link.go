package model

import (
	"strconv"
	"strings"
)

// ObjectLinks lists the instances of one object for registration payloads.
type ObjectLinks struct {
	ObjectID    uint16
	InstanceIDs []uint16
}

// FormatLinks renders objects in CoRE link format: an object with instances
// yields one "</o/i>" per instance, an object without instances "</o>".
func FormatLinks(objects []ObjectLinks) string {
	var links []string
	for _, obj := range objects {
		oid := strconv.Itoa(int(obj.ObjectID))
		if len(obj.InstanceIDs) == 0 {
			links = append(links, "</"+oid+">")
			continue
		}
		for _, iid := range obj.InstanceIDs {
			links = append(links, "</"+oid+"/"+strconv.Itoa(int(iid))+">")
		}
	}
	return strings.Join(links, ",")
}
