package cluster

import "fmt"

// Host is a resolved seed/friend address. It mirrors the public kvstore.Host
// but lives here too so internal/cluster has no import-cycle dependency on
// the root package.
type Host struct {
	Name string
	Port uint16
}

func (h Host) Address() string { return fmt.Sprintf("%s:%d", h.Name, h.Port) }
func (h Host) String() string  { return h.Address() }
