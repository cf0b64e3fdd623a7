package tuning

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// setLoopbackMTU sets the lo MTU so loopback transfers see realistic
// datagram sizes instead of the 64 KB kernel default.
func (t *Tuner) setLoopbackMTU() Outcome {
	if t.LoopbackMTU == 0 {
		return Outcome{Kind: Skipped, Detail: "disabled"}
	}

	link, err := netlink.LinkByName("lo")
	if err != nil {
		return Outcome{Kind: Failed, Detail: fmt.Sprintf("find lo: %v", err)}
	}

	if err := netlink.LinkSetMTU(link, t.LoopbackMTU); err != nil {
		return Outcome{Kind: Failed, Detail: fmt.Sprintf("set mtu: %v", err)}
	}

	return Outcome{Kind: Applied, Detail: fmt.Sprintf("lo mtu=%d", t.LoopbackMTU)}
}
