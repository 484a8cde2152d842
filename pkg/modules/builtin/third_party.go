package builtin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/entrhq/phantomas/pkg/modules"
	"github.com/entrhq/phantomas/pkg/modules/lib"
	"github.com/entrhq/phantomas/pkg/types"
)

// ThirdParty splits requests between the analyzed domain and everyone else.
type ThirdParty struct {
	base
}

// NewThirdParty creates the thirdParty module.
func NewThirdParty() *ThirdParty {
	return &ThirdParty{base: base{name: "thirdParty", version: "0.1"}}
}

func (m *ThirdParty) Activate(c *modules.Capabilities) error {
	v, err := c.Require(lib.URLsLibrary)
	if err != nil {
		return err
	}
	urls, ok := v.(*lib.URLClassifier)
	if !ok {
		return fmt.Errorf("unexpected %s library %T", lib.URLsLibrary, v)
	}

	domains := make(map[string]int)
	c.InitMetric("sameDomainRequests")
	c.InitMetric("thirdPartyRequests")
	c.InitMetric("thirdPartyDomains")

	c.On(types.EventSend, func(ev types.Event) error {
		res := ev.Resource
		if res == nil || urls.IsData(res.URL) {
			return nil
		}
		if urls.SameDomain(c.URL(), res.URL) {
			c.IncrMetric("sameDomainRequests")
			return nil
		}
		c.IncrMetric("thirdPartyRequests")
		if host := urls.Host(res.URL); host != "" {
			domains[host]++
		}
		return nil
	})

	c.On(types.EventReport, func(types.Event) error {
		if len(domains) == 0 {
			return nil
		}
		names := make([]string, 0, len(domains))
		for d := range domains {
			names = append(names, d)
		}
		sort.Strings(names)

		c.SetMetric("thirdPartyDomains", len(names))
		c.AddNotice("Requests to third-party domains: " + strings.Join(names, ", "))
		return nil
	})

	return nil
}
