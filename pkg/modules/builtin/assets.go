package builtin

import (
	"fmt"

	"github.com/entrhq/phantomas/pkg/modules"
	"github.com/entrhq/phantomas/pkg/modules/lib"
	"github.com/entrhq/phantomas/pkg/types"
)

var assetTypes = []lib.AssetType{
	lib.AssetHTML, lib.AssetCSS, lib.AssetJS, lib.AssetJSON,
	lib.AssetImage, lib.AssetFont, lib.AssetOther,
}

// AssetsTypes counts responses and their sizes per asset type.
type AssetsTypes struct {
	base
}

// NewAssetsTypes creates the assetsTypes module.
func NewAssetsTypes() *AssetsTypes {
	return &AssetsTypes{base: base{name: "assetsTypes", version: "0.2"}}
}

func (m *AssetsTypes) Activate(c *modules.Capabilities) error {
	v, err := c.Require(lib.URLsLibrary)
	if err != nil {
		return err
	}
	urls, ok := v.(*lib.URLClassifier)
	if !ok {
		return fmt.Errorf("unexpected %s library %T", lib.URLsLibrary, v)
	}

	for _, t := range assetTypes {
		c.InitMetric(string(t) + "Count")
		c.InitMetric(string(t) + "Size")
	}
	c.InitMetric("base64Count")

	c.On(types.EventRecv, func(ev types.Event) error {
		res := ev.Resource
		if res == nil || res.Failed {
			return nil
		}
		if urls.IsData(res.URL) {
			c.IncrMetric("base64Count")
			return nil
		}

		t := string(urls.AssetType(res.ContentType, res.URL))
		c.IncrMetric(t + "Count")
		if res.BodySize > 0 {
			c.IncrMetricBy(t+"Size", float64(res.BodySize))
		}
		return nil
	})

	return nil
}
