package builtin

import (
	"fmt"

	"github.com/entrhq/phantomas/pkg/modules"
	"github.com/entrhq/phantomas/pkg/modules/lib"
	"github.com/entrhq/phantomas/pkg/types"
)

// DOMComplexity analyzes the final markup of the page at report time.
type DOMComplexity struct {
	base
}

// NewDOMComplexity creates the domComplexity module.
func NewDOMComplexity() *DOMComplexity {
	return &DOMComplexity{base: base{name: "domComplexity", version: "0.2"}}
}

func (m *DOMComplexity) Activate(c *modules.Capabilities) error {
	v, err := c.Require(lib.HTMLLibrary)
	if err != nil {
		return err
	}
	inspector, ok := v.(*lib.HTMLInspector)
	if !ok {
		return fmt.Errorf("unexpected %s library %T", lib.HTMLLibrary, v)
	}

	c.On(types.EventReport, func(types.Event) error {
		content, err := c.PageContent()
		if err != nil {
			c.Log("Unable to read page content: %v", err)
			return nil
		}

		stats, err := inspector.Inspect(content)
		if err != nil {
			c.Log("Unable to analyze page content: %v", err)
			return nil
		}

		c.SetMetric("DOMelementsCount", stats.Elements)
		c.SetMetric("DOMelementMaxDepth", stats.MaxDepth)
		c.SetMetric("iframesCount", stats.Iframes)
		c.SetMetric("imagesWithoutAlt", stats.ImagesNoAlt)
		c.SetMetric("inlineScriptsCount", stats.InlineScripts)
		c.SetMetric("inlineStylesCount", stats.InlineStyles)
		c.SetMetric("commentsCount", stats.Comments)
		c.SetMetric("commentsSize", stats.CommentsSize)
		c.SetMetric("hiddenInputsCount", stats.HiddenInputs)
		if stats.Title != "" {
			c.Log("Page title: %s", stats.Title)
		}
		return nil
	})

	return nil
}
