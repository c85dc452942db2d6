package cmstwin

import "time"

// seedCollections backs the read-only list endpoints.
var seedCollections = map[string][]any{
	"services": {
		map[string]any{
			"id":          "svc-custom-software",
			"slug":        "custom-software",
			"title":       "Custom Software Development",
			"description": "Product engineering from discovery to launch.",
			"sort_order":  1,
		},
		map[string]any{
			"id":          "svc-cloud",
			"slug":        "cloud-devops",
			"title":       "Cloud & DevOps",
			"description": "Infrastructure, CI/CD and observability.",
			"sort_order":  2,
		},
	},
	"projects": {
		map[string]any{
			"id":       "prj-logistics",
			"slug":     "logistics-platform",
			"title":    "Logistics Platform",
			"client":   "Acme Freight",
			"featured": true,
		},
	},
	"blog": {},
}

func defaultSite(brand string) map[string]any {
	return map[string]any{
		"brand": map[string]any{
			"name":    brand,
			"tagline": "Engineering digital products",
		},
		"navigation": map[string]any{
			"items": []any{
				map[string]any{"id": "nav-home", "label": "Home", "href": "/"},
				map[string]any{"id": "nav-about", "label": "About", "href": "/about"},
				map[string]any{"id": "nav-capabilities", "label": "Capabilities", "href": "/capabilities"},
				map[string]any{"id": "nav-projects", "label": "Projects", "href": "/projects"},
				map[string]any{"id": "nav-blog", "label": "Blog", "href": "/blog"},
				map[string]any{"id": "nav-contact", "label": "Contact", "href": "/contact"},
			},
			"cta": map[string]any{"label": "Get a quote", "href": "/contact"},
		},
		"home": map[string]any{
			"hero": map[string]any{
				"title":    "We build software that moves businesses forward",
				"subtitle": "Strategy, design and engineering under one roof.",
			},
		},
		"pages": map[string]any{
			"about":   map[string]any{"title": "About us"},
			"contact": map[string]any{"title": "Contact"},
		},
		"footer": map[string]any{
			"copyright": "© Digitfellas",
			"links": []any{
				map[string]any{"label": "Privacy", "href": "/privacy"},
			},
		},
		"_meta": map[string]any{
			"updatedAt": time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func cloneValue[T any](v T) T {
	c, ok := deepCopy(any(v)).(T)
	if !ok {
		return v
	}
	return c
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return val
		}
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		if val == nil {
			return val
		}
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return val
	}
}
