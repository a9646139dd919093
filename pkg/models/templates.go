package models

// Templates returns the built-in workflow definitions shipped with the
// server. They are registered in the catalog at startup and mainly serve as
// working references for the definition format.
func Templates() []WorkflowDefinition {
	return []WorkflowDefinition{
		{
			Name:        "price-comparison",
			Description: "Compare product prices across two websites",
			OnError:     StopOnError,
			Variables: map[string]any{
				"site1_url":      "https://example.com/product",
				"site2_url":      "https://example.org/product",
				"price_selector": ".price",
			},
			Tasks: []TaskSpec{
				{
					Name:      "open_site1",
					AgentType: "browser",
					Action:    "navigate",
					Parameters: map[string]any{
						"url": "${site1_url}",
					},
				},
				{
					Name:      "open_site2",
					AgentType: "browser",
					Action:    "navigate",
					Parameters: map[string]any{
						"url": "${site2_url}",
					},
				},
				{
					Name:      "price_site1",
					AgentType: "extract",
					Action:    "extract",
					DependsOn: []string{"open_site1"},
					Parameters: map[string]any{
						"selector":     "${price_selector}",
						"extract_type": "text",
					},
				},
				{
					Name:      "price_site2",
					AgentType: "extract",
					Action:    "extract",
					DependsOn: []string{"open_site2"},
					Parameters: map[string]any{
						"selector":     "${price_selector}",
						"extract_type": "text",
					},
				},
				{
					Name:      "compare",
					AgentType: "analyze",
					Action:    "analyze",
					DependsOn: []string{"price_site1", "price_site2"},
					Parameters: map[string]any{
						"analysis_type": "price-comparison",
						"data": map[string]any{
							"site1": "${price_site1}",
							"site2": "${price_site2}",
						},
					},
				},
			},
		},
		{
			Name:        "content-aggregation",
			Description: "Fetch two sources and merge their content into one report",
			OnError:     ContinueOnError,
			Variables: map[string]any{
				"source1": "https://example.com/feed",
				"source2": "https://example.org/feed",
			},
			Tasks: []TaskSpec{
				{
					Name:      "fetch_source1",
					AgentType: "http",
					Action:    "get",
					Parameters: map[string]any{
						"url": "${source1}",
					},
					MaxRetries: 2,
				},
				{
					Name:      "fetch_source2",
					AgentType: "http",
					Action:    "get",
					Parameters: map[string]any{
						"url": "${source2}",
					},
					MaxRetries: 2,
				},
				{
					Name:      "merge",
					AgentType: "analyze",
					Action:    "analyze",
					DependsOn: []string{"fetch_source1", "fetch_source2"},
					Parameters: map[string]any{
						"analysis_type": "aggregate",
						"data": map[string]any{
							"first":  "${fetch_source1}",
							"second": "${fetch_source2}",
						},
					},
				},
				{
					Name:      "save_report",
					AgentType: "file",
					Action:    "write",
					DependsOn: []string{"merge"},
					Parameters: map[string]any{
						"path":    "reports/aggregate.json",
						"content": "${merge}",
					},
				},
			},
		},
	}
}
