// ABOUTME: Static registry of the data-query tools exposed to the agent runtime.
// ABOUTME: Binds tool names and schemas to the memoized Genie space clients.

package tools

import (
	"context"
	"fmt"

	"github.com/2389/genie-gateway/internal/genie"
)

// Tool names as the agent runtime sees them.
const (
	ToolQuerySalesData    = "query_sales_data"
	ToolQueryCustomerData = "query_customer_data"
)

// QuestionParam is the single input field every query tool accepts.
const QuestionParam = "detailed_question"

// Handler executes one tool invocation.
type Handler func(ctx context.Context, detailedQuestion string) (string, error)

// Tool declares one data-query capability: its name, what the model should
// know about it, and the handler that answers.
type Tool struct {
	Name        string
	Description string
	Handler     Handler
}

// Registry holds the declared tools in a stable order.
type Registry struct {
	tools  []Tool
	byName map[string]int
}

// NewRegistry declares the sales and customer query tools against the given
// client container. Purely descriptive; no backend is contacted here.
func NewRegistry(clients *genie.Clients) *Registry {
	tools := []Tool{
		{
			Name: ToolQuerySalesData,
			Description: "Query Databricks Genie sales data " +
				"(columns: date, product, category, revenue, region) " +
				"and return the data in markdown format.",
			Handler: askSpace(clients, genie.SpaceSales),
		},
		{
			Name: ToolQueryCustomerData,
			Description: "Query Databricks Genie customer data " +
				"(columns: customer_id, segment, lifetime_value, churn_risk, region) " +
				"and return the data in markdown format.",
			Handler: askSpace(clients, genie.SpaceCustomer),
		},
	}

	byName := make(map[string]int, len(tools))
	for i, tool := range tools {
		byName[tool.Name] = i
	}
	return &Registry{tools: tools, byName: byName}
}

// Tools returns the declared tools in declaration order.
func (r *Registry) Tools() []Tool {
	return r.tools
}

// Lookup finds a tool by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Tool{}, false
	}
	return r.tools[i], true
}

// Execute runs the named tool with the given question.
func (r *Registry) Execute(ctx context.Context, name, detailedQuestion string) (string, error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return tool.Handler(ctx, detailedQuestion)
}

// askSpace defers client construction to first invocation, keeping the
// registry declaration side-effect free.
func askSpace(clients *genie.Clients, space genie.Space) Handler {
	return func(ctx context.Context, detailedQuestion string) (string, error) {
		client, err := clients.ForSpace(space)
		if err != nil {
			return "", err
		}
		return client.Ask(ctx, detailedQuestion)
	}
}
