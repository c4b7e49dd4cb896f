// Package ai suggests transaction categories using an LLM. It is a
// thin client: one prompt in, one category id out.
package ai

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/rcortado/merienda/internal/lunchmoney"
)

const defaultModel = "gemini-2.0-flash"

type Categorizer struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey string) (*Categorizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Categorizer{client: client, model: defaultModel}, nil
}

// SuggestCategory asks the model to pick one category id for the
// transaction out of the chat's taxonomy. The response is validated
// against the taxonomy before being returned.
func (c *Categorizer) SuggestCategory(ctx context.Context, tx *lunchmoney.Transaction, categories []lunchmoney.Category) (int64, error) {
	prompt := buildPrompt(tx, categories)

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return 0, fmt.Errorf("generating category suggestion: %w", err)
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return 0, fmt.Errorf("empty response from model")
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("model did not answer with a category id: %q", raw)
	}
	if !validCategoryID(categories, id) {
		return 0, fmt.Errorf("model suggested unknown category id %d", id)
	}
	return id, nil
}

func buildPrompt(tx *lunchmoney.Transaction, categories []lunchmoney.Category) string {
	var b strings.Builder
	b.WriteString("This is the transaction information:\n")
	fmt.Fprintf(&b, "Payee: %s\n", tx.Payee)
	fmt.Fprintf(&b, "Amount: %s %s\n", tx.Amount.String(), tx.Currency)
	if tx.Plaid != nil {
		if tx.Plaid.MerchantName != "" {
			fmt.Fprintf(&b, "merchant_name: %s\n", tx.Plaid.MerchantName)
		}
		if tx.Plaid.Name != "" {
			fmt.Fprintf(&b, "name: %s\n", tx.Plaid.Name)
		}
	}
	if tx.Notes != "" {
		fmt.Fprintf(&b, "notes: %s\n", tx.Notes)
	}

	b.WriteString("\nWhich of the following categories would you suggest for this transaction?\n")
	b.WriteString("Respond with the ID of the category, and only the ID.\n\n")
	b.WriteString("These are the available categories (using the format `ID:Category Name`):\n\n")

	for _, c := range categories {
		if len(c.Children) > 0 {
			for _, child := range c.Children {
				fmt.Fprintf(&b, "%d:%s (%s)\n", child.ID, child.Name, c.Name)
			}
		} else if c.GroupID == nil {
			fmt.Fprintf(&b, "%d:%s\n", c.ID, c.Name)
		}
	}

	b.WriteString("\nRemember to ONLY RESPOND with the ID, and nothing else.\n")
	return b.String()
}

func validCategoryID(categories []lunchmoney.Category, id int64) bool {
	for _, c := range categories {
		if c.ID == id {
			return true
		}
		for _, child := range c.Children {
			if child.ID == id {
				return true
			}
		}
	}
	return false
}
