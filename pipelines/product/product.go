// Package product builds the product extraction workflow: pull a product
// record out of free text, then normalise its price to a number.
package product

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/BaSui01/stategraph/llm/structured"
	"github.com/BaSui01/stategraph/pipelines"
	"github.com/BaSui01/stategraph/workflow"
	"go.uber.org/zap"
)

// GraphName is the compiled graph's name.
const GraphName = "product"

// Node names.
const (
	NodeExtract        = "extract_product"
	NodeNormalizePrice = "normalize_price"
)

// State fields.
var (
	RawText     = workflow.NewField[string]("raw_text")
	ProductID   = workflow.NewField[string]("product_id")
	ProductName = workflow.NewField[string]("product_name")
	Description = workflow.NewField[string]("description")
	PriceText   = workflow.NewField[string]("tentative_price_in_usd")
	Category    = workflow.NewField[string]("category")
	Rating      = workflow.NewField[float64]("rating")
	PriceUSD    = workflow.NewField[float64]("price_usd")
)

// Product is the structured output of the extraction step. Every field is
// optional; Rating must lie in [0, 5] when present.
type Product struct {
	ProductID   string   `json:"product_id,omitempty"`
	ProductName string   `json:"product_name,omitempty"`
	Description string   `json:"description,omitempty"`
	Price       string   `json:"tentative_price_in_usd,omitempty"`
	Category    string   `json:"category,omitempty"`
	Rating      *float64 `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	// PriceUSD is filled by normalize_price, not by the model.
	PriceUSD *float64 `json:"price_usd,omitempty"`
}

func nullable(kind, desc string) map[string]any {
	return map[string]any{"type": []any{kind, "null"}, "description": desc}
}

// Schema is the JSON schema sent to the model.
var Schema = structured.Schema{
	Name: "product",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"product_id":             nullable("string", "Unique identifier for the product (product number)"),
			"product_name":           nullable("string", "The name of the product"),
			"description":            nullable("string", "Brief description or key features of the product"),
			"tentative_price_in_usd": nullable("string", "Price of the product in USD"),
			"category":               nullable("string", "Product category such as electronics, clothing, etc."),
			"rating":                 nullable("number", "Average customer rating (0 to 5)"),
		},
	},
}

// Extractor turns free text into a schema-conforming struct.
type Extractor interface {
	Extract(ctx context.Context, rawText string, schema structured.Schema, out any) error
}

// NewGraph compiles extract_product → normalize_price → END.
func NewGraph(extractor Extractor, opts pipelines.Options) (*workflow.CompiledGraph, error) {
	if extractor == nil {
		return nil, fmt.Errorf("product: extractor is required")
	}
	n := &nodes{extractor: extractor}

	return opts.Apply(workflow.NewStateGraph(GraphName)).
		AddNodeFunc(NodeExtract, n.extract).
		AddNodeFunc(NodeNormalizePrice, n.normalizePrice).
		SetEntry(NodeExtract).
		AddEdge(NodeExtract, NodeNormalizePrice).
		AddEdge(NodeNormalizePrice, workflow.END).
		Compile()
}

// NewInitialState holds the text to extract from.
func NewInitialState(text string) workflow.State {
	return RawText.Set(workflow.NewState(), text)
}

// Run extracts one product and returns it with the run result.
func Run(ctx context.Context, graph *workflow.CompiledGraph, text string, opts ...workflow.RunOption) (Product, *workflow.RunResult, error) {
	res, err := graph.Run(ctx, NewInitialState(text), opts...)
	return FromState(res.State), res, err
}

// FromState reads a Product out of s.
func FromState(s workflow.State) Product {
	p := Product{
		ProductID:   ProductID.GetOr(s, ""),
		ProductName: ProductName.GetOr(s, ""),
		Description: Description.GetOr(s, ""),
		Price:       PriceText.GetOr(s, ""),
		Category:    Category.GetOr(s, ""),
	}
	if v, ok := Rating.Get(s); ok {
		p.Rating = &v
	}
	if v, ok := PriceUSD.Get(s); ok {
		p.PriceUSD = &v
	}
	return p
}

type nodes struct {
	extractor Extractor
}

func (n *nodes) extract(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
	var p Product
	if err := n.extractor.Extract(ctx, RawText.GetOr(s, ""), Schema, &p); err != nil {
		rt.Log().Warn("product extraction failed", zap.Error(err))
		return workflow.NewState(), fmt.Errorf("extract product: %w", err)
	}

	delta := workflow.NewState()
	set := func(f workflow.Field[string], v string) {
		if v = strings.TrimSpace(v); v != "" {
			delta = f.Set(delta, v)
		}
	}
	set(ProductID, p.ProductID)
	set(ProductName, p.ProductName)
	set(Description, p.Description)
	set(PriceText, p.Price)
	set(Category, p.Category)
	if p.Rating != nil {
		delta = Rating.Set(delta, *p.Rating)
	}
	return delta, nil
}

func (n *nodes) normalizePrice(ctx context.Context, rt *workflow.Runtime, s workflow.State) (workflow.State, error) {
	if v, ok := ParsePrice(PriceText.GetOr(s, "")); ok {
		return PriceUSD.Set(workflow.NewState(), v), nil
	}
	return PriceUSD.Clear(workflow.NewState()), nil
}

var priceNumber = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ParsePrice pulls the first number out of a price string such as
// "$1,299.99" or "about 45 USD". Thousands separators are dropped.
func ParsePrice(text string) (float64, bool) {
	m := priceNumber.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
