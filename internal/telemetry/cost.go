package telemetry

import "errors"

// ModelPricing holds per-token prices for one model.
type ModelPricing struct {
	Model          string
	InputPerToken  float64
	OutputPerToken float64
}

// pricingTable lists the supported models. Unknown models fall back to
// defaultPricing.
var pricingTable = map[string]ModelPricing{
	"gemini-pro":        {Model: "gemini-pro", InputPerToken: 0.00025, OutputPerToken: 0.0005},
	"gemini-pro-vision": {Model: "gemini-pro-vision", InputPerToken: 0.00025, OutputPerToken: 0.0005},
	"gemini-ultra":      {Model: "gemini-ultra", InputPerToken: 0.00125, OutputPerToken: 0.00375},
	"gpt-4":             {Model: "gpt-4", InputPerToken: 0.00003, OutputPerToken: 0.00006},
	"gpt-3.5-turbo":     {Model: "gpt-3.5-turbo", InputPerToken: 0.0000015, OutputPerToken: 0.000002},
}

var defaultPricing = ModelPricing{Model: "default", InputPerToken: 0.00025, OutputPerToken: 0.0005}

// ErrNegativeTokens is returned when a caller supplies a negative token count.
var ErrNegativeTokens = errors.New("telemetry: token counts cannot be negative")

// CalculateCost returns the USD cost of a call given its token usage. Cost is
// linear in both counts, so batched and per-call accounting always agree.
func CalculateCost(inputTokens, outputTokens int, model string) (float64, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return 0, ErrNegativeTokens
	}

	pricing, ok := pricingTable[model]
	if !ok {
		pricing = defaultPricing
	}

	return float64(inputTokens)*pricing.InputPerToken + float64(outputTokens)*pricing.OutputPerToken, nil
}

// Pricing returns the pricing entry for a model, or false when the model is
// not in the table.
func Pricing(model string) (ModelPricing, bool) {
	p, ok := pricingTable[model]
	return p, ok
}

// SupportedModels lists every model with an explicit pricing entry.
func SupportedModels() []string {
	models := make([]string, 0, len(pricingTable))
	for name := range pricingTable {
		models = append(models, name)
	}
	return models
}

// EstimateDailyCost projects spend for a day of steady traffic.
func EstimateDailyCost(avgInputTokens, avgOutputTokens, requestsPerDay int, model string) (float64, error) {
	perRequest, err := CalculateCost(avgInputTokens, avgOutputTokens, model)
	if err != nil {
		return 0, err
	}
	if requestsPerDay < 0 {
		return 0, errors.New("telemetry: requests per day cannot be negative")
	}
	return perRequest * float64(requestsPerDay), nil
}

// EstimateMonthlyCost projects spend over 30 days of steady traffic.
func EstimateMonthlyCost(avgInputTokens, avgOutputTokens, requestsPerDay int, model string) (float64, error) {
	daily, err := EstimateDailyCost(avgInputTokens, avgOutputTokens, requestsPerDay, model)
	if err != nil {
		return 0, err
	}
	return daily * 30, nil
}
