package domain

// Plan is a subscription tier offered at checkout.
type Plan struct {
	Code  string `json:"plan"`
	Price string `json:"price"`
	Name  string `json:"name"`
}

var plans = map[string]Plan{
	"basic":   {Code: "basic", Price: "299", Name: "Basic"},
	"premium": {Code: "premium", Price: "799", Name: "Premium"},
}

// LookupPlan returns the plan for code, or false if the code is unknown.
func LookupPlan(code string) (Plan, bool) {
	p, ok := plans[code]
	return p, ok
}
