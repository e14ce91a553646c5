package model

// Outputs holds the three generated text fields for one item, produced by the
// generation stage and possibly rewritten by reflection before being recorded
// in the ledger.
type Outputs struct {
	AbstractRewrite string `json:"abstract_rewrite"`
	ProblemSolved   string `json:"problem_solved"`
	LinkedInPost    string `json:"linkedin_post"`
}
