package config

// modelSpecSchema constrains the `model` value of a spec file. Arguments
// are a number, a list of numbers, a string, or {expr: "..."} for a
// deferred Starlark expression evaluated against the training data.
const modelSpecSchema = `
#Arg: number | [...number] | string | bool | {expr: string & != ""}

#ModelSpec: {
	// Family is the model family.
	family: "survival_reg" | "proportional_hazards"

	// Engine names the fitting routine.
	engine: string & =~"^[a-z][a-z0-9_]*$"

	mode?: "censored regression"

	// Formula is a survival formula such as "Surv(time, status) ~ .".
	formula: string & =~"^\\s*Surv\\(.*\\)\\s*~.+$"

	args?: {
		penalty?: #Arg
		mixture?: #Arg
		dist?:    #Arg
	}

	engine_args?: {[string]: #Arg}
}
`
