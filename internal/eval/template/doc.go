// Package template provides a Handlebars template engine for canned responses,
// LLM prompts and fallback messages.
//
// Example usage:
//
//	engine := template.NewEngine()
//
//	data := map[string]interface{}{
//	    "intent":   "interview_scheduling",
//	    "keywords": []string{"interview", "monday"},
//	}
//
//	out, err := engine.Render("Thanks for asking about {{humanize intent}}.", data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Output: Thanks for asking about interview scheduling.
//
// Built-in helpers:
//   - uppercase, lowercase, trim - string casing and whitespace
//   - default - Return default value if first arg is empty
//   - eq, ne - Equality comparison
//   - gt, lt - Numeric comparison
//   - contains - Check if string contains substring
//   - join - Join string slice elements with separator
//   - humanize - Replace underscores with spaces
package template
