// Package cel provides a CEL (Common Expression Language) evaluator for routing policy rules.
//
// CEL is a non-Turing complete expression language that provides fast, safe evaluation
// of conditions for routing decisions.
//
// Example usage:
//
//	evaluator, _ := cel.NewEvaluator("analysis")
//
//	fields := map[string]interface{}{
//	    "requires_human": false,
//	    "confidence":     0.35,
//	}
//
//	matched, err := evaluator.EvaluateBool(ctx, "analysis.requires_human || analysis.confidence < 0.4", fields)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// matched == true
//
// Supported operations:
//   - Comparisons: ==, !=, <, <=, >, >=
//   - Boolean logic: &&, ||, !
//   - String operations: contains, startsWith, endsWith, matches
//   - Arithmetic: +, -, *, /, %
//   - List operations: in, size
//   - Map access: analysis.field, analysis["field"]
package cel
