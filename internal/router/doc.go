// Package router decides how a candidate message is answered and executes
// that decision.
//
// There are four routes:
//   - ai_response: generate a reply with the AI backend
//   - template_response: answer with a canned template
//   - escalation: hand the message to a human operator
//   - fallback: send the generic fallback reply
//
// A Policy evaluates ordered CEL rules over a flattened Analysis; the first
// rule that matches decides, otherwise the default rule applies. An explicit
// caller preference bypasses the rules entirely.
//
// Example policy usage:
//
//	policy, _ := router.NewPolicy("default", router.DefaultRuleSet(), logger)
//	decision, err := policy.Decide(ctx, analysis, router.PreferenceAuto)
//
// Rule sets can also be loaded from YAML:
//
//	rules:
//	  - name: escalate_uncertain
//	    condition: "analysis.requires_human || analysis.confidence < 0.4"
//	    route: escalation
//	    confidence: 0.8
//	    reason: low_confidence_or_complex_query
//	default:
//	  route: template_response
//	  confidence: 0.8
//	  reason: simple_query_template_match
//	variants:
//	  ai_first:
//	    rules: [...]
//	    default: {...}
//
// The Executor dispatches a Decision to exactly one collaborator. Failures
// come back as *RouteExecutionError; retrying against the fallback route is
// left to the caller.
//
//	executor := router.NewExecutor(router.Collaborators{...}, 10*time.Second, logger)
//	result, err := executor.Execute(ctx, candidateID, message, decision, analysis, actx)
package router
