// Package responder provides the collaborators the router executor
// dispatches to.
//
//   - LLMGenerator writes ai_response replies through a dago LLM client
//   - TemplateMatcher picks a canned reply from a YAML catalog by intent,
//     then by category
//   - RedisEscalationQueue appends escalations to a Redis stream; the entry
//     id is the ticket id
//   - Fallback renders the generic reply
//
// Template bodies, prompts and the fallback message are Handlebars
// templates. A catalog file looks like:
//
//	templates:
//	  - id: payment
//	    intent: payment
//	    body: "Thanks for your message about payment."
//	  - id: scheduling_category
//	    category: scheduling
//	    body: "You can see all upcoming dates in your portal."
package responder
