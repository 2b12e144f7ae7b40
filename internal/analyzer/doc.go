// Package analyzer extracts intent, sentiment, complexity, urgency and
// category signals from a candidate message and combines them into a single
// Analysis with an aggregate confidence score.
//
// Every extractor is a pure function of the message text. Keyword tables are
// ordered slices; when a message matches several labels the one declared
// first wins.
//
// Example usage:
//
//	a, _ := analyzer.NewAnalyzer(1024, logger)
//	analysis, err := a.Analyze("When is my interview?", analyzer.Context{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(analysis.Intent.Type, analysis.Confidence) // interview_scheduling 0.54
package analyzer
