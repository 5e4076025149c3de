package model

import "iter"

// Analyzer consumes the ordered query stream and lazily yields issues.
// Consumers may stop iterating early without forcing full computation.
type Analyzer interface {
	// Name returns the unique identifier of the analyzer
	Name() string
	// Analyze inspects the query records and yields issues as they are found
	Analyze(queries []QueryRecord) iter.Seq[Issue]
}

// Reporter defines how to output results
type Reporter interface {
	Report(report *Report) error
}
